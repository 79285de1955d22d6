package contacts

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestParseCSV_HeaderAndFields(t *testing.T) {
	t.Parallel()

	input := "email,nom,entreprise\nbob@x.com,Bob,Acme\nalice@x.com,Alice,Initech\n"

	list, err := Parse(strings.NewReader(input), "contacts.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(list.Recipients) != 2 {
		t.Fatalf("recipients: got %d, want 2", len(list.Recipients))
	}
	if list.Invalid != 0 {
		t.Errorf("invalid count: got %d, want 0", list.Invalid)
	}

	first := list.Recipients[0]
	if first.Email != "bob@x.com" {
		t.Errorf("email: got %q, want %q", first.Email, "bob@x.com")
	}
	if first.Fields["nom"] != "Bob" {
		t.Errorf("nom: got %q, want %q", first.Fields["nom"], "Bob")
	}
	if first.Fields["entreprise"] != "Acme" {
		t.Errorf("entreprise: got %q, want %q", first.Fields["entreprise"], "Acme")
	}
	if first.Fields["email"] != "bob@x.com" {
		t.Errorf("email field: got %q, want %q", first.Fields["email"], "bob@x.com")
	}
}

func TestParseCSV_MissingEmailColumn(t *testing.T) {
	t.Parallel()

	input := "nom,entreprise\nBob,Acme\n"

	_, err := Parse(strings.NewReader(input), "contacts.csv")
	if !errors.Is(err, ErrMissingEmailColumn) {
		t.Fatalf("error: got %v, want ErrMissingEmailColumn", err)
	}
}

func TestParseCSV_InvalidRowsSkippedNotFatal(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		"email,nom",
		"good@x.com,Good",
		",Empty",
		"not-an-email,Bad",
		"also@ok.org,Ok",
	}, "\n")

	list, err := Parse(strings.NewReader(input), "contacts.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(list.Recipients) != 2 {
		t.Fatalf("recipients: got %d, want 2", len(list.Recipients))
	}
	if list.Invalid != 2 {
		t.Errorf("invalid count: got %d, want 2", list.Invalid)
	}
	if list.Recipients[0].Email != "good@x.com" || list.Recipients[1].Email != "also@ok.org" {
		t.Errorf("recipients out of order: %v", list.Recipients)
	}
}

func TestParseCSV_ColumnAliasNormalization(t *testing.T) {
	t.Parallel()

	input := "E-Mail,Name,FirstName,Company\nbob@x.com,Doe,Bob,Acme\n"

	list, err := Parse(strings.NewReader(input), "contacts.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(list.Recipients) != 1 {
		t.Fatalf("recipients: got %d, want 1", len(list.Recipients))
	}

	fields := list.Recipients[0].Fields
	if fields["nom"] != "Doe" {
		t.Errorf("nom: got %q, want %q", fields["nom"], "Doe")
	}
	if fields["prenom"] != "Bob" {
		t.Errorf("prenom: got %q, want %q", fields["prenom"], "Bob")
	}
	if fields["entreprise"] != "Acme" {
		t.Errorf("entreprise: got %q, want %q", fields["entreprise"], "Acme")
	}
}

func TestParseCSV_WhitespaceTrimmed(t *testing.T) {
	t.Parallel()

	input := "email,nom\n  bob@x.com , Bob \n"

	list, err := Parse(strings.NewReader(input), "contacts.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(list.Recipients) != 1 {
		t.Fatalf("recipients: got %d, want 1", len(list.Recipients))
	}
	if list.Recipients[0].Email != "bob@x.com" {
		t.Errorf("email: got %q, want %q", list.Recipients[0].Email, "bob@x.com")
	}
	if list.Recipients[0].Fields["nom"] != "Bob" {
		t.Errorf("nom: got %q, want %q", list.Recipients[0].Fields["nom"], "Bob")
	}
}

func TestParseCSV_DuplicatesPreserved(t *testing.T) {
	t.Parallel()

	input := "email\nbob@x.com\nbob@x.com\n"

	list, err := Parse(strings.NewReader(input), "contacts.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list.Recipients) != 2 {
		t.Errorf("recipients: got %d, want 2 (duplicates are kept)", len(list.Recipients))
	}
}

func TestParseCSV_Windows1252Fallback(t *testing.T) {
	t.Parallel()

	// "José" with a Windows-1252 encoded é (0xe9)
	input := []byte("email,prenom\nbob@x.com,Jos\xe9\n")

	list, err := Parse(bytes.NewReader(input), "contacts.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list.Recipients) != 1 {
		t.Fatalf("recipients: got %d, want 1", len(list.Recipients))
	}
	if got := list.Recipients[0].Fields["prenom"]; got != "José" {
		t.Errorf("prenom: got %q, want %q", got, "José")
	}
}

func TestParseTxt_MixedDelimiters(t *testing.T) {
	t.Parallel()

	list, err := Parse(strings.NewReader("a@x.com,b@x.com;c@x.com"), "list.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"a@x.com", "b@x.com", "c@x.com"}
	if len(list.Recipients) != len(want) {
		t.Fatalf("recipients: got %d, want %d", len(list.Recipients), len(want))
	}
	for i, rec := range list.Recipients {
		if rec.Email != want[i] {
			t.Errorf("recipient %d: got %q, want %q", i, rec.Email, want[i])
		}
		if len(rec.Fields) != 1 || rec.Fields["email"] != want[i] {
			t.Errorf("recipient %d fields: got %v, want only email", i, rec.Fields)
		}
	}
}

func TestParseTxt_OneAddressPerLine(t *testing.T) {
	t.Parallel()

	input := "a@x.com\n\n  b@x.com  \nnot an email\n"

	list, err := Parse(strings.NewReader(input), "list.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(list.Recipients) != 2 {
		t.Fatalf("recipients: got %d, want 2", len(list.Recipients))
	}
	if list.Invalid != 1 {
		t.Errorf("invalid count: got %d, want 1", list.Invalid)
	}
}

func TestParseTxt_DelimiterOverride(t *testing.T) {
	t.Parallel()

	// With a forced semicolon delimiter the comma stays inside the token
	// and that token fails validation.
	list, err := Parse(strings.NewReader("a@x.com,b@x.com;c@x.com"), "list.txt", WithDelimiter(';'))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(list.Recipients) != 1 {
		t.Fatalf("recipients: got %d, want 1", len(list.Recipients))
	}
	if list.Recipients[0].Email != "c@x.com" {
		t.Errorf("recipient: got %q, want %q", list.Recipients[0].Email, "c@x.com")
	}
	if list.Invalid != 1 {
		t.Errorf("invalid count: got %d, want 1", list.Invalid)
	}
}

func TestParse_EmptyInput(t *testing.T) {
	t.Parallel()

	_, err := Parse(strings.NewReader("   \n  "), "contacts.csv")
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("error: got %v, want ErrEmptyInput", err)
	}
}

func TestParse_UnsupportedFormat(t *testing.T) {
	t.Parallel()

	_, err := Parse(strings.NewReader("email\nbob@x.com\n"), "contacts.pdf")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("error: got %v, want ErrUnsupportedFormat", err)
	}
}

func TestParseSpreadsheet(t *testing.T) {
	t.Parallel()

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	cells := map[string]string{
		"A1": "email", "B1": "nom",
		"A2": "bob@x.com", "B2": "Bob",
		"A3": "bad-address", "B3": "Bad",
	}
	for cell, value := range cells {
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			t.Fatalf("failed to set cell %s: %v", cell, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("failed to write workbook: %v", err)
	}

	list, err := Parse(&buf, "contacts.xlsx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(list.Recipients) != 1 {
		t.Fatalf("recipients: got %d, want 1", len(list.Recipients))
	}
	if list.Recipients[0].Email != "bob@x.com" {
		t.Errorf("email: got %q, want %q", list.Recipients[0].Email, "bob@x.com")
	}
	if list.Recipients[0].Fields["nom"] != "Bob" {
		t.Errorf("nom: got %q, want %q", list.Recipients[0].Fields["nom"], "Bob")
	}
	if list.Invalid != 1 {
		t.Errorf("invalid count: got %d, want 1", list.Invalid)
	}
}

func TestParseSpreadsheet_CorruptFile(t *testing.T) {
	t.Parallel()

	_, err := Parse(strings.NewReader("this is not a workbook"), "contacts.xlsx")
	if !errors.Is(err, ErrUnreadableFile) {
		t.Fatalf("error: got %v, want ErrUnreadableFile", err)
	}
}

func TestValidEmail(t *testing.T) {
	t.Parallel()

	valid := []string{"a@x.com", "first.last+tag@sub.domain.org", "UPPER@X.COM"}
	for _, addr := range valid {
		if !ValidEmail(addr) {
			t.Errorf("ValidEmail(%q): got false, want true", addr)
		}
	}

	invalid := []string{"", "plain", "@x.com", "a@", "a@x", "a b@x.com"}
	for _, addr := range invalid {
		if ValidEmail(addr) {
			t.Errorf("ValidEmail(%q): got true, want false", addr)
		}
	}
}
