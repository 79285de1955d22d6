// Package contacts parses uploaded contact lists (CSV, spreadsheet or plain
// text) into recipient records for the bulk dispatcher.
package contacts

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

var (
	// ErrEmptyInput indicates the uploaded file contains no data at all.
	ErrEmptyInput = errors.New("contact list is empty")

	// ErrUnreadableFile indicates the file content could not be decoded.
	ErrUnreadableFile = errors.New("contact list could not be read")

	// ErrUnsupportedFormat indicates an unrecognized file extension.
	ErrUnsupportedFormat = errors.New("unsupported contact list format")

	// ErrMissingEmailColumn indicates a tabular file without an email column.
	ErrMissingEmailColumn = errors.New("contact list has no email column")
)

// emailPattern matches a syntactically valid email address.
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// lineSplitPattern splits line-delimited input on runs of the accepted
// delimiters (comma, semicolon, tab).
var lineSplitPattern = regexp.MustCompile(`[,;\t]+`)

// Recipient is one parsed contact. Fields always contains the "email" key;
// tabular inputs contribute one key per extra column. Records are immutable
// after parsing.
type Recipient struct {
	Email  string
	Fields map[string]string
}

// List is the result of parsing a contact file. Invalid counts rows or
// tokens excluded because their email cell was empty or malformed; those are
// never fatal.
type List struct {
	Recipients []Recipient
	Invalid    int
}

// Option adjusts parsing behavior.
type Option func(*parseOptions)

type parseOptions struct {
	delimiter rune
}

// WithDelimiter restricts line-delimited splitting to a single delimiter
// instead of the default, which splits on any of comma, semicolon and tab.
func WithDelimiter(d rune) Option {
	return func(o *parseOptions) {
		o.delimiter = d
	}
}

// Parse reads a contact list, selecting the format from the file extension:
// .csv, .xlsx/.xls (spreadsheet) or .txt (one or more addresses per line).
func Parse(r io.Reader, filename string, opts ...Option) (*List, error) {
	var po parseOptions
	for _, opt := range opts {
		opt(&po)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyInput
	}

	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".csv":
		return parseCSV(data)
	case ".xlsx", ".xls":
		return parseSpreadsheet(data)
	case ".txt":
		return parseLines(data, po.delimiter)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// ValidEmail reports whether the address is syntactically valid. Comparison
// is effectively case-insensitive; addresses are stored as given.
func ValidEmail(address string) bool {
	return emailPattern.MatchString(address)
}

func parseCSV(data []byte) (*List, error) {
	text, err := decodeText(data)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}

	return parseTable(rows)
}

func parseSpreadsheet(data []byte) (*List, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyInput
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}

	return parseTable(rows)
}

// parseTable converts header-plus-rows tabular data into recipients. The
// header must contain an email column (case-insensitive); every other column
// becomes a Fields key. Rows with an empty or invalid email cell are counted
// and skipped.
func parseTable(rows [][]string) (*List, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyInput
	}

	header := make([]string, len(rows[0]))
	emailCol := -1
	for i, name := range rows[0] {
		header[i] = normalizeColumn(name)
		if header[i] == "email" && emailCol < 0 {
			emailCol = i
		}
	}
	if emailCol < 0 {
		return nil, ErrMissingEmailColumn
	}

	list := &List{}
	for _, row := range rows[1:] {
		if len(row) <= emailCol {
			list.Invalid++
			continue
		}
		address := strings.TrimSpace(row[emailCol])
		if address == "" || !ValidEmail(address) {
			list.Invalid++
			continue
		}

		fields := map[string]string{"email": address}
		for i, cell := range row {
			if i == emailCol || i >= len(header) || header[i] == "" {
				continue
			}
			fields[header[i]] = strings.TrimSpace(cell)
		}
		list.Recipients = append(list.Recipients, Recipient{Email: address, Fields: fields})
	}

	return list, nil
}

// parseLines handles line-delimited input: every token that validates as an
// address becomes a recipient with no extra fields. With no delimiter
// override, tokens are split on any run of comma, semicolon or tab, matching
// what mixed exports from address books look like in practice.
func parseLines(data []byte, delimiter rune) (*List, error) {
	text, err := decodeText(data)
	if err != nil {
		return nil, err
	}

	list := &List{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var tokens []string
		if delimiter != 0 {
			tokens = strings.Split(line, string(delimiter))
		} else {
			tokens = lineSplitPattern.Split(line, -1)
		}

		for _, token := range tokens {
			token = strings.TrimSpace(token)
			if token == "" {
				continue
			}
			if !ValidEmail(token) {
				list.Invalid++
				continue
			}
			list.Recipients = append(list.Recipients, Recipient{
				Email:  token,
				Fields: map[string]string{"email": token},
			})
		}
	}

	return list, nil
}

// normalizeColumn maps well-known column name variants onto the canonical
// template field names used by campaign templates.
func normalizeColumn(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	switch {
	case strings.Contains(lower, "email") || strings.Contains(lower, "mail"):
		return "email"
	case strings.Contains(lower, "prénom") || strings.Contains(lower, "prenom") || strings.Contains(lower, "firstname"):
		return "prenom"
	case strings.Contains(lower, "nom") || strings.Contains(lower, "name"):
		return "nom"
	case strings.Contains(lower, "entreprise") || strings.Contains(lower, "company") || strings.Contains(lower, "societe"):
		return "entreprise"
	default:
		return strings.TrimSpace(name)
	}
}

// decodeText returns the content as UTF-8, falling back to Windows-1252 and
// then ISO 8859-1 for legacy exports.
func decodeText(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}
	if decoded, err := charmap.Windows1252.NewDecoder().Bytes(data); err == nil {
		return string(decoded), nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("%w: undecodable text encoding", ErrUnreadableFile)
	}
	return string(decoded), nil
}
