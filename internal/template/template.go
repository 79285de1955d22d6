// Package template renders campaign subject and body templates against one
// recipient record at a time.
//
// Placeholders use the form {{identifier}} where identifier is limited to
// [A-Za-z0-9_]+. Values are substituted verbatim, with no escaping and no
// recursive expansion. A placeholder whose key is absent from the record
// renders as the empty string and is reported in the render diagnostics;
// it never fails the render.
package template

import (
	"regexp"
	"sort"

	"github.com/barbaritakodi-cell/sender/internal/contacts"
	"github.com/barbaritakodi-cell/sender/internal/email"
)

// placeholderPattern matches one {{identifier}} placeholder.
var placeholderPattern = regexp.MustCompile(`\{\{([A-Za-z0-9_]+)\}\}`)

// Template is the per-campaign message skeleton. Attachments are shared
// read-only across every rendered message.
type Template struct {
	Subject     string
	Body        string
	HTML        bool
	Attachments []email.Attachment
}

// Rendered is the result of substituting one recipient into a template.
// Missing lists the distinct placeholder identifiers that had no value in
// the record, in order of first appearance.
type Rendered struct {
	Subject string
	Body    string
	Missing []string
}

// Render substitutes the recipient's fields into the subject and body.
// extra carries caller-provided variables such as sender_name and
// sender_email; record fields take precedence over extra on key collisions.
// Rendering is a pure function: the same inputs always produce the same
// output.
func (t *Template) Render(rec contacts.Recipient, extra map[string]string) Rendered {
	var missing []string
	seen := make(map[string]bool)

	expand := func(s string) string {
		return placeholderPattern.ReplaceAllStringFunc(s, func(m string) string {
			key := m[2 : len(m)-2]
			if v, ok := rec.Fields[key]; ok {
				return v
			}
			if key == "email" {
				return rec.Email
			}
			if v, ok := extra[key]; ok {
				return v
			}
			if !seen[key] {
				seen[key] = true
				missing = append(missing, key)
			}
			return ""
		})
	}

	subject := expand(t.Subject)
	body := expand(t.Body)

	return Rendered{Subject: subject, Body: body, Missing: missing}
}

// Vars returns the distinct placeholder identifiers referenced by s, sorted
// alphabetically. Useful for validating a template against the columns of a
// parsed contact list before a run.
func Vars(s string) []string {
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(s, -1) {
		seen[m[1]] = true
	}
	vars := make([]string, 0, len(seen))
	for v := range seen {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	return vars
}

// MissingVars returns the placeholders in s that are not satisfied by the
// given field names.
func MissingVars(s string, available []string) []string {
	have := make(map[string]bool, len(available))
	for _, name := range available {
		have[name] = true
	}
	var missing []string
	for _, v := range Vars(s) {
		if !have[v] {
			missing = append(missing, v)
		}
	}
	return missing
}
