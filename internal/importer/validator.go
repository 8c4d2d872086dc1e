package importer

import (
	"regexp"
	"strings"
)

// Field-level violation messages. Kept as constants so handlers and tests
// agree on the exact wording.
const (
	msgNameRequired    = "name is required"
	msgEmailInvalid    = "email is invalid"
	msgCompanyRequired = "company is required"
)

// emailPattern is a pragmatic syntax check: one @, no whitespace, and a
// dotted domain. Full RFC 5322 parsing accepts addresses no mail provider
// would deliver to, which only produces confusing imports.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizedRow is one data row after trimming and normalization.
// Phone is empty when the row carried no phone number.
type NormalizedRow struct {
	Name    string
	Email   string
	Phone   string
	Company string
}

// ValidateRow normalizes one raw field mapping and checks field-level rules.
// It returns the normalized row together with an ordered list of violations;
// the row is importable only when the list is empty.
//
// Pure function: no I/O, deterministic, safe to call concurrently.
func ValidateRow(raw map[string]string) (NormalizedRow, []string) {
	row := NormalizedRow{
		Name:    strings.TrimSpace(raw["name"]),
		Email:   strings.ToLower(strings.TrimSpace(raw["email"])),
		Phone:   strings.TrimSpace(raw["phone"]),
		Company: strings.TrimSpace(raw["company"]),
	}

	var violations []string
	if row.Name == "" {
		violations = append(violations, msgNameRequired)
	}
	if !emailPattern.MatchString(row.Email) {
		violations = append(violations, msgEmailInvalid)
	}
	if row.Company == "" {
		violations = append(violations, msgCompanyRequired)
	}

	return row, violations
}

// Payload returns the error-record field map for the row. Phone is omitted
// entirely when not present so persisted payloads never carry an empty
// string for it.
func (r NormalizedRow) Payload() RowPayload {
	p := RowPayload{
		"name":    r.Name,
		"email":   r.Email,
		"company": r.Company,
	}
	if r.Phone != "" {
		p["phone"] = r.Phone
	}
	return p
}
