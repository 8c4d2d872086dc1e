package importer

import (
	"reflect"
	"testing"
)

func TestValidateRow(t *testing.T) {
	tests := []struct {
		name           string
		raw            map[string]string
		want           NormalizedRow
		wantViolations []string
	}{
		{
			name: "valid row",
			raw:  map[string]string{"name": "Ada Lovelace", "email": "ada@example.com", "phone": "555-0100", "company": "Analytical Engines"},
			want: NormalizedRow{Name: "Ada Lovelace", Email: "ada@example.com", Phone: "555-0100", Company: "Analytical Engines"},
		},
		{
			name: "trims whitespace and lowercases email",
			raw:  map[string]string{"name": "  Ada  ", "email": " ADA@Example.COM ", "phone": " 555-0100 ", "company": " Acme "},
			want: NormalizedRow{Name: "Ada", Email: "ada@example.com", Phone: "555-0100", Company: "Acme"},
		},
		{
			name:           "missing name",
			raw:            map[string]string{"email": "ada@example.com", "company": "Acme"},
			want:           NormalizedRow{Email: "ada@example.com", Company: "Acme"},
			wantViolations: []string{"name is required"},
		},
		{
			name:           "whitespace-only name",
			raw:            map[string]string{"name": "   ", "email": "ada@example.com", "company": "Acme"},
			want:           NormalizedRow{Email: "ada@example.com", Company: "Acme"},
			wantViolations: []string{"name is required"},
		},
		{
			name:           "email missing at sign",
			raw:            map[string]string{"name": "Ada", "email": "ada.example.com", "company": "Acme"},
			want:           NormalizedRow{Name: "Ada", Email: "ada.example.com", Company: "Acme"},
			wantViolations: []string{"email is invalid"},
		},
		{
			name:           "email missing domain dot",
			raw:            map[string]string{"name": "Ada", "email": "ada@example", "company": "Acme"},
			want:           NormalizedRow{Name: "Ada", Email: "ada@example", Company: "Acme"},
			wantViolations: []string{"email is invalid"},
		},
		{
			name:           "email with embedded whitespace",
			raw:            map[string]string{"name": "Ada", "email": "ada lovelace@example.com", "company": "Acme"},
			want:           NormalizedRow{Name: "Ada", Email: "ada lovelace@example.com", Company: "Acme"},
			wantViolations: []string{"email is invalid"},
		},
		{
			name:           "missing company",
			raw:            map[string]string{"name": "Ada", "email": "ada@example.com"},
			want:           NormalizedRow{Name: "Ada", Email: "ada@example.com"},
			wantViolations: []string{"company is required"},
		},
		{
			name:           "everything missing",
			raw:            map[string]string{},
			want:           NormalizedRow{},
			wantViolations: []string{"name is required", "email is invalid", "company is required"},
		},
		{
			name: "phone is optional",
			raw:  map[string]string{"name": "Ada", "email": "ada@example.com", "company": "Acme"},
			want: NormalizedRow{Name: "Ada", Email: "ada@example.com", Company: "Acme"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, violations := ValidateRow(tt.raw)
			if got != tt.want {
				t.Errorf("row = %+v, want %+v", got, tt.want)
			}
			if !reflect.DeepEqual(violations, tt.wantViolations) {
				t.Errorf("violations = %v, want %v", violations, tt.wantViolations)
			}
		})
	}
}

func TestValidateRowDeterministic(t *testing.T) {
	raw := map[string]string{"name": " Ada ", "email": "ADA@EXAMPLE.COM", "company": "Acme"}

	first, _ := ValidateRow(raw)
	second, _ := ValidateRow(map[string]string{
		"name": first.Name, "email": first.Email, "phone": first.Phone, "company": first.Company,
	})

	if first != second {
		t.Errorf("normalization not idempotent: %+v then %+v", first, second)
	}
}

func TestPayload(t *testing.T) {
	t.Run("includes phone when present", func(t *testing.T) {
		row := NormalizedRow{Name: "Ada", Email: "ada@example.com", Phone: "555-0100", Company: "Acme"}
		want := RowPayload{"name": "Ada", "email": "ada@example.com", "phone": "555-0100", "company": "Acme"}
		if got := row.Payload(); !reflect.DeepEqual(got, want) {
			t.Errorf("Payload() = %v, want %v", got, want)
		}
	})

	t.Run("omits phone when empty", func(t *testing.T) {
		row := NormalizedRow{Name: "Ada", Email: "ada@example.com", Company: "Acme"}
		got := row.Payload()
		if _, ok := got["phone"]; ok {
			t.Errorf("Payload() = %v, want no phone key", got)
		}
	})
}
