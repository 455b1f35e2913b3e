package validator

import (
	"testing"
)

func TestRecordValidatorFieldTypes(t *testing.T) {
	v := NewRecordValidator(0)
	definitions := map[string]FieldDefinition{
		"price":  {Type: FieldTypeNumber},
		"active": {Type: FieldTypeBoolean},
		"name":   {Type: FieldTypeText, MaxLength: 5},
	}

	findings := v.ValidateProperties(map[string]any{"price": "12,50", "active": "Ja", "name": "Bout"}, definitions)
	if len(findings) != 0 {
		t.Fatalf("expected valid record, got %+v", findings)
	}

	findings = v.ValidateProperties(map[string]any{"price": "twelve", "active": "maybe", "name": "Moeren"}, definitions)
	if len(findings) != 3 {
		t.Fatalf("expected three findings, got %+v", findings)
	}
	if findings[0].Field != "active" || findings[1].Field != "name" || findings[2].Field != "price" {
		t.Fatalf("expected findings ordered by field name, got %+v", findings)
	}
}

func TestRecordValidatorIgnoresBlankAndUnknown(t *testing.T) {
	v := NewRecordValidator(0)
	definitions := map[string]FieldDefinition{"price": {Type: FieldTypeNumber}}

	findings := v.ValidateProperties(map[string]any{"price": "  ", "other": "x"}, definitions)
	if len(findings) != 0 {
		t.Fatalf("expected blank and undefined fields to pass, got %+v", findings)
	}
}

func TestRecordValidatorTruncates(t *testing.T) {
	v := NewRecordValidator(2)
	definitions := map[string]FieldDefinition{"price": {Type: FieldTypeNumber}}
	records := []map[string]any{{"price": "a"}, {"price": "1"}, {"price": "b"}, {"price": "c"}}

	result := v.ValidateRecords(records, definitions)
	if result.IsValid {
		t.Fatalf("expected invalid result")
	}
	if len(result.Warnings) != 2 || !result.Truncated {
		t.Fatalf("expected two warnings and truncation, got %+v", result)
	}
	if result.Warnings[1].Row != 3 {
		t.Fatalf("expected second warning on row 3, got %d", result.Warnings[1].Row)
	}
}
