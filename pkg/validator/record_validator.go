package validator

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// FieldType is the value shape expected by a target column.
type FieldType string

const (
	FieldTypeText    FieldType = "TEXT"
	FieldTypeNumber  FieldType = "NUMBER"
	FieldTypeBoolean FieldType = "BOOLEAN"
)

// RecordValidator checks exported values against target column types. Findings are
// warnings: the export is written regardless.
type RecordValidator struct {
	maxWarnings int
}

// NewRecordValidator creates a validator reporting at most maxWarnings findings per run.
// A non-positive limit reports everything.
func NewRecordValidator(maxWarnings int) *RecordValidator {
	return &RecordValidator{maxWarnings: maxWarnings}
}

// FieldDefinition represents a field definition for validation
type FieldDefinition struct {
	Type      FieldType `json:"type"`
	MaxLength int       `json:"maxLength,omitempty"`
}

// ValidationError represents a validation finding
type ValidationError struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// ValidationResult represents the result of validation
type ValidationResult struct {
	IsValid   bool              `json:"isValid"`
	Warnings  []ValidationError `json:"warnings"`
	Truncated bool              `json:"truncated,omitempty"`
}

// ValidateProperties validates one record. Fields without a definition are not checked.
func (v *RecordValidator) ValidateProperties(properties map[string]any, fieldDefinitions map[string]FieldDefinition) []ValidationError {
	names := make([]string, 0, len(properties))
	for name := range properties {
		names = append(names, name)
	}
	sort.Strings(names)

	var findings []ValidationError
	for _, name := range names {
		def, ok := fieldDefinitions[name]
		if !ok {
			continue
		}
		value := properties[name]
		if err := validateFieldType(name, value, def.Type); err != nil {
			findings = append(findings, ValidationError{Field: name, Message: err.Error(), Value: value})
			continue
		}
		if def.MaxLength > 0 {
			if text := fmt.Sprint(value); len([]rune(text)) > def.MaxLength {
				findings = append(findings, ValidationError{
					Field:   name,
					Message: fmt.Sprintf("field '%s' length %d is greater than maximum %d", name, len([]rune(text)), def.MaxLength),
					Value:   value,
				})
			}
		}
	}
	return findings
}

// ValidateRecords validates every record; Row is 1-based.
func (v *RecordValidator) ValidateRecords(records []map[string]any, fieldDefinitions map[string]FieldDefinition) ValidationResult {
	result := ValidationResult{IsValid: true, Warnings: []ValidationError{}}
	for i, record := range records {
		for _, finding := range v.ValidateProperties(record, fieldDefinitions) {
			result.IsValid = false
			if v.maxWarnings > 0 && len(result.Warnings) >= v.maxWarnings {
				result.Truncated = true
				return result
			}
			finding.Row = i + 1
			result.Warnings = append(result.Warnings, finding)
		}
	}
	return result
}

func validateFieldType(fieldName string, value any, expectedType FieldType) error {
	if isBlank(value) {
		return nil
	}

	switch FieldType(strings.ToUpper(string(expectedType))) {
	case FieldTypeText, "":
		return nil
	case FieldTypeNumber:
		if !isNumber(value) {
			return fmt.Errorf("field '%s' must be a number, got %v", fieldName, value)
		}
	case FieldTypeBoolean:
		if !isBoolean(value) {
			return fmt.Errorf("field '%s' must be a boolean, got %v", fieldName, value)
		}
	default:
		return fmt.Errorf("unknown field type: %s", expectedType)
	}
	return nil
}

func isBlank(value any) bool {
	if value == nil {
		return true
	}
	s, ok := value.(string)
	return ok && strings.TrimSpace(s) == ""
}

func isNumber(value any) bool {
	switch v := value.(type) {
	case float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case string:
		s := strings.TrimSpace(v)
		if _, err := strconv.ParseFloat(s, 64); err == nil {
			return true
		}
		// decimal comma, as written by Dutch locales
		if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
			_, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
			return err == nil
		}
		return false
	default:
		return false
	}
}

var booleanWords = map[string]struct{}{
	"true": {}, "false": {}, "1": {}, "0": {}, "yes": {}, "no": {},
	"ja": {}, "nee": {}, "j": {}, "n": {}, "y": {}, "waar": {}, "onwaar": {},
}

func isBoolean(value any) bool {
	switch v := value.(type) {
	case bool:
		return true
	case int:
		return v == 0 || v == 1
	case int64:
		return v == 0 || v == 1
	case float64:
		return v == 0 || v == 1
	case string:
		_, ok := booleanWords[strings.ToLower(strings.TrimSpace(v))]
		return ok
	default:
		return false
	}
}
