package domain

import (
	"fmt"
	"strings"
)

// FieldKind hints at the value shape a target column expects.
type FieldKind string

const (
	FieldKindText    FieldKind = "TEXT"
	FieldKindNumber  FieldKind = "NUMBER"
	FieldKindBoolean FieldKind = "BOOLEAN"
)

// Built-in target schema names.
const (
	SchemaArtikelen = "artikelen"
	SchemaKlanten   = "klanten"
)

// TargetSchema is the fixed destination column set chosen by the user.
type TargetSchema struct {
	Name    string               `json:"name"`
	Columns []string             `json:"columns"`
	Kinds   map[string]FieldKind `json:"kinds,omitempty"`
}

// NewTargetSchema builds a schema from an ordered, unique column list.
func NewTargetSchema(name string, columns []string) (TargetSchema, error) {
	if strings.TrimSpace(name) == "" {
		return TargetSchema{}, fmt.Errorf("schema name is required")
	}
	seen := make(map[string]struct{}, len(columns))
	copied := make([]string, 0, len(columns))
	kinds := make(map[string]FieldKind, len(columns))
	for _, column := range columns {
		if _, dup := seen[column]; dup {
			return TargetSchema{}, fmt.Errorf("schema %s: duplicate column %q", name, column)
		}
		seen[column] = struct{}{}
		copied = append(copied, column)
		kinds[column] = inferFieldKind(column)
	}
	return TargetSchema{Name: name, Columns: copied, Kinds: kinds}, nil
}

// Has reports whether column belongs to the schema.
func (s TargetSchema) Has(column string) bool {
	for _, c := range s.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// Kind returns the expected value kind for column, defaulting to text.
func (s TargetSchema) Kind(column string) FieldKind {
	if kind, ok := s.Kinds[column]; ok {
		return kind
	}
	return FieldKindText
}

// IndexOf returns the schema position of column or -1.
func (s TargetSchema) IndexOf(column string) int {
	for i, c := range s.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

func inferFieldKind(column string) FieldKind {
	lower := strings.ToLower(column)
	switch {
	case strings.HasSuffix(lower, "?"),
		strings.HasPrefix(lower, "logisch extra veld"),
		strings.HasPrefix(lower, "ev-bool-"),
		strings.Contains(lower, "(ja/nee)"),
		lower == "is beginstock",
		lower == "korting uitgeschakeld",
		lower == "gemarkeerd voor label printer":
		return FieldKindBoolean
	case strings.Contains(lower, "prijs"),
		strings.HasPrefix(lower, "numeriek extra veld"),
		strings.HasPrefix(lower, "ev-num-"),
		strings.HasPrefix(lower, "btw-percentage"),
		strings.Contains(lower, "(aantal)"),
		lower == "minimum bestelhoeveelheid",
		lower == "payment-days":
		return FieldKindNumber
	default:
		return FieldKindText
	}
}

// BuiltinSchema returns one of the predefined schemas by name.
func BuiltinSchema(name string) (TargetSchema, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case SchemaArtikelen:
		return mustSchema(SchemaArtikelen, artikelColumns()), true
	case SchemaKlanten:
		return mustSchema(SchemaKlanten, klantenColumns()), true
	default:
		return TargetSchema{}, false
	}
}

// BuiltinSchemaNames lists the predefined schemas in display order.
func BuiltinSchemaNames() []string {
	return []string{SchemaArtikelen, SchemaKlanten}
}

func mustSchema(name string, columns []string) TargetSchema {
	schema, err := NewTargetSchema(name, columns)
	if err != nil {
		panic(err)
	}
	return schema
}

func numbered(format string, count int) []string {
	out := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		out = append(out, fmt.Sprintf(format, i))
	}
	return out
}

func artikelColumns() []string {
	columns := []string{
		"Actief?", "Stock verwerken?", "Artikelnummer", "Omschrijving", "Omschrijving NL",
		"Omschrijving GB", "Omschrijving DE", "Omschrijving FR", "Omschrijving TR",
		"BTW-percentage",
	}
	columns = append(columns, numbered("Netto verkoopprijs %d", 10)...)
	columns = append(columns,
		"Netto aankoopprijs", "Catalogusprijs", "Artikelnummer fabrikant", "Artikelnummer leverancier",
		"Leveranciersnummer", "merk", "Recupel", "Auvibel", "Bebat", "Reprobel", "Leeggoed",
		"Accijnzen", "Ecoboni", "Barcode", "Rekeningnummer",
	)
	columns = append(columns, numbered("Numeriek extra veld %d", 20)...)
	columns = append(columns, numbered("Alfanumeriek extra veld %d", 20)...)
	columns = append(columns, numbered("Logisch extra veld %d", 20)...)
	columns = append(columns, numbered("Voorraad locatie %d", 9)...)
	columns = append(columns, numbered("Voorraad locatie %d toevoegen", 9)...)
	columns = append(columns,
		"Is beginstock", "Hoofdgroep", "Subgroep", "Eenheid", "Korting uitgeschakeld",
		"Gemarkeerd voor label printer", "Aantal 2", "intrastat-excnt", "intrastat-extreg",
		"intrastat-extgo", "intrastat-exweight", "intrastat-excntori",
	)
	return columns
}

func klantenColumns() []string {
	columns := []string{
		"nr", "company-name", "firstname", "lastname", "address-line-1", "postal", "city",
		"country-code", "email", "lng", "info", "phone", "mobile", "vat", "payment-days",
		"payment-end-month",
	}
	columns = append(columns, numbered("ev-num-%d", 20)...)
	columns = append(columns, numbered("ev-text-%d", 20)...)
	columns = append(columns, numbered("ev-bool-%d", 20)...)
	return columns
}
