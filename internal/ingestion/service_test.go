package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/colmap/internal/domain"
)

func parse(t *testing.T, name string, payload []byte) Result {
	t.Helper()
	result, err := NewService().Parse(context.Background(), Request{FileName: name, Data: bytes.NewReader(payload)})
	require.NoError(t, err)
	return result
}

func workbook(t *testing.T, sheets map[string][][]any, order ...string) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	for i, name := range order {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", name))
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for r, row := range sheets[name] {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(name, cell, &row))
		}
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParseCSVSniffsSemicolon(t *testing.T) {
	result := parse(t, "klanten.csv", []byte("Naam;Stad;Opmerking\nJan;Gent;\"a;b\"\n\n;;\nPiet;Brugge\n"))

	assert.Equal(t, []string{"Naam", "Stad", "Opmerking"}, result.Columns)
	assert.Equal(t, ";", result.Delimiter)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, domain.Record{"Naam": "Jan", "Stad": "Gent", "Opmerking": "a;b"}, result.Rows[0])
	assert.Equal(t, "", result.Rows[1]["Opmerking"])
	assert.Equal(t, 3, result.Provenance.TotalRows)
	assert.Equal(t, 1, result.Provenance.SkippedRows)
	assert.Equal(t, "klanten.csv", result.Provenance.FileName)
}

func TestParseCSVStripsBOMAndKeepsLabels(t *testing.T) {
	payload := append([]byte{0xEF, 0xBB, 0xBF}, []byte("First Name, Name ,Name,\nA,B,C,D\n")...)

	result := parse(t, "people.csv", payload)

	assert.Equal(t, []string{"First Name", "Name", "Name_2", "column_4"}, result.Columns)
	assert.Equal(t, "utf-8", result.Encoding)
	assert.Equal(t, ",", result.Delimiter)
}

func TestParseCSVDecodesWindows1252(t *testing.T) {
	payload := []byte("Omschrijving\tPrijs\nCaf\xe9\t3\n")

	result := parse(t, "artikelen.txt", payload)

	assert.Equal(t, "windows-1252", result.Encoding)
	assert.Equal(t, "\t", result.Delimiter)
	assert.Equal(t, "Café", result.Rows[0]["Omschrijving"])
}

func TestParseCSVDecodesUTF16(t *testing.T) {
	text := "A,B\n1,2\n"
	payload := []byte{0xFF, 0xFE}
	for _, r := range text {
		payload = append(payload, byte(r), 0)
	}

	result := parse(t, "export.csv", payload)

	assert.Equal(t, "utf-16", result.Encoding)
	assert.Equal(t, []string{"A", "B"}, result.Columns)
	assert.Equal(t, "2", result.Rows[0]["B"])
}

func TestParseExplicitHeaderRow(t *testing.T) {
	index := 1
	result, err := NewService().Parse(context.Background(), Request{
		FileName:       "report.csv",
		HeaderRowIndex: &index,
		Data:           strings.NewReader("Report 2024\nCode,Label\nX1,One\n"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Code", "Label"}, result.Columns)
	assert.Len(t, result.Rows, 1)
}

func TestParseExcelSelectsWorksheet(t *testing.T) {
	payload := workbook(t, map[string][][]any{
		"Intro":  {{"Nothing here"}},
		"Export": {{"Artikel", "Prijs"}, {"Bout", 1.5}, {""}, {"Moer", 2}},
	}, "Intro", "Export")

	result, err := NewService().Parse(context.Background(), Request{
		FileName:  "artikelen.xlsx",
		Worksheet: "Export",
		Data:      bytes.NewReader(payload),
	})
	require.NoError(t, err)

	assert.Equal(t, "Export", result.Provenance.Worksheet)
	assert.Equal(t, []string{"Intro", "Export"}, result.Worksheets)
	assert.Equal(t, []string{"Artikel", "Prijs"}, result.Columns)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "Moer", result.Rows[1]["Artikel"])
	assert.Equal(t, 1, result.Provenance.SkippedRows)

	first := parse(t, "artikelen.xlsx", payload)
	assert.Equal(t, "Intro", first.Provenance.Worksheet)

	names, err := NewService().Worksheets(context.Background(), "artikelen.xlsx", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, []string{"Intro", "Export"}, names)
}

func TestParseErrors(t *testing.T) {
	svc := NewService(WithMaxBytes(16))
	ctx := context.Background()

	_, err := svc.Parse(ctx, Request{FileName: "data.dbf", Data: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = svc.Parse(ctx, Request{FileName: "data.csv", Data: strings.NewReader("  \n\n")})
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = svc.Parse(ctx, Request{FileName: "data.csv", Data: strings.NewReader(strings.Repeat("a,b\n", 10))})
	assert.ErrorIs(t, err, ErrTooLarge)

	payload := workbook(t, map[string][][]any{"Only": {{"A"}}}, "Only")
	_, err = NewService().Parse(ctx, Request{FileName: "x.xlsx", Worksheet: "Missing", Data: bytes.NewReader(payload)})
	assert.ErrorIs(t, err, ErrWorksheetNotFound)
	assert.Equal(t, http.StatusNotFound, StatusFor(err))
}

func TestSanitizeHeaders(t *testing.T) {
	assert.Equal(t,
		[]string{"A", "A_2", "A_2_2", "A_3", "column_5"},
		sanitizeHeaders([]string{"A", "A_2", "A_2", "A", " "}),
	)
}

func TestInspectHandler(t *testing.T) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "people.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("Name;Mail\nabc;a@example.com\n"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/files/inspect", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()

	NewHTTPHandler(NewService()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var inspection Inspection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inspection))
	assert.Equal(t, []string{"Name", "Mail"}, inspection.Columns)
	assert.Len(t, inspection.Preview, 1)
}

func TestInspectHandlerRejectsGet(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHTTPHandler(NewService()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
