// Package ingestion reads uploaded CSV and XLSX files into source datasets.
package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/rpattn/colmap/internal/domain"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrEmptyFile is returned when a file holds no header row.
	ErrEmptyFile = errors.New("file contains no data")
	// ErrWorksheetNotFound is returned when the requested worksheet does not exist.
	ErrWorksheetNotFound = errors.New("worksheet not found")
	// ErrTooLarge is returned when the payload exceeds the configured limit.
	ErrTooLarge = errors.New("file too large")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
	utf16LEMark   = []byte{0xFF, 0xFE}
	utf16BEMark   = []byte{0xFE, 0xFF}

	candidateDelimiters = []rune{',', ';', '\t', '|'}
)

const (
	// DefaultMaxBytes bounds the accepted upload size.
	DefaultMaxBytes int64 = 32 << 20

	ctxCheckInterval = 1000
)

// Service parses tabular uploads.
type Service struct {
	maxBytes int64
}

// Option customizes a Service.
type Option func(*Service)

// WithMaxBytes overrides the maximum accepted payload size.
func WithMaxBytes(limit int64) Option {
	return func(s *Service) {
		if limit > 0 {
			s.maxBytes = limit
		}
	}
}

// NewService creates a new ingestion service.
func NewService(opts ...Option) *Service {
	s := &Service{maxBytes: DefaultMaxBytes}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request describes one uploaded file.
type Request struct {
	FileName string
	// Worksheet selects the XLSX sheet; the first sheet is used when empty.
	Worksheet string
	// HeaderRowIndex pins the header row; the first non-empty row is used when nil.
	HeaderRowIndex *int
	Data           io.Reader
}

// Result is the parsed table handed to the mapping session.
type Result struct {
	Columns    []string          `json:"columns"`
	Rows       []domain.Record   `json:"rows"`
	Provenance domain.Provenance `json:"provenance"`
	Delimiter  string            `json:"delimiter,omitempty"`
	Encoding   string            `json:"encoding,omitempty"`
	Worksheets []string          `json:"worksheets,omitempty"`
}

// Dataset converts the result into an immutable source dataset.
func (r Result) Dataset() (domain.SourceDataset, error) {
	return domain.NewSourceDataset(r.Columns, r.Rows, r.Provenance)
}

type tableData struct {
	headers []string
	rows    [][]string
	total   int
	skipped int
}

// Parse reads req.Data and returns its columns and rows.
func (s *Service) Parse(ctx context.Context, req Request) (Result, error) {
	payload, err := s.readPayload(req.Data)
	if err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	result := Result{
		Provenance: domain.Provenance{
			FileName: req.FileName,
			ByteSize: int64(len(payload)),
		},
	}

	var records [][]string
	switch format(req.FileName) {
	case formatCSV:
		decoded, encodingName, err := decodeText(payload)
		if err != nil {
			return Result{}, err
		}
		delimiter := sniffDelimiter(decoded)
		records, err = parseCSV(decoded, delimiter)
		if err != nil {
			return Result{}, err
		}
		result.Delimiter = string(delimiter)
		result.Encoding = encodingName
	case formatExcel:
		var sheet string
		records, sheet, result.Worksheets, err = parseExcel(ctx, payload, req.Worksheet)
		if err != nil {
			return Result{}, err
		}
		result.Provenance.Worksheet = sheet
	default:
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(req.FileName))
	}

	table, err := normalizeTable(records, req.HeaderRowIndex)
	if err != nil {
		return Result{}, err
	}

	result.Columns = table.headers
	result.Rows = make([]domain.Record, 0, len(table.rows))
	for _, row := range table.rows {
		record := make(domain.Record, len(table.headers))
		for i, header := range table.headers {
			record[header] = row[i]
		}
		result.Rows = append(result.Rows, record)
	}
	result.Provenance.TotalRows = table.total
	result.Provenance.SkippedRows = table.skipped
	return result, nil
}

// Worksheets lists the sheets of an XLSX payload in workbook order.
func (s *Service) Worksheets(ctx context.Context, fileName string, data io.Reader) ([]string, error) {
	if format(fileName) != formatExcel {
		return nil, fmt.Errorf("%w: %s has no worksheets", ErrUnsupportedFormat, filepath.Ext(fileName))
	}
	payload, err := s.readPayload(data)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()
	return f.GetSheetList(), nil
}

func (s *Service) readPayload(data io.Reader) ([]byte, error) {
	if data == nil {
		return nil, ErrEmptyFile
	}
	payload, err := io.ReadAll(io.LimitReader(data, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if int64(len(payload)) > s.maxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.maxBytes)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, ErrEmptyFile
	}
	return payload, nil
}

type fileFormat int

const (
	formatUnknown fileFormat = iota
	formatCSV
	formatExcel
)

func format(fileName string) fileFormat {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv", ".tsv", ".txt":
		return formatCSV
	case ".xlsx", ".xlsm":
		return formatExcel
	default:
		return formatUnknown
	}
}

// decodeText returns payload as UTF-8. UTF-16 is recognized by its byte order mark;
// anything else that is not valid UTF-8 is read as Windows-1252.
func decodeText(payload []byte) ([]byte, string, error) {
	var dec *encoding.Decoder
	name := "utf-8"
	switch {
	case bytes.HasPrefix(payload, byteOrderMark):
		return payload[len(byteOrderMark):], name, nil
	case bytes.HasPrefix(payload, utf16LEMark), bytes.HasPrefix(payload, utf16BEMark):
		dec = unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		name = "utf-16"
	case utf8.Valid(payload):
		return payload, name, nil
	default:
		dec = charmap.Windows1252.NewDecoder()
		name = "windows-1252"
	}

	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(payload), dec))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode %s text: %w", name, err)
	}
	return decoded, name, nil
}

// sniffDelimiter picks the candidate occurring most often outside quotes on the first
// non-empty line. Comma wins ties and empty input.
func sniffDelimiter(payload []byte) rune {
	scanner := bufio.NewScanner(bytes.NewReader(payload))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var line string
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			line = scanner.Text()
			break
		}
	}

	counts := make(map[rune]int, len(candidateDelimiters))
	quoted := false
	for _, r := range line {
		if r == '"' {
			quoted = !quoted
			continue
		}
		if !quoted {
			counts[r]++
		}
	}

	best := candidateDelimiters[0]
	for _, candidate := range candidateDelimiters[1:] {
		if counts[candidate] > counts[best] {
			best = candidate
		}
	}
	return best
}

func parseCSV(payload []byte, delimiter rune) ([][]string, error) {
	csvReader := csv.NewReader(bytes.NewReader(payload))
	csvReader.Comma = delimiter
	csvReader.FieldsPerRecord = -1
	csvReader.LazyQuotes = true

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return records, nil
}

func parseExcel(ctx context.Context, payload []byte, worksheet string) ([][]string, string, []string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, "", nil, fmt.Errorf("%w: workbook has no sheets", ErrEmptyFile)
	}

	sheet := sheets[0]
	if worksheet != "" {
		found := false
		for _, name := range sheets {
			if name == worksheet {
				found = true
				break
			}
		}
		if !found {
			return nil, "", sheets, fmt.Errorf("%w: %q", ErrWorksheetNotFound, worksheet)
		}
		sheet = worksheet
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, "", sheets, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records [][]string
	for rows.Next() {
		if len(records)%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, "", sheets, err
			}
		}
		columns, err := rows.Columns()
		if err != nil {
			return nil, "", sheets, fmt.Errorf("failed to read xlsx row %d: %w", len(records)+1, err)
		}
		records = append(records, columns)
	}
	if err := rows.Error(); err != nil {
		return nil, "", sheets, fmt.Errorf("failed to iterate xlsx rows: %w", err)
	}
	return records, sheet, sheets, nil
}

func normalizeTable(records [][]string, headerRowIndex *int) (tableData, error) {
	if len(records) == 0 {
		return tableData{}, ErrEmptyFile
	}

	var headerRow []string
	var candidates [][]string

	if headerRowIndex != nil {
		if *headerRowIndex < 0 || *headerRowIndex >= len(records) {
			return tableData{}, fmt.Errorf("header row index %d out of range", *headerRowIndex)
		}
		if isEmptyRow(records[*headerRowIndex]) {
			return tableData{}, fmt.Errorf("selected header row %d is empty", *headerRowIndex+1)
		}
		headerRow = records[*headerRowIndex]
		candidates = records[*headerRowIndex+1:]
	} else {
		for idx, row := range records {
			if !isEmptyRow(row) {
				headerRow = row
				candidates = records[idx+1:]
				break
			}
		}
	}

	if headerRow == nil {
		return tableData{}, ErrEmptyFile
	}

	headers := sanitizeHeaders(headerRow)
	table := tableData{headers: headers, total: len(candidates)}
	for _, row := range candidates {
		if isEmptyRow(row) {
			table.skipped++
			continue
		}
		table.rows = append(table.rows, padRow(row, len(headers)))
	}
	return table, nil
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// sanitizeHeaders trims labels, names blank ones by position and suffixes duplicates.
// Labels are otherwise kept verbatim since they are shown to the user.
func sanitizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	used := make(map[string]struct{}, len(raw))
	seen := make(map[string]int, len(raw))

	for idx, value := range raw {
		name := strings.TrimSpace(value)
		if name == "" {
			name = fmt.Sprintf("column_%d", idx+1)
		}

		base := name
		for {
			if _, taken := used[name]; !taken {
				break
			}
			seen[base]++
			name = fmt.Sprintf("%s_%d", base, seen[base]+1)
		}
		used[name] = struct{}{}
		headers[idx] = name
	}

	return headers
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}
