// Package export serializes materialized records to CSV or XLSX files and serves them
// through short-lived signed download links.
package export

import (
	"bufio"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/colmap/internal/domain"
	"github.com/rpattn/colmap/pkg/validator"
)

// Format selects the output file type.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// DefaultDelimiter separates CSV fields.
const DefaultDelimiter = ';'

const (
	defaultSheetName   = "Export"
	defaultMaxWarnings = 100
	ctxCheckInterval   = 1000
)

var (
	// ErrNothingToExport is returned when no edge produced a column.
	ErrNothingToExport = errors.New("no mapped columns to export")
	// ErrFileNotFound is returned for unknown or pruned export files.
	ErrFileNotFound = errors.New("export file not found")
	// ErrUnsupportedFormat is returned for formats other than csv and xlsx.
	ErrUnsupportedFormat = errors.New("unsupported export format")
)

// Service writes export files into a directory and tracks them for download.
type Service struct {
	exportDir string
	delimiter rune
	retention time.Duration
	now       func() time.Time
	validator *validator.RecordValidator

	downloadSigner *downloadSigner

	mu    sync.RWMutex
	files map[uuid.UUID]File
}

type Option func(*Service)

func WithExportDirectory(dir string) Option {
	return func(s *Service) {
		if strings.TrimSpace(dir) != "" {
			s.exportDir = filepath.Clean(dir)
		}
	}
}

// WithDelimiter overrides the CSV field separator.
func WithDelimiter(delimiter rune) Option {
	return func(s *Service) {
		if delimiter != 0 {
			s.delimiter = delimiter
		}
	}
}

// WithRetention sets how long written files stay downloadable.
func WithRetention(retention time.Duration) Option {
	return func(s *Service) {
		if retention > 0 {
			s.retention = retention
		}
	}
}

// WithDownloadTokenTTL customizes the TTL for generated download links.
func WithDownloadTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.downloadSigner = newDownloadSigner(ttl)
		}
	}
}

func NewService(opts ...Option) *Service {
	service := &Service{
		exportDir: filepath.Join(os.TempDir(), "colmap-exports"),
		delimiter: DefaultDelimiter,
		retention: time.Hour,
		now:       time.Now,
		validator: validator.NewRecordValidator(defaultMaxWarnings),
		files:     map[uuid.UUID]File{},
	}
	for _, opt := range opts {
		opt(service)
	}
	if service.downloadSigner == nil {
		service.downloadSigner = newDownloadSigner(5 * time.Minute)
	}
	return service
}

// Request describes one export.
type Request struct {
	Records []domain.OutputRecord
	// Header is used when Records is empty so the file still carries column names.
	Header   []string
	Schema   domain.TargetSchema
	FileName string
	Format   Format
}

// File describes a written export.
type File struct {
	ID        uuid.UUID                  `json:"id"`
	Name      string                     `json:"name"`
	Path      string                     `json:"-"`
	MimeType  string                     `json:"mimeType"`
	Rows      int                        `json:"rows"`
	Bytes     int64                      `json:"bytes"`
	Columns   []string                   `json:"columns"`
	Summary   validator.ValidationResult `json:"summary"`
	CreatedAt time.Time                  `json:"createdAt"`
}

// Write serializes req into the export directory. The file is written to a temp path and
// renamed into place once complete.
func (s *Service) Write(ctx context.Context, req Request) (File, error) {
	header := req.Header
	if len(req.Records) > 0 {
		header = req.Records[0].Columns
	}
	if len(header) == 0 {
		return File{}, ErrNothingToExport
	}
	format := req.Format
	if format == "" {
		format = FormatCSV
	}
	if format != FormatCSV && format != FormatXLSX {
		return File{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err := s.ensureExportDirectory(); err != nil {
		return File{}, err
	}

	id := uuid.New()
	tempFile, err := os.CreateTemp(s.exportDir, fmt.Sprintf("%s-*.%s", id, format))
	if err != nil {
		return File{}, fmt.Errorf("create temp export file: %w", err)
	}
	tempPath := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = tempFile.Close()
			_ = os.Remove(tempPath)
		}
	}()

	var written int64
	switch format {
	case FormatCSV:
		written, err = WriteCSV(ctx, tempFile, header, req.Records, s.delimiter)
	case FormatXLSX:
		written, err = WriteXLSX(ctx, tempFile, header, req.Records)
	}
	if err != nil {
		return File{}, err
	}
	if err := tempFile.Sync(); err != nil {
		return File{}, fmt.Errorf("sync export file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return File{}, fmt.Errorf("close export file: %w", err)
	}

	name := finalFileName(req.FileName, req.Schema.Name, format)
	finalPath := filepath.Join(s.exportDir, fmt.Sprintf("%s-%s", id, name))
	if err := os.Rename(tempPath, finalPath); err != nil {
		return File{}, fmt.Errorf("promote export file: %w", err)
	}
	cleanup = false

	file := File{
		ID:        id,
		Name:      name,
		Path:      finalPath,
		MimeType:  mimeType(format),
		Rows:      len(req.Records),
		Bytes:     written,
		Columns:   append([]string(nil), header...),
		Summary:   s.Summarize(req.Records, req.Schema),
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.files[id] = file
	s.mu.Unlock()

	log.Printf("[export] %s written (rows=%d bytes=%d warnings=%d)", file.Name, file.Rows, file.Bytes, len(file.Summary.Warnings))
	return file, nil
}

// Summarize checks records against the kinds of the schema's columns.
func (s *Service) Summarize(records []domain.OutputRecord, schema domain.TargetSchema) validator.ValidationResult {
	definitions := make(map[string]validator.FieldDefinition, len(schema.Columns))
	for _, column := range schema.Columns {
		definitions[column] = validator.FieldDefinition{Type: validator.FieldType(schema.Kind(column))}
	}
	rows := make([]map[string]any, len(records))
	for i, record := range records {
		rows[i] = record.Values
	}
	return s.validator.ValidateRecords(rows, definitions)
}

// WriteCSV writes header and records with delimiter. Double quotes inside string values are
// escaped with a backslash before standard CSV quoting is applied, which is the layout
// expected by the import side of the target system.
func WriteCSV(ctx context.Context, w io.Writer, header []string, records []domain.OutputRecord, delimiter rune) (int64, error) {
	buffered := bufio.NewWriterSize(w, 1<<20)
	counter := &countingWriter{writer: buffered}
	csvWriter := csv.NewWriter(counter)
	csvWriter.Comma = delimiter

	if err := csvWriter.Write(header); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	row := make([]string, len(header))
	for i, record := range records {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		for j, column := range header {
			value, _ := record.Get(column)
			row[j] = escapeQuotes(formatValue(value), value)
		}
		if err := csvWriter.Write(row); err != nil {
			return 0, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return 0, fmt.Errorf("flush rows: %w", err)
	}
	if err := buffered.Flush(); err != nil {
		return 0, fmt.Errorf("flush buffered rows: %w", err)
	}
	return counter.count, nil
}

// WriteXLSX writes header and records to a single-sheet workbook using the streaming writer.
func WriteXLSX(ctx context.Context, w io.Writer, header []string, records []domain.OutputRecord) (int64, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", defaultSheetName); err != nil {
		return 0, fmt.Errorf("name sheet: %w", err)
	}
	stream, err := f.NewStreamWriter(defaultSheetName)
	if err != nil {
		return 0, fmt.Errorf("open sheet writer: %w", err)
	}

	cells := make([]any, len(header))
	for i, column := range header {
		cells[i] = column
	}
	if err := stream.SetRow("A1", cells); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	for i, record := range records {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		row := make([]any, len(header))
		for j, column := range header {
			value, _ := record.Get(column)
			row[j] = formatValue(value)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return 0, fmt.Errorf("address row %d: %w", i+1, err)
		}
		if err := stream.SetRow(cell, row); err != nil {
			return 0, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := stream.Flush(); err != nil {
		return 0, fmt.Errorf("flush sheet: %w", err)
	}

	counter := &countingWriter{writer: bufio.NewWriter(w)}
	if _, err := f.WriteTo(counter); err != nil {
		return 0, fmt.Errorf("write workbook: %w", err)
	}
	if err := counter.writer.Flush(); err != nil {
		return 0, fmt.Errorf("flush workbook: %w", err)
	}
	return counter.count, nil
}

// Lookup returns a tracked file that has not expired.
func (s *Service) Lookup(id uuid.UUID) (File, error) {
	s.mu.RLock()
	file, ok := s.files[id]
	s.mu.RUnlock()
	if !ok || s.expired(file) {
		return File{}, ErrFileNotFound
	}
	return file, nil
}

// BuildDownloadURL signs a short-lived download URL for file.
func (s *Service) BuildDownloadURL(file File) string {
	token := s.downloadSigner.Sign(file.ID, s.now())
	values := url.Values{}
	values.Set("token", token)
	return fmt.Sprintf("/api/exports/%s?%s", file.ID.String(), values.Encode())
}

// ValidateDownloadToken ensures the token is valid for the given file.
func (s *Service) ValidateDownloadToken(id uuid.UUID, token string) error {
	return s.downloadSigner.Verify(id, token, s.now())
}

// Open opens a tracked file for streaming to the client.
func (s *Service) Open(id uuid.UUID) (File, *os.File, error) {
	file, err := s.Lookup(id)
	if err != nil {
		return File{}, nil, err
	}
	handle, err := os.Open(file.Path)
	if err != nil {
		return File{}, nil, fmt.Errorf("open export file: %w", err)
	}
	return file, handle, nil
}

// Prune removes files older than the retention period and returns how many were removed.
func (s *Service) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, file := range s.files {
		if !s.expired(file) {
			continue
		}
		if err := os.Remove(file.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("[export] failed to remove %s: %v", file.Path, err)
			continue
		}
		delete(s.files, id)
		removed++
	}
	return removed
}

// RunPruner prunes every interval until ctx is done.
func (s *Service) RunPruner(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Prune(); n > 0 {
				log.Printf("[export] pruned %d expired files", n)
			}
		}
	}
}

func (s *Service) expired(file File) bool {
	return s.now().Sub(file.CreatedAt) > s.retention
}

func (s *Service) ensureExportDirectory() error {
	if strings.TrimSpace(s.exportDir) == "" {
		return errors.New("export directory is not configured")
	}
	if err := os.MkdirAll(s.exportDir, 0o755); err != nil {
		return fmt.Errorf("ensure export directory: %w", err)
	}
	return nil
}

// finalFileName derives the download name from the requested name or the schema name.
func finalFileName(requested, schemaName string, format Format) string {
	base := strings.TrimSuffix(strings.TrimSpace(requested), filepath.Ext(strings.TrimSpace(requested)))
	base = sanitizeFileComponent(base)
	if base == "" {
		base = sanitizeFileComponent(schemaName)
	}
	if base == "" {
		base = "export"
	}
	return fmt.Sprintf("%s.%s", base, format)
}

func mimeType(format Format) string {
	if format == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// ParseFormat accepts "csv" or "xlsx" in any case; empty means csv.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, raw)
	}
}

func sanitizeFileComponent(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	builder := strings.Builder{}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteRune('-')
		}
	}
	return strings.Trim(builder.String(), "-")
}

func escapeQuotes(formatted string, original any) string {
	if _, ok := original.(string); !ok {
		return formatted
	}
	return strings.ReplaceAll(formatted, `"`, `\"`)
}

type countingWriter struct {
	writer *bufio.Writer
	count  int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.writer.Write(p)
	c.count += int64(n)
	return n, err
}

func formatValue(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case bool:
		if v {
			return "true"
		}
		return "false"
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int, int32, int64, uint, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case []byte:
		return string(v)
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", v)
	}
}

type downloadSigner struct {
	secret []byte
	ttl    time.Duration
}

func newDownloadSigner(ttl time.Duration) *downloadSigner {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &downloadSigner{secret: []byte(uuid.New().String()), ttl: ttl}
}

func (s *downloadSigner) Sign(fileID uuid.UUID, now time.Time) string {
	expires := now.Add(s.ttl).Unix()
	payload := fmt.Sprintf("%s:%d", fileID.String(), expires)
	raw := fmt.Sprintf("%s:%s", payload, s.signature(payload))
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func (s *downloadSigner) Verify(fileID uuid.UUID, token string, now time.Time) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("missing download token")
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return fmt.Errorf("decode token: %w", err)
	}
	parts := strings.Split(string(decoded), ":")
	if len(parts) != 3 {
		return errors.New("invalid token format")
	}
	if parts[0] != fileID.String() {
		return errors.New("token does not match export file")
	}
	expires, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid token expiration: %w", err)
	}
	if now.Unix() > expires {
		return errors.New("download token expired")
	}
	expected, _ := hex.DecodeString(s.signature(parts[0] + ":" + parts[1]))
	provided, err := hex.DecodeString(parts[2])
	if err != nil {
		return fmt.Errorf("invalid token signature: %w", err)
	}
	if !hmac.Equal(expected, provided) {
		return errors.New("invalid download token")
	}
	return nil
}

func (s *downloadSigner) signature(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
