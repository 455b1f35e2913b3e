package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rpattn/colmap/internal/domain"
	"github.com/rpattn/colmap/internal/export"
	"github.com/rpattn/colmap/internal/ingestion"
	"github.com/rpattn/colmap/internal/mapping"
	"github.com/rpattn/colmap/internal/materialize"
	"github.com/rpattn/colmap/internal/profile"
	"github.com/rpattn/colmap/internal/transformations"
)

type convertOptions struct {
	profilePath string
	output      string
	format      string
	worksheet   string
	headerRow   int
	delimiter   string
	strict      bool
}

func newConvertCommand() *cobra.Command {
	opts := convertOptions{headerRow: -1}
	cmd := &cobra.Command{
		Use:   "convert <input>",
		Short: "Convert a CSV or XLSX file with a mapping profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd.Context(), args[0], opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.profilePath, "profile", "p", "", "mapping profile (YAML)")
	flags.StringVarP(&opts.output, "out", "o", "-", "output file, - for stdout")
	flags.StringVar(&opts.format, "format", "", "csv or xlsx (default: from --out extension)")
	flags.StringVar(&opts.worksheet, "worksheet", "", "worksheet to read from an XLSX input")
	flags.IntVar(&opts.headerRow, "header-row", -1, "zero-based header row (default: first non-empty row)")
	flags.StringVar(&opts.delimiter, "delimiter", ";", "CSV output delimiter")
	flags.BoolVar(&opts.strict, "strict", false, "fail when a profile mapping cannot be applied")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

func runConvert(ctx context.Context, input string, opts convertOptions, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	data, err := os.ReadFile(opts.profilePath)
	if err != nil {
		return fmt.Errorf("read profile: %w", err)
	}
	p, err := profile.Parse(data)
	if err != nil {
		return err
	}
	schema, ok := domain.BuiltinSchema(p.Schema)
	if !ok {
		return fmt.Errorf("profile names unknown schema %q", p.Schema)
	}

	dataset, err := readDataset(ctx, input, opts)
	if err != nil {
		return err
	}

	evaluator := transformations.NewEvaluator(transformations.DefaultCacheSize)
	state, report := profile.Apply(mapping.NewState(schema).LoadDataset(dataset), p, evaluator)
	for _, skipped := range report.Skipped {
		fmt.Fprintf(stderr, "skipped %s → %s: %s\n", skipped.Mapping.Source, skipped.Mapping.Target, skipped.Reason)
	}
	for _, warning := range report.Warnings {
		fmt.Fprintf(stderr, "warning: %s\n", warning)
	}
	if opts.strict && len(report.Skipped) > 0 {
		return fmt.Errorf("%d mappings could not be applied", len(report.Skipped))
	}

	edges := state.Edges()
	records := materialize.Materialize(dataset, edges, schema, evaluator)
	header := materialize.HeaderFor(edges, schema)
	if len(header) == 0 {
		return export.ErrNothingToExport
	}

	format, err := outputFormat(opts)
	if err != nil {
		return err
	}
	if opts.output == "-" || opts.output == "" {
		return writeOutput(ctx, stdout, format, header, records, opts)
	}

	file, err := os.Create(opts.output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := writeOutput(ctx, file, format, header, records, opts); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	fmt.Fprintf(stderr, "wrote %d rows to %s (%d applied, %d skipped)\n", len(records), opts.output, report.Applied, len(report.Skipped))
	return nil
}

func readDataset(ctx context.Context, input string, opts convertOptions) (domain.SourceDataset, error) {
	file, err := os.Open(input)
	if err != nil {
		return domain.SourceDataset{}, fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	req := ingestion.Request{
		FileName:  filepath.Base(input),
		Worksheet: opts.worksheet,
		Data:      file,
	}
	if opts.headerRow >= 0 {
		index := opts.headerRow
		req.HeaderRowIndex = &index
	}
	result, err := ingestion.NewService().Parse(ctx, req)
	if err != nil {
		return domain.SourceDataset{}, fmt.Errorf("read %s: %w", input, err)
	}
	return result.Dataset()
}

func outputFormat(opts convertOptions) (export.Format, error) {
	if opts.format != "" {
		return export.ParseFormat(opts.format)
	}
	if strings.EqualFold(filepath.Ext(opts.output), ".xlsx") {
		return export.FormatXLSX, nil
	}
	return export.FormatCSV, nil
}

func writeOutput(ctx context.Context, w io.Writer, format export.Format, header []string, records []domain.OutputRecord, opts convertOptions) error {
	var err error
	switch format {
	case export.FormatXLSX:
		_, err = export.WriteXLSX(ctx, w, header, records)
	default:
		_, err = export.WriteCSV(ctx, w, header, records, delimiterRune(opts.delimiter))
	}
	return err
}

func delimiterRune(raw string) rune {
	if raw == `\t` {
		return '\t'
	}
	for _, r := range raw {
		return r
	}
	return export.DefaultDelimiter
}
