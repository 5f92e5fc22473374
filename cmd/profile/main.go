// Command profile runs the engine over a local file without the HTTP
// server: it detects the schema, optionally normalizes, aggregates and
// evaluates a flag, then prints a JSON report.
//
//	profile -in ledger.xlsx -normalize -aggregate monthly.json -out clean.csv
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/San-2310/hsbc-hack/internal/aggregation"
	"github.com/San-2310/hsbc-hack/internal/exporter"
	"github.com/San-2310/hsbc-hack/internal/ingestion"
	"github.com/San-2310/hsbc-hack/internal/services"
	"github.com/San-2310/hsbc-hack/internal/validation"
	"github.com/San-2310/hsbc-hack/pkg/contracts/domain"
)

type options struct {
	in        string
	normalize bool
	rules     string
	aggregate string
	flagRule  string
	out       string
	reportDir string
	verbose   bool
}

// report is printed to stdout as JSON
type report struct {
	Dataset     domain.DatasetInfo         `json:"dataset"`
	Schema      domain.SchemaDocument      `json:"schema"`
	Normalized  *domain.DatasetInfo        `json:"normalized,omitempty"`
	Log         domain.NormalizationLog    `json:"normalization_log,omitempty"`
	Aggregation *domain.AggregationResult  `json:"aggregation,omitempty"`
	Failure     *domain.AggregationFailure `json:"aggregation_error,omitempty"`
	Flag        *domain.FlagResult         `json:"flag,omitempty"`
	Files       []string                   `json:"files,omitempty"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		slog.Error("profile failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("profile", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.in, "in", "", "input file (.csv, .xlsx, .xls or .json)")
	fs.BoolVar(&o.normalize, "normalize", false, "apply the default normalization")
	fs.StringVar(&o.rules, "rules", "", "JSON file with an array of normalization rules")
	fs.StringVar(&o.aggregate, "aggregate", "", "JSON file with an aggregation config")
	fs.StringVar(&o.flagRule, "flag", "", "JSON file with a flag rule")
	fs.StringVar(&o.out, "out", "", "write the final dataset here (.csv or .xlsx)")
	fs.StringVar(&o.reportDir, "report-dir", "", "write aggregation and flagged rows as CSV into this directory")
	fs.BoolVar(&o.verbose, "v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.in == "" {
		return o, errors.New("-in is required")
	}
	if o.normalize && o.rules != "" {
		return o, errors.New("-normalize and -rules are mutually exclusive")
	}
	return o, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	ingestCfg := ingestion.DefaultConfig()
	validator := validation.NewFileValidator(ingestCfg.MaxFileSize, logger)
	if _, err := validator.ValidateInput(o.in); err != nil {
		return fmt.Errorf("ingest %s: %w", o.in, err)
	}
	var outFormat exporter.Format
	if o.out != "" {
		if outFormat, err = validator.ValidateOutputFile(o.out); err != nil {
			return err
		}
	}
	if o.reportDir != "" {
		if err := validator.ValidateOutputDirectory(o.reportDir); err != nil {
			return err
		}
	}

	engine := services.NewEngineService(services.EngineConfig{}, services.EngineDeps{
		Adapter: ingestion.NewAdapter(ingestCfg, logger),
	}, logger)

	info, err := engine.Ingest(ctx, ingestion.FileSource{Path: o.in})
	if err != nil {
		return fmt.Errorf("ingest %s: %w", o.in, err)
	}
	rep := report{Dataset: info}
	current := info.ID

	switch {
	case o.normalize:
		res, err := engine.NormalizeDefault(ctx, current)
		if err != nil {
			return fmt.Errorf("normalize: %w", err)
		}
		rep.Normalized, rep.Log, current = &res.Dataset, res.Log, res.Dataset.ID
	case o.rules != "":
		var rules []json.RawMessage
		if err := readJSON(o.rules, &rules); err != nil {
			return err
		}
		res, err := engine.Normalize(ctx, current, rules)
		if err != nil {
			return fmt.Errorf("normalize: %w", err)
		}
		rep.Normalized, rep.Log, current = &res.Dataset, res.Log, res.Dataset.ID
	}

	if rep.Schema, err = engine.DetectSchema(ctx, current); err != nil {
		return fmt.Errorf("detect schema: %w", err)
	}

	if o.aggregate != "" {
		raw, err := os.ReadFile(o.aggregate)
		if err != nil {
			return fmt.Errorf("read %s: %w", o.aggregate, err)
		}
		result, err := engine.Aggregate(ctx, current, raw)
		if err != nil {
			failure := aggregation.Failure(err, time.Now())
			rep.Failure = &failure
			logger.WarnContext(ctx, "aggregation failed", slog.String("error", err.Error()))
		} else {
			rep.Aggregation = result
		}
	}

	if o.flagRule != "" {
		raw, err := os.ReadFile(o.flagRule)
		if err != nil {
			return fmt.Errorf("read %s: %w", o.flagRule, err)
		}
		result, err := engine.EvaluateFlag(ctx, current, raw)
		if err != nil {
			return fmt.Errorf("evaluate flag: %w", err)
		}
		rep.Flag = &result
	}

	if o.out != "" {
		if err := exportDataset(ctx, engine, current, o.out, outFormat); err != nil {
			return err
		}
		rep.Files = append(rep.Files, o.out)
	}
	if o.reportDir != "" {
		written, err := writeReports(o.reportDir, rep)
		if err != nil {
			return err
		}
		rep.Files = append(rep.Files, written...)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func exportDataset(ctx context.Context, engine *services.EngineService, id, path string, format exporter.Format) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := engine.Export(ctx, id, format, f); err != nil {
		f.Close()
		return fmt.Errorf("export: %w", err)
	}
	return f.Close()
}

// writeReports writes the aggregation table and streams the flagged rows
func writeReports(dir string, rep report) ([]string, error) {
	w := exporter.NewCSVWriter(dir)
	var written []string

	if rep.Aggregation != nil && rep.Aggregation.Data != nil {
		path, err := w.WriteFile("aggregation.csv", rep.Aggregation.Data, exporter.WriteOptions{BOMPrefix: true})
		if err != nil {
			return nil, fmt.Errorf("write aggregation: %w", err)
		}
		written = append(written, path)
	}

	if rep.Flag != nil && rep.Flag.FlaggedRows != nil {
		rows := rep.Flag.FlaggedRows
		sw, err := w.CreateStreamWriter("flagged.csv", rows.Columns())
		if err != nil {
			return nil, fmt.Errorf("write flagged rows: %w", err)
		}
		for i := 0; i < rows.Len(); i++ {
			if err := sw.WriteRow(rows.Row(i)); err != nil {
				sw.Close()
				return nil, fmt.Errorf("write flagged rows: %w", err)
			}
		}
		if err := sw.Close(); err != nil {
			return nil, fmt.Errorf("write flagged rows: %w", err)
		}
		written = append(written, filepath.Join(dir, "flagged.csv"))
	}
	return written, nil
}
