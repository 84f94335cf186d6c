// Command pdf-field-scan prints the page geometry of a local PDF and the
// form widgets the field builder would import from it.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/a3tai/pdf-field-builder/internal/config"
	"github.com/a3tai/pdf-field-builder/internal/document"
	"github.com/a3tai/pdf-field-builder/internal/export"
	"github.com/a3tai/pdf-field-builder/internal/fields"
	"github.com/a3tai/pdf-field-builder/internal/geometry"
	"github.com/a3tai/pdf-field-builder/internal/logging"
)

// Report is the scan result of one PDF
type Report struct {
	File    string          `json:"file"`
	Library string          `json:"library"`
	Pages   []geometry.Size `json:"pages"`
	Widgets []fields.Field  `json:"widgets"`
}

func scan(path string, inspector *document.Inspector) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, err
	}
	g, err := inspector.Inspect(data)
	if err != nil {
		return Report{}, err
	}
	widgets, err := inspector.DetectWidgets(data)
	if err != nil {
		return Report{}, fmt.Errorf("detect widgets: %w", err)
	}
	return Report{File: path, Library: string(g.Library), Pages: g.Pages, Widgets: widgets}, nil
}

func writeText(w io.Writer, r Report) {
	fmt.Fprintf(w, "File: %s\n", r.File)
	fmt.Fprintf(w, "Pages: %d (read with %s)\n", len(r.Pages), r.Library)
	for i, p := range r.Pages {
		fmt.Fprintf(w, "  %d: %g x %g pt\n", i+1, p.Width, p.Height)
	}

	if len(r.Widgets) == 0 {
		fmt.Fprintln(w, "\nNo form widgets found")
		return
	}
	fmt.Fprintf(w, "\nForm widgets: %d\n", len(r.Widgets))
	for _, f := range r.Widgets {
		fmt.Fprintf(w, "  page %d  %-10s %-24s at (%g, %g) size %gx%g\n",
			f.PageNumber, f.Type, f.Name, f.X, f.Y, f.Width, f.Height)
	}
}

func main() {
	format := pflag.String("format", "text", "Output format: text, json")
	xlsxPath := pflag.String("xlsx", "", "Also write the widgets to this spreadsheet")
	maxSize := pflag.Int64("max-size", config.DefaultMaxFileSize, "Largest PDF accepted, in bytes")
	verbose := pflag.BoolP("verbose", "v", false, "Log parser diagnostics to stderr")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <file.pdf>\n\nOptions:\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if pflag.NArg() != 1 {
		pflag.Usage()
		os.Exit(2)
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger, err := logging.New(level, config.LogFormatConsole, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	report, err := scan(pflag.Arg(0), document.NewInspector(*maxSize, logger))
	if err != nil {
		logger.Error("scan failed", zap.String("file", pflag.Arg(0)), zap.Error(err))
		os.Exit(1)
	}

	switch *format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			logger.Error("encode report", zap.Error(err))
			os.Exit(1)
		}
	default:
		writeText(os.Stdout, report)
	}

	if *xlsxPath != "" {
		f, err := export.Fields(report.Widgets)
		if err != nil {
			logger.Error("build spreadsheet", zap.Error(err))
			os.Exit(1)
		}
		defer f.Close()
		if err := f.SaveAs(*xlsxPath); err != nil {
			logger.Error("write spreadsheet", zap.String("path", *xlsxPath), zap.Error(err))
			os.Exit(1)
		}
	}
}
