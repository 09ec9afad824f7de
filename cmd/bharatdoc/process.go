package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adverant/nexus/bharatdoc-worker/internal/ocr"
	"github.com/adverant/nexus/bharatdoc-worker/internal/output"
	"github.com/adverant/nexus/bharatdoc-worker/internal/processor"
)

var (
	outDir  string
	formats []string
)

var processCmd = &cobra.Command{
	Use:   "process <file>",
	Short: "Process one document and write per-page outputs",
	Long: `Process runs the document pipeline on a PDF or image and writes, per page N:

  <base>_pageN.json          full page record
  <base>_pageN.yaml          full page record (--formats yaml)
  <base>_pageN.csv           parsed fields as key,value rows
  <base>_pageN_tableK.csv    each extracted table

Examples:
  bharatdoc process udyam.pdf
  bharatdoc process scan.png --outdir out --formats json,csv,yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVar(&outDir, "outdir", "", "output directory (default: OUTPUT_DIR)")
	processCmd.Flags().StringSliceVar(&formats, "formats", nil, "output formats: json,csv,yaml (default: OUTPUT_FORMATS)")
}

func runProcess(cmd *cobra.Command, args []string) error {
	path := args[0]
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("file not found at '%s'", path)
	}

	if outDir == "" {
		outDir = cfg.OutputDir
	}
	if len(formats) == 0 {
		formats = cfg.OutputFormats
	}
	writer, err := output.NewWriter(outDir, formats)
	if err != nil {
		return err
	}

	recognizer, err := ocr.NewTesseractCache(cfg.TesseractLanguages, cfg.DefaultOCRLanguage, cfg.TessdataPrefix, cfg.RenderDPI)
	if err != nil {
		return fmt.Errorf("failed to initialize recognition engines: %w", err)
	}
	defer recognizer.Close()

	pipeline, err := processor.NewPipeline(&processor.PipelineConfig{
		Recognizer:           recognizer,
		PostProcess:          cfg.PostProcessConfig(),
		MinDigitalTextLength: cfg.MinDigitalTextLength,
		OCRLanguage:          cfg.DefaultOCRLanguage,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Processing document: %s\n", path)
	pages, err := pipeline.ProcessFile(cmd.Context(), path)
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No data was extracted from the document.")
		return nil
	}

	printSummary(cmd.OutOrStdout(), pages)

	written, err := writer.WritePages(output.BaseName(path), pages)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nWrote %d files to %s\n", len(written), outDir)
	return nil
}

// printSummary prints one block per page.
func printSummary(w io.Writer, pages []*processor.PageRecord) {
	fmt.Fprintln(w, "\n--- Extracted Data ---")
	for _, page := range pages {
		fmt.Fprintf(w, "\n[Page %d] Type: %s Document Type: %s\n", page.PageNumber, page.Type, page.DocumentType)
		if page.Error != nil {
			fmt.Fprintf(w, "  Error: %s at %s: %s\n", page.Error.Code, page.Error.Stage, page.Error.Message)
			continue
		}

		if len(page.ParsedFields) > 0 {
			fmt.Fprintln(w, "  Parsed Fields:")
			keys := make([]string, 0, len(page.ParsedFields))
			for k := range page.ParsedFields {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(w, "    %s: %s\n", k, page.ParsedFields[k])
			}
		} else {
			fmt.Fprintln(w, "  No structured fields parsed.")
		}

		if len(page.Tables) > 0 {
			fmt.Fprintf(w, "  Tables Extracted: %d\n", len(page.Tables))
		}
		if len(page.WatermarkBlocks) > 0 {
			fmt.Fprintf(w, "  Watermark Blocks: %d\n", len(page.WatermarkBlocks))
		}
		if len(page.RedactedItems) > 0 {
			categories := make([]string, 0, len(page.RedactedItems))
			for _, item := range page.RedactedItems {
				categories = append(categories, item.Category)
			}
			fmt.Fprintf(w, "  Redacted Items: %s\n", strings.Join(categories, ", "))
		}
		if len(page.LowConfidenceBlocks) > 0 {
			fmt.Fprintf(w, "  Low Confidence Blocks: %d\n", len(page.LowConfidenceBlocks))
		}
	}
}
