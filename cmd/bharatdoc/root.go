package main

import (
	"github.com/spf13/cobra"

	"github.com/adverant/nexus/bharatdoc-worker/internal/config"
	"github.com/adverant/nexus/bharatdoc-worker/internal/logging"
	"github.com/adverant/nexus/bharatdoc-worker/internal/version"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "bharatdoc",
	Short: "Layout-aware extraction for Indian business documents",
	Long: `BharatDoc extracts layout, tables and fields from PDFs and scanned images.

Digital PDF pages are read natively; scanned pages and images go through
Tesseract. Every page is checked for watermarks, PII is redacted, and
low-confidence blocks are flagged before fields are parsed.`,
	Version:      version.GitRelease,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		logging.SetLevel(logging.ParseLevel(cfg.LogLevel))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (YAML); environment variables and .env take precedence",
	)

	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(enqueueCmd)
	rootCmd.AddCommand(versionCmd)
}
