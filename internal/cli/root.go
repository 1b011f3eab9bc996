package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	apiKey    string
)

var rootCmd = &cobra.Command{
	Use:   "manualqa",
	Short: "Upload product manuals and ask questions about them",
	Long: `manualqa is the command line client for the manualqa service.

It uploads manuals (pdf, docx, html, markdown, txt), runs category
extraction over them, and answers questions from the extracted content.`,
	SilenceUsage: true,
}

func init() {
	defaultURL := "http://localhost:8080"
	if v := os.Getenv("MANUALQA_URL"); v != "" {
		defaultURL = v
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultURL, "manualqa server base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("MANUALQA_API_KEY"), "manualqa API key")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
