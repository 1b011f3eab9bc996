package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var skipExtract bool

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Upload a manual and run category extraction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAPIClient()
		out := cmd.OutOrStdout()

		res, err := client.upload(args[0])
		if err != nil {
			return fmt.Errorf("upload: %w", err)
		}
		fmt.Fprintf(out, "%s %s\n", successStyle.Render("Uploaded"), titleStyle.Render(res.Title))
		fmt.Fprintf(out, "%s %s  %s %d\n",
			dimStyle.Render("ID:"), res.ID,
			dimStyle.Render("Pages:"), res.PageCount,
		)

		if skipExtract {
			return nil
		}

		ext, err := client.startExtract(res.ID)
		if err != nil {
			return fmt.Errorf("extract: %w", err)
		}

		for {
			time.Sleep(2 * time.Second)
			job, err := client.jobStatus(ext.JobID)
			if err != nil {
				return fmt.Errorf("job status: %w", err)
			}
			switch job.Status {
			case "completed":
				fmt.Fprintf(out, "%s %d categories, %d items\n",
					successStyle.Render("Extracted"), job.Progress.Categories, job.Progress.Items)
				return nil
			case "failed":
				for _, e := range job.Progress.Errors {
					fmt.Fprintln(out, errorStyle.Render("error: ")+e)
				}
				return fmt.Errorf("extraction failed")
			default:
				fmt.Fprintf(out, "%s %s (%d/%d pages)\n",
					dimStyle.Render("status:"), job.Status,
					job.Progress.PagesCompressed, job.Progress.TotalPages)
			}
		}
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&skipExtract, "no-extract", false, "Upload only, skip category extraction")
	rootCmd.AddCommand(ingestCmd)
}
