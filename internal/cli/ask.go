package cli

import (
	"fmt"
	"strings"

	"github.com/dgallion1/manualqa/internal/manual"
	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <manual-id> <question>",
	Short: "Ask a question about an ingested manual",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAPIClient()
		out := cmd.OutOrStdout()

		manualID := args[0]
		question := strings.Join(args[1:], " ")

		res, err := client.ask(manualID, question)
		if err != nil {
			return fmt.Errorf("ask: %w", err)
		}

		cat := manual.Category(res.Category)
		fmt.Fprintf(out, "%s %s\n",
			dimStyle.Render("Answered from:"),
			categoryStyle(cat).Render(categoryLabel(cat)),
		)
		fmt.Fprintln(out, boxStyle.Render(res.Answer))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}
