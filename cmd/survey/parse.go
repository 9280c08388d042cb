package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"readingsurvey/internal/textparse"
)

var parseCmd = &cobra.Command{
	Use:   "parse [file|-]",
	Short: "Show how a raw text splits into title and body",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runParse,
}

func runParse(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to read text: %w", err)
	}

	parsed := textparse.Parse(string(data))
	out := cmd.OutOrStdout()
	if parsed.HasTitle() {
		fmt.Fprintf(out, "title: %s\n", *parsed.Title)
	} else {
		fmt.Fprintln(out, "title: (none)")
	}
	fmt.Fprintf(out, "body:\n%s\n", parsed.Body)
	return nil
}
