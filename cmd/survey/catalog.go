package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"readingsurvey/internal/app"
	"readingsurvey/internal/textparse"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Load texts.json and list its entries",
	Args:  cobra.NoArgs,
	RunE:  runCatalog,
}

func runCatalog(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	cat, err := app.NewCatalog(cfg, log).Load(cmd.Context())
	if err != nil {
		return err
	}

	ids := cat.IDs()
	sort.Strings(ids)

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TEXT_ID\tTOPIC\tTITLE")
	for _, id := range ids {
		entry, _ := cat.Lookup(id)
		title := "-"
		if p := textparse.Parse(entry.Text); p.HasTitle() {
			title = *p.Title
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", id, entry.Topic, title)
	}
	fmt.Fprintf(tw, "\n%d texts\n", len(ids))
	return tw.Flush()
}
