package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conneroisu/templc/internal/catalog"
)

var catalogFormat string

var catalogCmd = &cobra.Command{
	Use:     "catalog",
	Aliases: []string{"ls"},
	Short:   "List the reference modules",
	Long: `Fetch the configured catalog roots and their imports, then list every
reference module with its imports, size and exported components.

Examples:
  templc catalog
  templc catalog --format json
  templc catalog --catalog-url http://localhost:7331/modules/`,
	RunE: runCatalog,
}

func init() {
	rootCmd.AddCommand(catalogCmd)

	catalogCmd.Flags().StringVarP(&catalogFormat, "format", "f", "table", "output format (table, json)")
}

type catalogEntry struct {
	Path       string   `json:"path"`
	Imports    []string `json:"imports"`
	Size       int      `json:"size"`
	Components []string `json:"components"`
}

func runCatalog(cmd *cobra.Command, args []string) error {
	switch catalogFormat {
	case "table", "json":
	default:
		return fmt.Errorf("unsupported format: %s (supported: table, json)", catalogFormat)
	}

	env, err := setup(cmd)
	if err != nil {
		return err
	}

	entries := catalogEntries(env.catalog)
	if catalogFormat == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	return writeCatalogTable(cmd.OutOrStdout(), entries)
}

func catalogEntries(cat *catalog.Catalog) []catalogEntry {
	refs := cat.References()
	entries := make([]catalogEntry, 0, len(refs))
	for _, ref := range refs {
		e := catalogEntry{
			Path:       ref.Path(),
			Imports:    ref.Imports(),
			Size:       ref.Size(),
			Components: []string{},
		}
		for _, c := range ref.Components() {
			e.Components = append(e.Components, c.Name)
		}
		entries = append(entries, e)
	}
	return entries
}

func writeCatalogTable(w io.Writer, entries []catalogEntry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODULE\tSIZE\tIMPORTS\tCOMPONENTS")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", e.Path, e.Size, dash(e.Imports), dash(e.Components))
	}
	return tw.Flush()
}

func dash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
