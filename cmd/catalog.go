package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"github.com/jareddonovan/creative-coding-showcase/pkg/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print the catalog of imported sketches",
	RunE: func(cmd *cobra.Command, args []string) error {
		cabinet, _ := cmd.Flags().GetString("cabinet")
		raw, _ := cmd.Flags().GetBool("raw")

		opts, err := loadOptions()
		if err != nil {
			return err
		}
		store := catalog.NewStore(opts.CatalogPath())

		if raw {
			data, err := store.Raw()
			if err != nil {
				return err
			}
			fmt.Print(string(pretty.Color(pretty.Pretty(data), nil)))
			return nil
		}

		entries, err := store.Get()
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(entries))
		for k := range entries {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			d := entries[k]
			if cabinet != "" && !catalog.Visible(d, cabinet) {
				continue
			}
			title := d.Title
			if title == "" {
				title = "-"
			}
			missing := ""
			if !d.FoundAllFiles {
				missing = fmt.Sprintf(" (missing %v)", d.MissingFiles)
			}
			fmt.Printf("%s\t%s %s\t%s%s\n", k, d.FirstName, d.LastName, title, missing)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.Flags().String("cabinet", "", "Only list sketches the given cabinet shows")
	catalogCmd.Flags().Bool("raw", false, "Print the catalog file as stored")
}
