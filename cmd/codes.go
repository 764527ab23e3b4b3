package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jareddonovan/creative-coding-showcase/internal/utils"
	"github.com/jareddonovan/creative-coding-showcase/pkg/platforms/imports"
)

var codesCmd = &cobra.Command{
	Use:   "codes",
	Short: "Manage one-time import codes",
}

var codesNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Generate an import code and print its import URL",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := loadOptions()
		if err != nil {
			return err
		}
		a, err := openApp(opts)
		if err != nil {
			return err
		}
		defer a.Close()

		code, err := a.ledger.Generate()
		if err != nil {
			utils.Log.Errorf("Code %s was generated but not saved: %v", code, err)
			return err
		}
		fmt.Println(code)
		fmt.Println(imports.NewImportURL(opts.ImportsURL, code, opts.CabinetName))
		return nil
	},
}

var codesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List import codes",
	RunE: func(cmd *cobra.Command, args []string) error {
		outstanding, _ := cmd.Flags().GetBool("outstanding")

		opts, err := loadOptions()
		if err != nil {
			return err
		}
		a, err := openApp(opts)
		if err != nil {
			return err
		}
		defer a.Close()

		for _, c := range a.ledger.List() {
			if outstanding && c.IsImported {
				continue
			}
			status := "outstanding"
			if c.IsImported {
				status = "imported"
			}
			fmt.Printf("%s %-11s %s\n", c.Code, status, c.CreatedAt.Local().Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(codesCmd)
	codesCmd.AddCommand(codesNewCmd)
	codesCmd.AddCommand(codesListCmd)
	codesListCmd.Flags().Bool("outstanding", false, "Only list codes that have not been used")
}
