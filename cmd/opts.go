package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var optsCmd = &cobra.Command{
	Use:   "opts",
	Short: "Print the resolved options as the UI receives them",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := loadOptions()
		if err != nil {
			return err
		}
		b, err := json.MarshalIndent(opts, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(optsCmd)
}
