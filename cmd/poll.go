package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jareddonovan/creative-coding-showcase/internal/utils"
	"github.com/jareddonovan/creative-coding-showcase/pkg/catalog"
	"github.com/jareddonovan/creative-coding-showcase/pkg/polling"
)

// printNotifier writes new catalog entries to stdout as they are published.
type printNotifier struct{}

func (printNotifier) ImportsAvailable(batch map[string]catalog.Descriptor) {
	for key, d := range batch {
		fmt.Printf("imported %s -> %s\n", key, d.Sketch)
	}
}

func (printNotifier) CycleDiagnostics(*polling.CycleReport) {}

// pollCmd implements: showcase poll
//
// Runs a single import cycle in the foreground. It works regardless of
// allowP5jsImports so an operator can import by hand on a cabinet where the
// background poller is off.
var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run one import cycle and print the report",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return fmt.Errorf("unknown command: '%s'. See 'showcase poll --help'", args[0])
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		opts, err := loadOptions()
		if err != nil {
			return err
		}
		a, err := openApp(opts)
		if err != nil {
			return err
		}
		defer a.Close()

		var notifiers []polling.Notifier
		if !asJSON {
			notifiers = append(notifiers, printNotifier{})
		}
		p, err := a.newPoller(notifiers...)
		if err != nil {
			return err
		}

		report, err := p.RunCycle(cmd.Context())
		if report == nil {
			return err
		}
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		} else {
			fmt.Println(report.Text())
		}
		if err != nil {
			utils.Log.Errorf("Import cycle failed: %v", err)
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pollCmd)
	pollCmd.Flags().Bool("json", false, "Print the cycle report as JSON")
}
