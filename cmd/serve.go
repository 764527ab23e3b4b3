package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jareddonovan/creative-coding-showcase/internal/config"
	"github.com/jareddonovan/creative-coding-showcase/internal/events"
	"github.com/jareddonovan/creative-coding-showcase/internal/metrics"
	"github.com/jareddonovan/creative-coding-showcase/internal/server"
	"github.com/jareddonovan/creative-coding-showcase/internal/utils"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the kiosk API and run the import poller",
	Long: `Serve the API the kiosk UI talks to. When allowP5jsImports is enabled the
import poller runs in the background and new sketches are pushed to the UI
as they arrive.`,
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

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		broadcaster := events.NewBroadcaster()
		srv := server.New(opts, a.ledger, a.catalog, broadcaster)
		srv.History = a.history
		metrics.SetOutstandingCodes(a.ledger.Outstanding())

		if opts.AllowP5jsImports {
			p, err := a.newPoller(broadcaster, metrics.PollObserver{Codes: a.ledger})
			if err != nil {
				return err
			}
			srv.Poller = p
			go func() {
				if err := p.Run(ctx); err != nil && err != context.Canceled {
					utils.Log.Errorf("Import poller stopped: %v", err)
				}
			}()
			utils.Log.Infof("Import poller started for cabinet %s (every %s)", opts.CabinetName, opts.PollInterval.Std())
		} else {
			utils.Log.Info("Sketch imports are disabled (allowP5jsImports=false)")
		}

		return srv.Start(ctx, opts.Listen)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "", "HTTP listen address (overrides listen)")
	viper.BindPFlag(config.KeyListen, serveCmd.Flags().Lookup("listen"))
}
