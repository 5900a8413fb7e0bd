// Command cortexmotion drives procedural idle motion for a Cubism-style
// character rig.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cortexmotion",
		Short: "Procedural character motion engine",
		Long: `cortexmotion animates a character rig with procedural idle motion:
noise-driven head and body sway, eye blinks, head shakes and speech mouth
movement. Motion can be driven live with the trigger server or rendered
offline to CSV or JSON.`,
		Version:      version,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "config file (default is ~/.cortexmotion/config.yaml or ./config.yaml)")
	root.PersistentFlags().String("log-level", "", "override logging.level (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(),
		newSimulateCmd(),
		newParamsCmd(),
		newConfigCmd(),
	)
	return root
}
