package main

import (
	"context"
	"errors"

	"github.com/normanking/cortexmotion/internal/bus"
	"github.com/normanking/cortexmotion/internal/config"
	"github.com/normanking/cortexmotion/internal/engine"
	"github.com/normanking/cortexmotion/internal/metrics"
	"github.com/normanking/cortexmotion/internal/trigger"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the frame loop and the trigger server",
		Long: `Run ticks the motion engine in real time. Unless disabled, the trigger
server accepts commands on /ws and POST /trigger, streams parameter
snapshots to subscribed websocket clients and exposes /metrics.`,
		RunE: runEngine,
	}
	cmd.Flags().String("addr", "", "override trigger.addr")
	cmd.Flags().Bool("no-server", false, "run the frame loop without the trigger server")
	cmd.Flags().Bool("watch", true, "apply generator tuning when the config file changes")
	return cmd
}

func runEngine(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		a.cfg.Trigger.Addr = addr
	}
	if noServer, _ := cmd.Flags().GetBool("no-server"); noServer {
		a.cfg.Trigger.Enabled = false
	}

	eventBus := bus.NewEventBus()
	defer eventBus.Clear()
	rec := metrics.NewRecorder()

	eng, err := a.buildEngine(eventBus, rec, nil)
	if err != nil {
		return err
	}

	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		a.loader.Watch(func(cfg *config.Config, err error) {
			if err != nil {
				a.log.Error("config", "Config reload failed", err, nil)
				return
			}
			logCorrections(a.log, cfg.Validate())
			eng.ApplyTuning(cfg.Tuning())
			a.log.Info("config", "Generator tuning reloaded", map[string]interface{}{"file": a.loader.ConfigFile()})
			eventBus.Publish(bus.Event{Type: bus.EventTypeConfigReloaded, Data: map[string]any{"file": a.loader.ConfigFile()}})
		})
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		return ignoreStop(eng.Run(ctx))
	})
	if a.cfg.Trigger.Enabled {
		srv := trigger.NewServer(a.cfg.Trigger, eventBus, eng, rec, a.log.Component("trigger"))
		g.Go(func() error {
			return srv.Run(ctx)
		})
	}

	err = g.Wait()
	a.log.Info("engine", "Shutdown complete", map[string]interface{}{"frames": eng.Frames()})
	return err
}

// ignoreStop treats cancellation of the command context as a clean exit.
func ignoreStop(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

var _ trigger.SnapshotSource = (*engine.Engine)(nil)
