package main

import (
	"fmt"

	"github.com/normanking/cortexmotion/internal/bus"
	"github.com/normanking/cortexmotion/internal/config"
	"github.com/normanking/cortexmotion/internal/engine"
	"github.com/normanking/cortexmotion/internal/logging"
	"github.com/normanking/cortexmotion/internal/metrics"
	"github.com/normanking/cortexmotion/internal/motion"
	"github.com/normanking/cortexmotion/internal/noise"
	"github.com/normanking/cortexmotion/internal/rig"
	"github.com/spf13/cobra"
)

// app is the state shared by every subcommand.
type app struct {
	loader *config.Loader
	cfg    *config.Config
	log    *logging.Logger
}

// setup loads and validates configuration and opens the logger. Validation
// corrections are logged, never fatal.
func setup(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = logging.LogLevel(level)
	}

	log, err := logging.NewConsole(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	if file := loader.ConfigFile(); file != "" {
		log.Info("config", "Configuration loaded", map[string]interface{}{"file": file})
	} else {
		log.Info("config", "No config file found, using defaults", nil)
	}
	logCorrections(log, cfg.Validate())

	return &app{loader: loader, cfg: cfg, log: log}, nil
}

func logCorrections(log *logging.Logger, cs []motion.Correction) {
	for _, c := range cs {
		log.Warn("config", "Corrected configuration value", map[string]interface{}{
			"field": c.Field,
			"old":   c.Old,
			"new":   c.New,
		})
	}
}

func (a *app) close() {
	a.log.Close()
}

// model builds the rig from the configured definitions file or the
// standard parameter set.
func (a *app) model() (*rig.Model, error) {
	defs := rig.DefaultDefinitions()
	if file := a.cfg.Rig.DefinitionsFile; file != "" {
		loaded, err := rig.LoadDefinitions(file)
		if err != nil {
			return nil, err
		}
		defs = loaded
	}
	return rig.NewModel(defs)
}

// buildEngine wires the rig, noise field and generators. A zero noise or
// engine seed is replaced by a random one, which is logged so a run can be
// reproduced.
func (a *app) buildEngine(b *bus.EventBus, rec *metrics.Recorder, clock engine.Clock) (*engine.Engine, error) {
	model, err := a.model()
	if err != nil {
		return nil, fmt.Errorf("build rig: %w", err)
	}

	seed := a.cfg.Noise.Seed
	if seed == 0 {
		seed = noise.NewRand(0).Int63()
	}
	field, err := noise.NewField(a.cfg.Noise.Backend, seed)
	if err != nil {
		return nil, err
	}
	a.log.Debug("engine", "Noise field ready", map[string]interface{}{
		"backend": string(field.Backend()),
		"seed":    seed,
	})

	return engine.New(engine.Options{
		Config:  a.cfg.Engine,
		Tuning:  a.cfg.Tuning(),
		Model:   model,
		Field:   field,
		Rand:    noise.NewRand(a.cfg.Engine.Seed),
		Logger:  a.log,
		Metrics: rec,
		Bus:     b,
		Clock:   clock,
	})
}
