package circuit

import (
	"time"

	"github.com/AnatoleLucet/render/circuit/autorouter"
	"github.com/AnatoleLucet/render/internal/config"
	"github.com/rs/zerolog"
)

// Footprint is the land pattern of a component. Sizes are in millimetres.
type Footprint struct {
	Name   string
	Width  float64
	Height float64
	Pads   int
}

var DefaultFootprints = map[string]Footprint{
	"0402":  {Name: "0402", Width: 1.0, Height: 0.5, Pads: 2},
	"0603":  {Name: "0603", Width: 1.6, Height: 0.8, Pads: 2},
	"0805":  {Name: "0805", Width: 2.0, Height: 1.25, Pads: 2},
	"soic8": {Name: "soic8", Width: 4.9, Height: 3.9, Pads: 8},
	"dip8":  {Name: "dip8", Width: 9.8, Height: 6.4, Pads: 8},
	"qfn16": {Name: "qfn16", Width: 3.0, Height: 3.0, Pads: 16},
}

// Env holds the collaborators phase logic calls into.
type Env struct {
	Router     autorouter.Router
	Footprints map[string]Footprint

	// simulated cost of the schematic layout solver
	LayoutDelay time.Duration

	Logger zerolog.Logger

	// feed lifecycle events to the prometheus collectors
	Metrics bool
}

func DefaultEnv() *Env {
	return &Env{
		Router:     autorouter.Local{},
		Footprints: DefaultFootprints,
		Logger:     zerolog.Nop(),
	}
}

func (e *Env) footprint(name string) (Footprint, bool) {
	fp, ok := e.Footprints[name]
	return fp, ok
}

// NewEnv builds the environment described by cfg. A remote autorouter is
// used when one is configured, the local one otherwise.
func NewEnv(cfg config.Config, logger zerolog.Logger) *Env {
	env := DefaultEnv()
	env.Logger = logger

	switch cfg.Autorouter.Mode {
	case config.RouterRemote:
		env.Router = autorouter.NewRemote(cfg.Autorouter.URL, autorouter.RemoteOptions{
			Timeout: cfg.Autorouter.Timeout,
			Retries: cfg.Autorouter.Retries,
			Logger:  logger.With().Str("component", "autorouter").Logger(),
		})
	default:
		env.Router = autorouter.Local{Delay: cfg.Autorouter.Delay}
	}
	return env
}
