package slideshow

import (
	"context"
	"log/slog"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/aouyang1/displaywall/config"
	"github.com/aouyang1/displaywall/monitors"
	"github.com/aouyang1/displaywall/player"
)

const reconcileInterval = 5 * time.Second

// StopFunc terminates a renderer process and waits for its exit.
type StopFunc func() error

// Orchestrator owns one controller+renderer pair per detected display.
// Its loop reconciles the config document against the attached
// monitors and supervises unit lifecycle, including hot-plug.
type Orchestrator struct {
	store      config.Store
	imageDir   string
	mpvBin     string
	nowPlaying NowPlayingFetcher

	// injectable for tests
	detect      func() []monitors.Monitor
	startPlayer func(name string, screenIndex int) (player.CommandSender, StopFunc)

	units map[string]*unit
}

type unit struct {
	ctl        *Controller
	stopPlayer StopFunc
}

func NewOrchestrator(store config.Store, imageDir, mpvBin string, nowPlaying NowPlayingFetcher) *Orchestrator {
	o := &Orchestrator{
		store:      store,
		imageDir:   imageDir,
		mpvBin:     mpvBin,
		nowPlaying: nowPlaying,
		detect:     monitors.List,
		units:      map[string]*unit{},
	}
	o.startPlayer = func(name string, screenIndex int) (player.CommandSender, StopFunc) {
		p, err := player.Start(o.mpvBin, name, screenIndex)
		if err != nil {
			// keep driving the channel; sends are logged no-ops until
			// a renderer appears
			slog.Error("unable to start renderer", "display", name, "error", err)
		}
		return p, p.Stop
	}
	return o
}

// Run reconciles immediately, then on every tick until the context is
// cancelled. It does not return until every controller loop has
// drained and every renderer process has exited.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	o.reconcile()
	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			return
		case <-ticker.C:
			o.reconcile()
		}
	}
}

// reconcile diffs detected monitors against the config document and
// the running units. Runs every pass, not only at startup, since
// displays can be hot-plugged.
func (o *Orchestrator) reconcile() {
	mons := o.detect()

	detected := mapset.NewSet[string]()
	for _, m := range mons {
		detected.Add(m.Name)
	}

	cfg, err := o.store.Load()
	if err != nil {
		slog.Warn("unable to load config for reconciliation", "error", err)
		return
	}

	changed := false
	for _, m := range mons {
		if _, ok := cfg.Displays[m.Name]; !ok {
			cfg.Displays[m.Name] = config.DefaultDisplayConfig()
			slog.Info("registered new display", "display", m.Name, "resolution", m.Resolution)
			changed = true
		}
	}
	for name := range cfg.Displays {
		if !detected.Contains(name) {
			delete(cfg.Displays, name)
			slog.Info("removed config for detached display", "display", name)
			changed = true
		}
	}
	if changed {
		if err := o.store.Save(cfg); err != nil {
			slog.Warn("unable to save reconciled config", "error", err)
		}
	}

	for _, m := range mons {
		if _, ok := o.units[m.Name]; !ok {
			o.startUnit(m)
		}
	}
	for name := range o.units {
		if !detected.Contains(name) {
			o.stopUnit(name)
		}
	}
}

func (o *Orchestrator) startUnit(m monitors.Monitor) {
	sender, stopPlayer := o.startPlayer(m.Name, m.Index)

	ctl := New(m.Name, o.store, o.imageDir, sender)
	ctl.NowPlaying = o.nowPlaying
	go ctl.Run()

	o.units[m.Name] = &unit{ctl: ctl, stopPlayer: stopPlayer}
	slog.Info("started display unit", "display", m.Name, "screen", m.Index)
}

func (o *Orchestrator) stopUnit(name string) {
	u, ok := o.units[name]
	if !ok {
		return
	}
	u.ctl.Stop()
	<-u.ctl.Done()
	if u.stopPlayer != nil {
		if err := u.stopPlayer(); err != nil {
			slog.Warn("unable to stop renderer", "display", name, "error", err)
		}
	}
	delete(o.units, name)
	slog.Info("stopped display unit", "display", name)
}

// shutdown signals every unit first so all dwell loops abort in
// parallel, then waits each one out and stops its renderer.
func (o *Orchestrator) shutdown() {
	for _, u := range o.units {
		u.ctl.Stop()
	}
	for name := range o.units {
		o.stopUnit(name)
	}
	slog.Info("all display units stopped")
}
