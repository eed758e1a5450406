package slideshow

import (
	"context"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aouyang1/displaywall/config"
	"github.com/aouyang1/displaywall/player"
)

const (
	defaultDwellTick   = time.Second
	defaultIdleBackoff = 10 * time.Second
	spotifyHoldTicks   = 10
	fetchTimeout       = 10 * time.Second
)

// NowPlayingFetcher resolves the currently playing track's album
// artwork to a local file path. Spotify-follow mode delegates to it;
// a nil fetcher leaves the display idle.
type NowPlayingFetcher interface {
	FetchArtwork(ctx context.Context) (string, error)
}

// sessionParams is the tuple of DisplayConfig fields that determine
// the current image list. The playback session is torn down and
// rebuilt exactly when this tuple changes; interval and rotation edits
// take effect without a rebuild.
type sessionParams struct {
	mode     config.Mode
	category string
	specific string
	shuffle  bool
	folders  string
}

func paramsOf(dc config.DisplayConfig) sessionParams {
	return sessionParams{
		mode:     dc.Mode,
		category: dc.ImageCategory,
		specific: dc.SpecificImage,
		shuffle:  dc.ShuffleMode,
		folders:  strings.Join(dc.MixedFolders, "\x1f"),
	}
}

// Controller runs the slideshow state machine for one display. It
// re-reads the display's configuration on every tick and reacts to
// edits within about one dwell tick, without restarting the renderer.
type Controller struct {
	displayName string
	store       config.Store
	imageDir    string
	out         player.CommandSender

	// NowPlaying may be set before Run to enable spotify mode.
	NowPlaying NowPlayingFetcher

	// tick granularities, shortened in tests
	dwellTick   time.Duration
	idleBackoff time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func New(displayName string, store config.Store, imageDir string, out player.CommandSender) *Controller {
	return &Controller{
		displayName: displayName,
		store:       store,
		imageDir:    imageDir,
		out:         out,
		dwellTick:   defaultDwellTick,
		idleBackoff: defaultIdleBackoff,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Stop signals the control loop to exit. Safe to call more than once;
// the loop drains within about one dwell tick.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Done is closed when the control loop has exited.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Run drives the state machine until Stop. One goroutine per display.
func (c *Controller) Run() {
	defer close(c.done)

	for {
		if c.stopped() {
			return
		}

		dc, ok := c.displayConfig()
		if !ok {
			// no config entry for this display yet; reconciliation
			// will create one
			if !c.wait(c.idleBackoff) {
				return
			}
			continue
		}

		switch dc.Mode {
		case config.ModeRandom:
			c.runCycle(dc, ListCategory(c.imageDir, dc.ImageCategory))
		case config.ModeSpecific:
			c.runSpecific(dc)
		case config.ModeMixed:
			c.runMixed(dc)
		case config.ModeSpotify:
			c.runSpotify(dc)
		default:
			slog.Warn("unknown display mode", "display", c.displayName, "mode", dc.Mode)
			if !c.wait(5 * time.Second) {
				return
			}
		}
	}
}

func (c *Controller) runMixed(dc config.DisplayConfig) {
	if len(dc.MixedFolders) == 0 {
		slog.Info("mixed mode with no folders selected", "display", c.displayName)
		c.wait(c.idleBackoff)
		return
	}
	c.runCycle(dc, ListMixed(c.imageDir, dc.MixedFolders))
}

// runCycle is the shared random/mixed loop: advance through the list,
// wrapping around and reshuffling each full pass when shuffle is on.
func (c *Controller) runCycle(dc config.DisplayConfig, images []string) {
	if len(images) == 0 {
		slog.Info("no images for display, idling", "display", c.displayName, "mode", dc.Mode, "category", dc.ImageCategory)
		c.wait(c.idleBackoff)
		return
	}

	if dc.ShuffleMode {
		rand.Shuffle(len(images), func(i, j int) {
			images[i], images[j] = images[j], images[i]
		})
	}

	active := paramsOf(dc)
	idx := 0
	for {
		cur, ok := c.displayConfig()
		if c.stopped() || !ok || paramsOf(cur) != active {
			return
		}

		c.show(filepath.Join(c.imageDir, images[idx]), cur.Rotate)

		idx++
		if idx >= len(images) {
			idx = 0
			// reshuffling on wraparound gives a different order each
			// full pass
			if dc.ShuffleMode {
				rand.Shuffle(len(images), func(i, j int) {
					images[i], images[j] = images[j], images[i]
				})
			}
		}

		if !c.dwell(cur.ImageInterval, active) {
			return
		}
	}
}

func (c *Controller) runSpecific(dc config.DisplayConfig) {
	if dc.SpecificImage == "" {
		slog.Info("no specific image selected", "display", c.displayName)
		c.wait(c.idleBackoff)
		return
	}

	fullPath := filepath.Join(c.imageDir, dc.ImageCategory, dc.SpecificImage)
	if _, err := os.Stat(fullPath); err != nil {
		slog.Info("specific image not found, idling", "display", c.displayName, "path", fullPath)
		c.wait(c.idleBackoff)
		return
	}

	// load once, then hold while re-checking for edits every tick so
	// the same file is never redundantly reloaded
	c.show(fullPath, dc.Rotate)

	active := paramsOf(dc)
	for {
		select {
		case <-c.stop:
			return
		case <-time.After(c.dwellTick):
		}
		cur, ok := c.displayConfig()
		if !ok || paramsOf(cur) != active {
			return
		}
	}
}

func (c *Controller) runSpotify(dc config.DisplayConfig) {
	if c.NowPlaying == nil {
		slog.Info("spotify mode with no now-playing fetcher configured", "display", c.displayName)
		c.wait(c.idleBackoff)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	artPath, err := c.NowPlaying.FetchArtwork(ctx)
	cancel()
	if err != nil {
		slog.Warn("unable to fetch now-playing artwork", "display", c.displayName, "error", err)
		c.wait(c.idleBackoff)
		return
	}

	dcNow, ok := c.displayConfig()
	if !ok || c.stopped() {
		return
	}
	c.show(artPath, dcNow.Rotate)

	active := paramsOf(dc)
	for i := 0; i < spotifyHoldTicks; i++ {
		select {
		case <-c.stop:
			return
		case <-time.After(c.dwellTick):
		}
		cur, ok := c.displayConfig()
		if !ok || paramsOf(cur) != active {
			return
		}
	}
}

// show issues the load plus the loop/rotation properties that mpv
// resets on every file change. Channel errors are transient; the next
// tick retries.
func (c *Controller) show(path string, rotate int) {
	if err := c.out.LoadFile(path); err != nil {
		slog.Warn("unable to send load command", "display", c.displayName, "path", path, "error", err)
		return
	}
	if err := c.out.SetLoop(); err != nil {
		slog.Debug("unable to set loop property", "display", c.displayName, "error", err)
	}
	if err := c.out.SetRotation(rotate); err != nil {
		slog.Debug("unable to set rotation property", "display", c.displayName, "error", err)
	}
}

// dwell sleeps up to intervalSeconds dwell ticks, re-checking the stop
// flag and the session params every tick. Returns false when the
// session should end.
func (c *Controller) dwell(intervalSeconds int, active sessionParams) bool {
	if intervalSeconds <= 0 {
		intervalSeconds = config.DefaultInterval
	}
	for i := 0; i < intervalSeconds; i++ {
		select {
		case <-c.stop:
			return false
		case <-time.After(c.dwellTick):
		}
		cur, ok := c.displayConfig()
		if !ok || paramsOf(cur) != active {
			return false
		}
	}
	return true
}

// wait sleeps up to d in dwell-tick increments, returning false when
// stopped.
func (c *Controller) wait(d time.Duration) bool {
	ticks := int(d / c.dwellTick)
	if ticks < 1 {
		ticks = 1
	}
	for i := 0; i < ticks; i++ {
		select {
		case <-c.stop:
			return false
		case <-time.After(c.dwellTick):
		}
	}
	return true
}

func (c *Controller) stopped() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

func (c *Controller) displayConfig() (config.DisplayConfig, bool) {
	cfg, err := c.store.Load()
	if err != nil {
		slog.Warn("unable to load config", "display", c.displayName, "error", err)
		return config.DisplayConfig{}, false
	}
	dc, ok := cfg.Displays[c.displayName]
	return dc, ok
}
