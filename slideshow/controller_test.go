package slideshow

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aouyang1/displaywall/config"
)

type fakeSender struct {
	mu  sync.Mutex
	ops []string
}

func (f *fakeSender) LoadFile(path string) error {
	f.record("load:" + filepath.Base(path))
	return nil
}

func (f *fakeSender) SetLoop() error {
	f.record("loop")
	return nil
}

func (f *fakeSender) SetRotation(deg int) error {
	f.record(fmt.Sprintf("rotate:%d", deg))
	return nil
}

func (f *fakeSender) record(op string) {
	f.mu.Lock()
	f.ops = append(f.ops, op)
	f.mu.Unlock()
}

func (f *fakeSender) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func (f *fakeSender) loads() []string {
	var out []string
	for _, op := range f.snapshot() {
		if len(op) > 5 && op[:5] == "load:" {
			out = append(out, op[5:])
		}
	}
	return out
}

func testController(t *testing.T, store config.Store, imageDir string, out *fakeSender) *Controller {
	t.Helper()
	c := New("HDMI-1", store, imageDir, out)
	c.dwellTick = time.Millisecond
	c.idleBackoff = 5 * time.Millisecond
	return c
}

func storeWith(dc config.DisplayConfig) *config.MemStore {
	cfg := config.DefaultRootConfig()
	cfg.Displays["HDMI-1"] = dc
	return config.NewMemStore(cfg)
}

func waitLoads(t *testing.T, out *fakeSender, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(out.loads()) >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d loads, got %v", n, out.loads())
}

func TestParamsOfDetectsSessionChanges(t *testing.T) {
	base := config.DisplayConfig{
		Mode:          config.ModeRandom,
		ImageInterval: 60,
		ImageCategory: "Nature",
		SpecificImage: "a.jpg",
		ShuffleMode:   false,
		MixedFolders:  []string{"Nature", "Cities"},
		Rotate:        0,
	}

	tests := []struct {
		name    string
		mutate  func(dc *config.DisplayConfig)
		rebuild bool
	}{
		{"unchanged", func(dc *config.DisplayConfig) {}, false},
		{"interval", func(dc *config.DisplayConfig) { dc.ImageInterval = 5 }, false},
		{"rotate", func(dc *config.DisplayConfig) { dc.Rotate = 90 }, false},
		{"mode", func(dc *config.DisplayConfig) { dc.Mode = config.ModeSpecific }, true},
		{"category", func(dc *config.DisplayConfig) { dc.ImageCategory = "Cities" }, true},
		{"specific", func(dc *config.DisplayConfig) { dc.SpecificImage = "b.jpg" }, true},
		{"shuffle", func(dc *config.DisplayConfig) { dc.ShuffleMode = true }, true},
		{"folders", func(dc *config.DisplayConfig) { dc.MixedFolders = []string{"Nature"} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			edited := base
			edited.MixedFolders = append([]string(nil), base.MixedFolders...)
			tt.mutate(&edited)

			if got := paramsOf(edited) != paramsOf(base); got != tt.rebuild {
				t.Errorf("rebuild = %t, want %t", got, tt.rebuild)
			}
		})
	}
}

func TestRandomCyclesSortedWithRotation(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "Nature/a.jpg", "Nature/b.jpg", "Nature/c.gif")

	store := storeWith(config.DisplayConfig{
		Mode:          config.ModeRandom,
		ImageInterval: 1,
		ImageCategory: "Nature",
		Rotate:        90,
	})

	out := &fakeSender{}
	c := testController(t, store, dir, out)
	go c.Run()

	waitLoads(t, out, 5)
	c.Stop()
	<-c.Done()

	want := []string{"a.jpg", "b.jpg", "c.gif"}
	loads := out.loads()
	for i, name := range loads[:5] {
		if name != want[i%len(want)] {
			t.Fatalf("load %d = %s, want %s (sequence %v)", i, name, want[i%len(want)], loads)
		}
	}

	// loop and rotation properties are re-asserted after every load
	ops := out.snapshot()
	for i, op := range ops {
		if len(op) > 5 && op[:5] == "load:" && i+2 < len(ops) {
			if ops[i+1] != "loop" || ops[i+2] != "rotate:90" {
				t.Fatalf("ops after load %d = %v, want [loop rotate:90]", i, ops[i+1:i+3])
			}
		}
	}
}

func TestSpecificMissingImageStaysIdle(t *testing.T) {
	store := storeWith(config.DisplayConfig{
		Mode:          config.ModeSpecific,
		SpecificImage: "gone.png",
	})

	out := &fakeSender{}
	c := testController(t, store, t.TempDir(), out)
	go c.Run()

	time.Sleep(50 * time.Millisecond)
	c.Stop()
	<-c.Done()

	if ops := out.snapshot(); len(ops) != 0 {
		t.Errorf("expected no renderer commands, got %v", ops)
	}
}

func TestSpecificLoadsExactlyOnce(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "Nature/pick.jpg")

	store := storeWith(config.DisplayConfig{
		Mode:          config.ModeSpecific,
		ImageCategory: "Nature",
		SpecificImage: "pick.jpg",
	})

	out := &fakeSender{}
	c := testController(t, store, dir, out)
	go c.Run()

	waitLoads(t, out, 1)
	time.Sleep(30 * time.Millisecond)
	c.Stop()
	<-c.Done()

	if loads := out.loads(); len(loads) != 1 || loads[0] != "pick.jpg" {
		t.Errorf("loads = %v, want exactly one pick.jpg", loads)
	}
}

func TestCategoryEditRebuildsSession(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "Nature/a.jpg", "Cities/z.png")

	store := storeWith(config.DisplayConfig{
		Mode:          config.ModeRandom,
		ImageInterval: 1,
		ImageCategory: "Nature",
	})

	out := &fakeSender{}
	c := testController(t, store, dir, out)
	go c.Run()

	waitLoads(t, out, 1)

	cfg, _ := store.Load()
	dc := cfg.Displays["HDMI-1"]
	dc.ImageCategory = "Cities"
	cfg.Displays["HDMI-1"] = dc
	if err := store.Save(cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, name := range out.loads() {
			if name == "z.png" {
				c.Stop()
				<-c.Done()
				return
			}
		}
		time.Sleep(time.Millisecond)
	}
	c.Stop()
	<-c.Done()
	t.Fatalf("controller never picked up category edit, loads %v", out.loads())
}

type fakeFetcher struct {
	path string
	err  error
}

func (f *fakeFetcher) FetchArtwork(ctx context.Context) (string, error) {
	return f.path, f.err
}

func TestSpotifyShowsArtwork(t *testing.T) {
	store := storeWith(config.DisplayConfig{Mode: config.ModeSpotify})

	out := &fakeSender{}
	c := testController(t, store, t.TempDir(), out)
	c.NowPlaying = &fakeFetcher{path: "/tmp/artwork.jpg"}
	go c.Run()

	waitLoads(t, out, 1)
	c.Stop()
	<-c.Done()

	if loads := out.loads(); loads[0] != "artwork.jpg" {
		t.Errorf("loads = %v, want artwork.jpg first", loads)
	}
}

func TestSpotifyWithoutFetcherStaysIdle(t *testing.T) {
	store := storeWith(config.DisplayConfig{Mode: config.ModeSpotify})

	out := &fakeSender{}
	c := testController(t, store, t.TempDir(), out)
	go c.Run()

	time.Sleep(30 * time.Millisecond)
	c.Stop()
	<-c.Done()

	if ops := out.snapshot(); len(ops) != 0 {
		t.Errorf("expected no renderer commands, got %v", ops)
	}
}
