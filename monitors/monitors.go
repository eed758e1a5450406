// Package monitors enumerates attached displays via xrandr and maps
// each to a stable name plus the screen index mpv expects.
package monitors

import (
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Monitor describes one attached display as reported by the display
// server. Index is the position in the xrandr listing and is handed to
// mpv as --screen.
type Monitor struct {
	Name       string `json:"name"`
	Resolution string `json:"resolution"`
	OffsetX    int    `json:"offset_x"`
	OffsetY    int    `json:"offset_y"`
	Index      int    `json:"-"`
}

func listMonitorsOutput() (string, error) {
	out, err := exec.Command("xrandr", "--listmonitors").Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// fallback is the synthetic display used when enumeration yields
// nothing usable: a framebuffer panel when /dev/fb1 exists, otherwise
// a generic Display0.
func fallback() []Monitor {
	if _, err := os.Stat("/dev/fb1"); err == nil {
		return []Monitor{{Name: "FB1", Resolution: "480x320", Index: 0}}
	}
	return []Monitor{{Name: "Display0", Resolution: "unknown", Index: 0}}
}

// Detect returns the attached displays keyed by name. Enumeration
// failure is swallowed and degrades to the single synthetic display;
// callers treat the result as best effort.
func Detect() map[string]Monitor {
	out := List()
	mons := make(map[string]Monitor, len(out))
	for _, m := range out {
		mons[m.Name] = m
	}
	return mons
}

// List returns the attached displays in xrandr listing order.
func List() []Monitor {
	out, err := listMonitorsOutput()
	if err != nil {
		slog.Warn("unable to run xrandr, falling back to synthetic display", "error", err)
		return fallback()
	}
	mons := parseListMonitors(out)
	if len(mons) == 0 {
		return fallback()
	}
	return mons
}

// ScreenIndex returns the listing index for the named display, or 0
// when the name is not currently attached.
func ScreenIndex(name string) int {
	for _, m := range List() {
		if m.Name == name {
			return m.Index
		}
	}
	return 0
}

// parseListMonitors parses `xrandr --listmonitors` output, e.g.
//
//	Monitors: 2
//	 0: +*HDMI-1 1920/531x1080/299+0+0  HDMI-1
//	 1: +HDMI-2 1920/531x1080/299+1920+0  HDMI-2
//
// The monitor name is the last field with any +/* markers stripped;
// the geometry field is the one containing both "x" and "+". A line
// whose geometry cannot be parsed still yields a monitor with
// resolution "unknown".
func parseListMonitors(out string) []Monitor {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) <= 1 {
		return nil
	}

	var mons []Monitor
	for _, line := range lines[1:] {
		parts := strings.Fields(strings.TrimSpace(line))
		if len(parts) < 2 {
			continue
		}
		name := strings.Trim(parts[len(parts)-1], "+*")
		if name == "" {
			continue
		}

		m := Monitor{Name: name, Resolution: "unknown", Index: len(mons)}
		for _, p := range parts {
			if strings.Contains(p, "x") && strings.Contains(p, "+") {
				if res, ox, oy, ok := parseGeometry(p); ok {
					m.Resolution = res
					m.OffsetX = ox
					m.OffsetY = oy
				}
				break
			}
		}
		mons = append(mons, m)
	}
	return mons
}

// parseGeometry parses a geometry field like "1920/531x1080/299+0+0".
func parseGeometry(geom string) (string, int, int, bool) {
	left, right, ok := strings.Cut(geom, "x")
	if !ok {
		return "", 0, 0, false
	}
	wStr, _, _ := strings.Cut(left, "/")

	plus := strings.Index(right, "+")
	if plus < 0 {
		return "", 0, 0, false
	}
	hStr, _, _ := strings.Cut(right[:plus], "/")

	offsets := strings.Split(strings.TrimPrefix(right[plus:], "+"), "+")
	ox, oy := "0", "0"
	if len(offsets) == 2 {
		ox, oy = offsets[0], offsets[1]
	}

	w, err := strconv.Atoi(wStr)
	if err != nil {
		return "", 0, 0, false
	}
	h, err := strconv.Atoi(hStr)
	if err != nil {
		return "", 0, 0, false
	}
	oxVal, err := strconv.Atoi(ox)
	if err != nil {
		return "", 0, 0, false
	}
	oyVal, err := strconv.Atoi(oy)
	if err != nil {
		return "", 0, 0, false
	}
	return strconv.Itoa(w) + "x" + strconv.Itoa(h), oxVal, oyVal, true
}
