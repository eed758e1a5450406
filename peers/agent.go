package peers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"github.com/aouyang1/displaywall/config"
)

// mergeAllowList names the top-level keys a peer may replace through
// MergeConfig. Everything else in an incoming document is ignored, so
// role, main_ip and the device registry never cross between nodes.
var mergeAllowList = map[string]bool{
	"displays": true,
	"theme":    true,
}

var (
	ErrSelfRegistration = errors.New("device address is this node's own address")
	ErrDuplicateDevice  = errors.New("device with this address already registered")
	ErrInvalidIndex     = errors.New("invalid device index")
)

// Agent applies the replication protocol to the local config store.
// All network failures are logged and surfaced as errors for the
// caller to skip past; nothing here retries.
type Agent struct {
	store  config.Store
	client *Client

	// localIP is injectable for tests.
	localIP func() string
}

func NewAgent(store config.Store, client *Client) *Agent {
	return &Agent{
		store:   store,
		client:  client,
		localIP: LocalIP,
	}
}

// MergeConfig applies a partial document: every allow-listed key that
// is present wholesale-replaces the local value; other keys are
// ignored even if present. The merged result is not echoed back.
func (a *Agent) MergeConfig(partial map[string]json.RawMessage) error {
	cfg, err := a.store.Load()
	if err != nil {
		return fmt.Errorf("unable to load local config for merge, %w", err)
	}

	for key, raw := range partial {
		if !mergeAllowList[key] {
			slog.Debug("ignoring non-allow-listed key in merge", "key", key)
			continue
		}
		switch key {
		case "displays":
			var displays map[string]config.DisplayConfig
			if err := json.Unmarshal(raw, &displays); err != nil {
				return fmt.Errorf("invalid displays value in merge, %w", err)
			}
			cfg.Displays = displays
		case "theme":
			var theme string
			if err := json.Unmarshal(raw, &theme); err != nil {
				return fmt.Errorf("invalid theme value in merge, %w", err)
			}
			cfg.Theme = theme
		}
	}

	if err := a.store.Save(cfg); err != nil {
		return fmt.Errorf("unable to save merged config, %w", err)
	}
	slog.Info("local config updated via merge")
	return nil
}

// AddDevice registers a peer on a main node. A device whose address is
// our own, or a duplicate address, is rejected with no mutation.
func (a *Agent) AddDevice(name, ip string) error {
	if ip == a.localIP() {
		slog.Warn("rejecting device registration with local address", "name", name, "ip", ip)
		return ErrSelfRegistration
	}

	cfg, err := a.store.Load()
	if err != nil {
		return fmt.Errorf("unable to load config, %w", err)
	}
	if cfg.DeviceIndex(ip) >= 0 {
		slog.Warn("rejecting duplicate device registration", "name", name, "ip", ip)
		return ErrDuplicateDevice
	}

	cfg.Devices = append(cfg.Devices, config.Device{Name: name, IP: ip})
	if err := a.store.Save(cfg); err != nil {
		return fmt.Errorf("unable to save config, %w", err)
	}
	slog.Info("added device", "name", name, "ip", ip)
	return nil
}

// RemoveDevice drops the device at the given registry index.
func (a *Agent) RemoveDevice(index int) error {
	cfg, err := a.store.Load()
	if err != nil {
		return fmt.Errorf("unable to load config, %w", err)
	}
	if index < 0 || index >= len(cfg.Devices) {
		return ErrInvalidIndex
	}

	removed := cfg.Devices[index]
	cfg.Devices = append(cfg.Devices[:index], cfg.Devices[index+1:]...)
	if err := a.store.Save(cfg); err != nil {
		return fmt.Errorf("unable to save config, %w", err)
	}
	slog.Info("removed device", "name", removed.Name, "ip", removed.IP)
	return nil
}

// Push sends a displays document to one device: its cached displays
// when a pull populated them, otherwise our local displays.
func (a *Agent) Push(index int) error {
	cfg, err := a.store.Load()
	if err != nil {
		return fmt.Errorf("unable to load config, %w", err)
	}
	if index < 0 || index >= len(cfg.Devices) {
		return ErrInvalidIndex
	}
	dev := cfg.Devices[index]

	displays := dev.Displays
	if len(displays) == 0 {
		displays = cfg.Displays
	}
	if err := a.client.PushDisplays(dev.IP, displays); err != nil {
		return fmt.Errorf("push to %s failed, %w", dev.IP, err)
	}
	slog.Info("pushed displays to device", "name", dev.Name, "ip", dev.IP)
	return nil
}

// Pull fetches the device's config and caches its displays in our
// registry entry. The local node's own displays are never overwritten.
func (a *Agent) Pull(index int) error {
	cfg, err := a.store.Load()
	if err != nil {
		return fmt.Errorf("unable to load config, %w", err)
	}
	if index < 0 || index >= len(cfg.Devices) {
		return ErrInvalidIndex
	}
	dev := cfg.Devices[index]

	remote, err := a.client.GetConfig(dev.IP)
	if err != nil {
		return fmt.Errorf("pull from %s failed, %w", dev.IP, err)
	}

	cfg.Devices[index].Displays = remote.Displays
	if err := a.store.Save(cfg); err != nil {
		return fmt.Errorf("unable to save pulled displays, %w", err)
	}
	slog.Info("pulled displays from device", "name", dev.Name, "ip", dev.IP, "displays", len(remote.Displays))
	return nil
}

// Broadcast pushes the local displays to every registered device.
// Per-device failures are logged and skipped; this is best effort with
// no retry queue.
func (a *Agent) Broadcast(cfg *config.RootConfig) {
	for _, dev := range cfg.Devices {
		if err := a.client.PushDisplays(dev.IP, cfg.Displays); err != nil {
			slog.Warn("broadcast push failed, skipping device", "name", dev.Name, "ip", dev.IP, "error", err)
			continue
		}
		slog.Info("broadcast displays to device", "name", dev.Name, "ip", dev.IP)
	}
}

// Fanout propagates a local edit according to role: a sub pushes its
// entire document to its main, a main broadcasts displays to its
// devices. Incoming merges never call this, so pushes cannot ping-pong
// between nodes.
func (a *Agent) Fanout() {
	cfg, err := a.store.Load()
	if err != nil {
		slog.Warn("unable to load config for fanout", "error", err)
		return
	}

	switch cfg.Role {
	case config.RoleSub:
		if cfg.MainIP == "" {
			slog.Debug("sub role with no main address, skipping fanout")
			return
		}
		if err := a.client.PushConfig(cfg.MainIP, cfg); err != nil {
			slog.Warn("push to main failed", "main_ip", cfg.MainIP, "error", err)
			return
		}
		slog.Info("pushed local config to main", "main_ip", cfg.MainIP)
	case config.RoleMain:
		a.Broadcast(cfg)
	}
}

// Reachable probes a peer with a few unprivileged ICMP echoes. The
// result is advisory; replication proceeds regardless.
func Reachable(ip string) bool {
	pinger, err := probing.NewPinger(ip)
	if err != nil {
		return false
	}
	pinger.Count = 3
	pinger.Timeout = 2 * time.Second
	pinger.SetPrivileged(false)
	if err := pinger.Run(); err != nil {
		return false
	}
	return pinger.Statistics().PacketsRecv > 0
}

// LocalIP returns the first non-loopback IPv4 address, or "" when the
// node has none.
func LocalIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return ""
}
