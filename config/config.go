// Package config holds the shared node configuration document and its
// durable store. The JSON layout is the wire format exchanged between
// devices, so field tags must stay stable.
package config

// Mode selects how a display picks its next image.
type Mode string

const (
	ModeRandom   Mode = "random_image"
	ModeSpecific Mode = "specific_image"
	ModeMixed    Mode = "mixed"
	ModeSpotify  Mode = "spotify"
)

// Replication roles. A main node holds the device registry and
// initiates push/pull; a sub node knows one main address.
const (
	RoleMain = "main"
	RoleSub  = "sub"
)

const (
	DefaultInterval = 60
	DefaultPeerPort = 8080
)

// DisplayConfig is the per-display slideshow settings block. Exactly
// one of ImageCategory/SpecificImage/MixedFolders is active, selected
// by Mode.
type DisplayConfig struct {
	Mode          Mode     `json:"mode"`
	ImageInterval int      `json:"image_interval"`
	ImageCategory string   `json:"image_category"`
	SpecificImage string   `json:"specific_image"`
	ShuffleMode   bool     `json:"shuffle_mode"`
	MixedFolders  []string `json:"mixed_folders"`
	Rotate        int      `json:"rotate"`
}

// DefaultDisplayConfig is the settings block assigned to a newly
// detected display.
func DefaultDisplayConfig() DisplayConfig {
	return DisplayConfig{
		Mode:          ModeRandom,
		ImageInterval: DefaultInterval,
		ImageCategory: "",
		SpecificImage: "",
		ShuffleMode:   false,
		MixedFolders:  []string{},
		Rotate:        0,
	}
}

// Device is a known peer on a main node. Displays is the last pulled
// copy of the peer's display settings, used for the read-only remote
// view and for targeted pushes.
type Device struct {
	Name     string                   `json:"name"`
	IP       string                   `json:"ip"`
	Displays map[string]DisplayConfig `json:"displays,omitempty"`
}

// RootConfig is the whole shared document. It is always read and
// written as a unit; concurrent writers are last-write-wins.
type RootConfig struct {
	Theme    string                   `json:"theme"`
	Role     string                   `json:"role"`
	MainIP   string                   `json:"main_ip"`
	Devices  []Device                 `json:"devices"`
	Displays map[string]DisplayConfig `json:"displays"`
}

// DefaultRootConfig is the document created on first run. Displays is
// left empty; monitor reconciliation fills it on the first pass.
func DefaultRootConfig() *RootConfig {
	return &RootConfig{
		Theme:    "dark",
		Role:     RoleMain,
		MainIP:   "",
		Devices:  []Device{},
		Displays: map[string]DisplayConfig{},
	}
}

// DeviceIndex returns the position of the device with the given ip,
// or -1.
func (c *RootConfig) DeviceIndex(ip string) int {
	for i, d := range c.Devices {
		if d.IP == ip {
			return i
		}
	}
	return -1
}
