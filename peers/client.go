// Package peers implements the device-to-device configuration
// replication protocol: a thin HTTP client for the peer operations and
// an agent that applies the main/sub push-pull semantics on top of the
// local config store.
package peers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aouyang1/displaywall/config"
	"github.com/aouyang1/displaywall/monitors"
)

const requestTimeout = 5 * time.Second

// Client talks to one peer operation at a time over plain HTTP on the
// fixed peer port. Every call is bounded by its own short timeout so a
// dead peer never stalls a replication pass beyond itself.
type Client struct {
	port   int
	client *http.Client
}

func NewClient(port int) *Client {
	if port <= 0 {
		port = config.DefaultPeerPort
	}
	return &Client{
		port:   port,
		client: &http.Client{Timeout: requestTimeout},
	}
}

func (c *Client) url(ip, path string) string {
	return fmt.Sprintf("http://%s:%d%s", ip, c.port, path)
}

func (c *Client) getJSON(ip, path string, out any) error {
	resp, err := c.client.Get(c.url(ip, path))
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// GetConfig fetches the peer's full config document.
func (c *Client) GetConfig(ip string) (*config.RootConfig, error) {
	cfg := config.DefaultRootConfig()
	if err := c.getJSON(ip, "/sync_config", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetMonitors fetches the peer's currently detected displays.
func (c *Client) GetMonitors(ip string) (map[string]monitors.Monitor, error) {
	var mons map[string]monitors.Monitor
	if err := c.getJSON(ip, "/list_monitors", &mons); err != nil {
		return nil, err
	}
	return mons, nil
}

// GetFolders fetches the peer's library folder names.
func (c *Client) GetFolders(ip string) ([]string, error) {
	var folders []string
	if err := c.getJSON(ip, "/list_folders", &folders); err != nil {
		return nil, err
	}
	return folders, nil
}

func (c *Client) postJSON(ip, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.client.Post(c.url(ip, path), "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// PushDisplays sends a partial document carrying only the displays
// key. The receiver replaces its displays wholesale through its merge
// allow-list.
func (c *Client) PushDisplays(ip string, displays map[string]config.DisplayConfig) error {
	return c.postJSON(ip, "/update_config", map[string]any{"displays": displays})
}

// PushConfig sends the entire local document. Used by sub nodes
// propagating edits to their main; the receiver still filters through
// its allow-list, so identity fields never cross.
func (c *Client) PushConfig(ip string, cfg *config.RootConfig) error {
	return c.postJSON(ip, "/update_config", cfg)
}
