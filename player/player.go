// Package player owns the external mpv renderer process for one
// display and the unix-socket control channel used to drive it
// without restarting it.
package player

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

const sendTimeout = 2 * time.Second

// CommandSender is the controller-facing side of the control channel.
type CommandSender interface {
	LoadFile(path string) error
	SetLoop() error
	SetRotation(degrees int) error
}

// SocketPath returns the per-display control socket path. One path per
// display name, so channels never collide.
func SocketPath(displayName string) string {
	return filepath.Join("/tmp", "mpv_"+displayName+".sock")
}

// Channel sends JSON IPC commands to one mpv instance. A missing or
// dead socket yields an error the caller logs and ignores; the next
// slideshow tick retries.
type Channel struct {
	sockPath string
}

func NewChannel(displayName string) *Channel {
	return &Channel{sockPath: SocketPath(displayName)}
}

func (c *Channel) send(cmd []any) error {
	payload, err := json.Marshal(map[string]any{"command": cmd})
	if err != nil {
		return fmt.Errorf("unable to marshal mpv command, %w", err)
	}

	conn, err := net.DialTimeout("unix", c.sockPath, sendTimeout)
	if err != nil {
		return fmt.Errorf("unable to reach mpv socket %s, %w", c.sockPath, err)
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(sendTimeout))
	if _, err := conn.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("unable to write mpv command, %w", err)
	}
	return nil
}

// LoadFile replaces the currently shown content with the given file.
func (c *Channel) LoadFile(path string) error {
	return c.send([]any{"loadfile", path, "replace"})
}

// SetLoop pins loop-file to inf so still images never let mpv go
// idle. mpv resets this on file change, so it is re-applied after
// every load.
func (c *Channel) SetLoop() error {
	return c.send([]any{"set_property", "loop-file", "inf"})
}

// SetRotation asserts the video-rotate property. Re-applied after
// every load since loading resets transform state.
func (c *Channel) SetRotation(degrees int) error {
	return c.send([]any{"set_property", "video-rotate", degrees})
}

// Player is one running mpv instance pinned to a screen.
type Player struct {
	*Channel

	displayName string
	cmd         *exec.Cmd
}

// Start launches mpv fullscreen on the given screen index, idling
// between images. On spawn failure the returned Player still carries
// a usable channel so the controller can keep issuing (no-op) sends.
func Start(bin, displayName string, screenIndex int) (*Player, error) {
	p := &Player{
		Channel:     NewChannel(displayName),
		displayName: displayName,
	}

	cmd := exec.Command(bin,
		"--idle",
		"--fullscreen",
		"--no-terminal",
		"--quiet",
		"--force-window=yes",
		"--keep-open=yes",
		"--vo=gpu",
		"--loop-file=inf",
		"--input-ipc-server="+p.sockPath,
		fmt.Sprintf("--screen=%d", screenIndex),
	)
	if err := cmd.Start(); err != nil {
		return p, fmt.Errorf("unable to start mpv for %s, %w", displayName, err)
	}

	p.cmd = cmd
	slog.Info("started mpv", "display", displayName, "screen", screenIndex, "socket", p.sockPath)
	return p, nil
}

// Stop terminates the mpv process and waits for it to exit. It does
// not return until the process is gone, so no renderer is orphaned on
// shutdown.
func (p *Player) Stop() error {
	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// already exited, or signal delivery failed; make sure
		p.cmd.Process.Kill()
	}
	if err := p.cmd.Wait(); err != nil {
		slog.Debug("mpv exited with error", "display", p.displayName, "error", err)
	}
	slog.Info("stopped mpv", "display", p.displayName)
	return nil
}
