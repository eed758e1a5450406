package player

import (
	"bufio"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"
)

// listenIPC accepts connections on a throwaway unix socket and streams
// each received command line.
func listenIPC(t *testing.T) (*Channel, <-chan string) {
	t.Helper()

	sockPath := filepath.Join(t.TempDir(), "mpv.sock")
	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	lines := make(chan string, 16)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				scanner := bufio.NewScanner(conn)
				for scanner.Scan() {
					lines <- scanner.Text()
				}
			}(conn)
		}
	}()

	return &Channel{sockPath: sockPath}, lines
}

func recvCommand(t *testing.T, lines <-chan string) []any {
	t.Helper()
	select {
	case line := <-lines:
		var msg struct {
			Command []any `json:"command"`
		}
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			t.Fatalf("unmarshal %q: %v", line, err)
		}
		return msg.Command
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for command")
		return nil
	}
}

func TestChannelLoadFile(t *testing.T) {
	ch, lines := listenIPC(t)

	if err := ch.LoadFile("/images/a.jpg"); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	cmd := recvCommand(t, lines)
	if len(cmd) != 3 || cmd[0] != "loadfile" || cmd[1] != "/images/a.jpg" || cmd[2] != "replace" {
		t.Errorf("command = %v, want [loadfile /images/a.jpg replace]", cmd)
	}
}

func TestChannelSetLoop(t *testing.T) {
	ch, lines := listenIPC(t)

	if err := ch.SetLoop(); err != nil {
		t.Fatalf("SetLoop: %v", err)
	}

	cmd := recvCommand(t, lines)
	if len(cmd) != 3 || cmd[0] != "set_property" || cmd[1] != "loop-file" || cmd[2] != "inf" {
		t.Errorf("command = %v, want [set_property loop-file inf]", cmd)
	}
}

func TestChannelSetRotation(t *testing.T) {
	ch, lines := listenIPC(t)

	if err := ch.SetRotation(90); err != nil {
		t.Fatalf("SetRotation: %v", err)
	}

	cmd := recvCommand(t, lines)
	// numbers come back as float64 through generic json decoding
	if len(cmd) != 3 || cmd[0] != "set_property" || cmd[1] != "video-rotate" || cmd[2] != float64(90) {
		t.Errorf("command = %v, want [set_property video-rotate 90]", cmd)
	}
}

func TestChannelMissingSocket(t *testing.T) {
	ch := &Channel{sockPath: filepath.Join(t.TempDir(), "absent.sock")}
	if err := ch.LoadFile("/images/a.jpg"); err == nil {
		t.Error("expected error when socket does not exist")
	}
}

func TestSocketPathPerDisplay(t *testing.T) {
	if got := SocketPath("HDMI-1"); got != "/tmp/mpv_HDMI-1.sock" {
		t.Errorf("SocketPath = %s", got)
	}
	if SocketPath("HDMI-1") == SocketPath("HDMI-2") {
		t.Error("socket paths for different displays must differ")
	}
}
