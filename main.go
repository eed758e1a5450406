package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/aouyang1/displaywall/api"
	"github.com/aouyang1/displaywall/cloudsync"
	"github.com/aouyang1/displaywall/config"
	"github.com/aouyang1/displaywall/monitors"
	"github.com/aouyang1/displaywall/peers"
	"github.com/aouyang1/displaywall/slideshow"
	"github.com/aouyang1/displaywall/store"
)

func main() {
	// Get DW_ROOT_PATH from environment
	rootPath := os.Getenv("DW_ROOT_PATH")
	if rootPath == "" {
		log.Fatal("DW_ROOT_PATH environment variable is required")
	}

	appCfg, err := config.LoadApp(rootPath)
	if err != nil {
		log.Fatalf("Failed to load app config: %v", err)
	}

	if err := os.MkdirAll(appCfg.ImageDir, 0o755); err != nil {
		log.Fatalf("Failed to create image directory: %v", err)
	}

	// Initialize the shared config document
	cfgStore := config.NewFileStore(appCfg.ConfigPath)
	if err := cfgStore.Init(); err != nil {
		log.Fatalf("Failed to initialize config store: %v", err)
	}

	// A node with no usable display output cannot do its job
	mons := monitors.List()
	if len(mons) == 0 {
		log.Fatal("No monitors detected")
	}
	slog.Info("detected monitors", "count", len(mons))

	// Library index + scanner
	index, err := store.Open(appCfg.IndexPath)
	if err != nil {
		log.Fatalf("Failed to open library index: %v", err)
	}
	defer index.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	scanner := store.NewScanner(index, appCfg.ImageDir, appCfg.ScanInterval)
	go scanner.Run(ctx)

	// Optional cloud mirror
	if appCfg.CloudEnabled() {
		syncer, err := cloudsync.New(ctx, appCfg.AWSProfile, appCfg.S3Bucket, filepath.Join(appCfg.ImageDir, appCfg.CloudFolder))
		if err != nil {
			log.Fatalf("Failed to initialize cloud mirror: %v", err)
		}
		go syncer.Run(ctx)
	} else {
		slog.Info("cloud mirror not configured, skipping")
	}

	// Replication agent + peer api server
	agent := peers.NewAgent(cfgStore, peers.NewClient(appCfg.PeerPort))
	server := api.NewServer(cfgStore, agent, index, appCfg.ImageDir)
	go server.Run(fmt.Sprintf("%s:%d", appCfg.ListenAddr, appCfg.PeerPort))

	// Slideshow units, one per display; blocks until shutdown and does
	// not return until every renderer process has exited
	orch := slideshow.NewOrchestrator(cfgStore, appCfg.ImageDir, appCfg.MPVBin, nil)
	orch.Run(ctx)

	slog.Info("shutdown complete")
}
