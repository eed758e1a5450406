// Package api is the peer-protocol and admin web server. Every node
// serves these routes regardless of role; only the device admin
// surface is gated to main.
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aouyang1/displaywall/api/models"
	"github.com/aouyang1/displaywall/config"
	"github.com/aouyang1/displaywall/monitors"
	"github.com/aouyang1/displaywall/peers"
	"github.com/aouyang1/displaywall/store"
)

type Server struct {
	router *gin.Engine

	store    config.Store
	agent    *peers.Agent
	index    *store.Index
	imageDir string
}

func NewServer(cfgStore config.Store, agent *peers.Agent, index *store.Index, imageDir string) *Server {
	s := &Server{
		router:   gin.Default(),
		store:    cfgStore,
		agent:    agent,
		index:    index,
		imageDir: imageDir,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// peer protocol
	s.router.GET("/sync_config", s.handleSyncConfig)
	s.router.POST("/update_config", s.handleUpdateConfig)
	s.router.GET("/list_monitors", s.handleListMonitors)
	s.router.GET("/list_folders", s.handleListFolders)

	// local surface
	s.router.GET("/folder_counts", s.handleFolderCounts)
	s.router.GET("/images/*filepath", s.handleImage)
	s.router.GET("/health", s.handleHealth)
	s.router.POST("/propagate", s.handlePropagate)

	// device admin (main role only)
	s.router.GET("/devices", s.handleListDevices)
	s.router.POST("/devices", s.handleAddDevice)
	s.router.DELETE("/devices/:index", s.handleRemoveDevice)
	s.router.POST("/devices/:index/push", s.handlePushDevice)
	s.router.POST("/devices/:index/pull", s.handlePullDevice)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) Run(addr string) {
	log.Printf("Starting peer api server on %s", addr)
	if err := s.router.Run(addr); err != nil {
		log.Fatalf("Failed to start peer api server: %v", err)
	}
}

func (s *Server) handleSyncConfig(c *gin.Context) {
	cfg, err := s.store.Load()
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: fmt.Sprintf("Failed to load config: %v", err)})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) handleUpdateConfig(c *gin.Context) {
	var partial map[string]json.RawMessage
	if err := c.ShouldBindJSON(&partial); err != nil {
		c.String(http.StatusBadRequest, "No JSON received")
		return
	}
	if len(partial) == 0 {
		c.String(http.StatusBadRequest, "No JSON received")
		return
	}

	if err := s.agent.MergeConfig(partial); err != nil {
		c.String(http.StatusInternalServerError, fmt.Sprintf("Failed to merge config: %v", err))
		return
	}
	c.String(http.StatusOK, "Config updated")
}

func (s *Server) handleListMonitors(c *gin.Context) {
	c.JSON(http.StatusOK, monitors.Detect())
}

func (s *Server) handleListFolders(c *gin.Context) {
	folders, err := s.index.Folders()
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: fmt.Sprintf("Failed to list folders: %v", err)})
		return
	}
	if folders == nil {
		folders = []string{}
	}
	c.JSON(http.StatusOK, folders)
}

func (s *Server) handleFolderCounts(c *gin.Context) {
	folders, err := s.index.Folders()
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: fmt.Sprintf("Failed to list folders: %v", err)})
		return
	}

	counts := make([]models.FolderCount, 0, len(folders))
	for _, folder := range folders {
		n, err := s.index.Count(folder)
		if err != nil {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: fmt.Sprintf("Failed to count folder: %v", err)})
			return
		}
		counts = append(counts, models.FolderCount{Name: folder, Count: n})
	}
	c.JSON(http.StatusOK, counts)
}

func (s *Server) handleImage(c *gin.Context) {
	rel := strings.TrimPrefix(c.Param("filepath"), "/")
	full := filepath.Join(s.imageDir, filepath.Clean(rel))

	// keep requests inside the library
	if !strings.HasPrefix(full, filepath.Clean(s.imageDir)+string(os.PathSeparator)) {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid image path"})
		return
	}
	if _, err := os.Stat(full); err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: fmt.Sprintf("Image not found: %s", rel)})
		return
	}
	c.File(full)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handlePropagate is the fan-out hook called after a local save. The
// excluded form UI posts here once it has written the document.
func (s *Server) handlePropagate(c *gin.Context) {
	s.agent.Fanout()
	c.String(http.StatusOK, "Propagation complete")
}

// requireMain loads the config and rejects the request when this node
// is not the main. Returns nil when rejected.
func (s *Server) requireMain(c *gin.Context) *config.RootConfig {
	cfg, err := s.store.Load()
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: fmt.Sprintf("Failed to load config: %v", err)})
		return nil
	}
	if cfg.Role != config.RoleMain {
		c.JSON(http.StatusForbidden, models.ErrorResponse{Error: "This device is not 'main'"})
		return nil
	}
	return cfg
}

func (s *Server) handleListDevices(c *gin.Context) {
	cfg := s.requireMain(c)
	if cfg == nil {
		return
	}

	devices := make([]models.DeviceResponse, 0, len(cfg.Devices))
	for i, dev := range cfg.Devices {
		devices = append(devices, models.DeviceResponse{
			Index:    i,
			Name:     dev.Name,
			IP:       dev.IP,
			Displays: dev.Displays,
		})
	}
	c.JSON(http.StatusOK, devices)
}

func (s *Server) handleAddDevice(c *gin.Context) {
	if s.requireMain(c) == nil {
		return
	}

	var req models.AddDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: fmt.Sprintf("Invalid request body: %v", err)})
		return
	}
	if req.Name == "" || req.IP == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "name and ip are required"})
		return
	}

	if err := s.agent.AddDevice(req.Name, req.IP); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	// advisory only; an unreachable device can still be registered
	go func(ip string) {
		if !peers.Reachable(ip) {
			slog.Warn("newly added device did not answer ping", "ip", ip)
		}
	}(req.IP)

	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Added device %s (%s)", req.Name, req.IP)})
}

func (s *Server) deviceIndex(c *gin.Context) (int, bool) {
	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid device index"})
		return 0, false
	}
	return idx, true
}

func (s *Server) handleRemoveDevice(c *gin.Context) {
	if s.requireMain(c) == nil {
		return
	}
	idx, ok := s.deviceIndex(c)
	if !ok {
		return
	}

	if err := s.agent.RemoveDevice(idx); err != nil {
		status := http.StatusBadRequest
		if err == peers.ErrInvalidIndex {
			status = http.StatusNotFound
		}
		c.JSON(status, models.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Device removed"})
}

func (s *Server) handlePushDevice(c *gin.Context) {
	if s.requireMain(c) == nil {
		return
	}
	idx, ok := s.deviceIndex(c)
	if !ok {
		return
	}

	if err := s.agent.Push(idx); err != nil {
		c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Pushed displays to device"})
}

func (s *Server) handlePullDevice(c *gin.Context) {
	if s.requireMain(c) == nil {
		return
	}
	idx, ok := s.deviceIndex(c)
	if !ok {
		return
	}

	if err := s.agent.Pull(idx); err != nil {
		c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Pulled displays from device"})
}
