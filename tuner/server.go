// Package tuner serves a small HTTP/websocket collaborator for building
// and tuning AlarmProfiles interactively: REST endpoints to create, list,
// get and delete profiles plus a websocket feed of live peaks and matches. Grounded on
// dougsko-js8d's cmd/js8d/handlers.go (gin handler-per-route, c.JSON /
// c.ShouldBindJSON shape); the websocket upgrade itself has no in-pack
// usage example (js8d declares gorilla/websocket but never imports it),
// so it follows the library's own documented upgrade pattern.
package tuner

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	alarm "alarmwatch"
	"alarmwatch/profiles"
)

// Server exposes a profile-tuning REST API and a live detection feed.
type Server struct {
	router       *gin.Engine
	profilesDir  string
	loadedMu     sync.RWMutex
	loaded       map[string]alarm.AlarmProfile

	upgrader websocket.Upgrader

	feedMu   sync.Mutex
	feedConn map[*websocket.Conn]bool
}

// NewServer builds a tuner server that writes each created profile as a
// YAML file under profilesDir. It does not read existing files there; it
// starts with no profiles.
func NewServer(profilesDir string) *Server {
	s := &Server{
		profilesDir: profilesDir,
		loaded:      make(map[string]alarm.AlarmProfile),
		feedConn:    make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	gin.SetMode(gin.ReleaseMode)
	s.router = gin.New()
	s.router.Use(gin.Recovery())

	s.router.GET("/api/profiles", s.handleListProfiles)
	s.router.POST("/api/profiles", s.handleCreateProfile)
	s.router.GET("/api/profiles/:name", s.handleGetProfile)
	s.router.DELETE("/api/profiles/:name", s.handleDeleteProfile)
	s.router.GET("/ws/feed", s.handleFeed)

	return s
}

// Run starts the HTTP server, blocking until it exits or errors.
func (s *Server) Run(addr string) error {
	alarm.Logger.Info("tuner server listening", "addr", addr)
	return s.router.Run(addr)
}

type profileSummary struct {
	Name               string `json:"name"`
	Segments           int    `json:"segments"`
	ConfirmationCycles int    `json:"confirmation_cycles"`
}

func (s *Server) handleListProfiles(c *gin.Context) {
	s.loadedMu.RLock()
	defer s.loadedMu.RUnlock()

	out := make([]profileSummary, 0, len(s.loaded))
	for _, p := range s.loaded {
		out = append(out, profileSummary{
			Name:               p.Name,
			Segments:           len(p.Segments),
			ConfirmationCycles: p.ConfirmationCycles,
		})
	}
	c.JSON(http.StatusOK, gin.H{"profiles": out, "count": len(out)})
}

func (s *Server) handleGetProfile(c *gin.Context) {
	name := c.Param("name")

	s.loadedMu.RLock()
	p, ok := s.loaded[name]
	s.loadedMu.RUnlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleCreateProfile(c *gin.Context) {
	var req struct {
		Name               string          `json:"name" binding:"required"`
		Segments           []alarm.Segment `json:"segments" binding:"required"`
		ConfirmationCycles int             `json:"confirmation_cycles"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var opts []func(*alarm.AlarmProfile)
	if req.ConfirmationCycles > 0 {
		cycles := req.ConfirmationCycles
		opts = append(opts, func(p *alarm.AlarmProfile) { p.ConfirmationCycles = cycles })
	}

	profile, err := alarm.NewAlarmProfile(req.Name, req.Segments, opts...)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := profiles.SaveProfileToYAML(profile, s.profilesDir+"/"+profile.Name+".yaml"); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.loadedMu.Lock()
	s.loaded[profile.Name] = profile
	s.loadedMu.Unlock()

	c.JSON(http.StatusCreated, profile)
}

func (s *Server) handleDeleteProfile(c *gin.Context) {
	name := c.Param("name")

	s.loadedMu.Lock()
	_, ok := s.loaded[name]
	delete(s.loaded, name)
	s.loadedMu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": name})
}

// handleFeed upgrades to a websocket and registers the connection to
// receive BroadcastMatch/BroadcastPeaks pushes.
func (s *Server) handleFeed(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		alarm.Logger.Error("websocket upgrade failed", "error", err)
		return
	}

	s.feedMu.Lock()
	s.feedConn[conn] = true
	s.feedMu.Unlock()

	go func() {
		defer func() {
			s.feedMu.Lock()
			delete(s.feedConn, conn)
			s.feedMu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// BroadcastMatch pushes a PatternMatchEvent to every connected tuner
// client; intended as an Engine Sink.OnMatch callback.
func (s *Server) BroadcastMatch(match alarm.PatternMatchEvent) {
	s.broadcast(gin.H{"type": "match", "match": match})
}

// BroadcastPeaks pushes a chunk's raw spectral peaks, useful for a live
// spectrogram view while tuning a profile's frequency ranges.
func (s *Server) BroadcastPeaks(timestamp float64, peaks []alarm.Peak) {
	s.broadcast(gin.H{"type": "peaks", "timestamp": timestamp, "peaks": peaks})
}

func (s *Server) broadcast(payload gin.H) {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()

	for conn := range s.feedConn {
		if err := conn.WriteJSON(payload); err != nil {
			alarm.Logger.Warn("websocket write failed", "error", err)
			conn.Close()
			delete(s.feedConn, conn)
		}
	}
}
