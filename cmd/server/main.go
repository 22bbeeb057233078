// Package main implements the maze game server.
//
// Architecture overview:
//   - WebSocket for real-time bidirectional communication with clients,
//     one connection per session (owner or player).
//   - Each room runs its own single-threaded event loop at the fixed
//     simulation tick rate (internal/game.Room.Run).
//   - State is pushed to clients as JSON STATE messages: a full
//     snapshot on attach/resync, a delta otherwise.
//
// Connection flow:
//  1. Client calls POST /rooms to obtain a fresh room code.
//  2. Client connects to /ws?room=<code>&role=owner|player&nick=<nick>.
//  3. Server attaches the session to the room and starts its pumps.
//  4. Owner sends O_START once both sessions are present.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mazegame/server/config"
	"github.com/mazegame/server/internal/directory"
	"github.com/mazegame/server/internal/game"
	"github.com/mazegame/server/internal/maze"
	"github.com/mazegame/server/internal/network"
)

// Server is the process-wide HTTP/WebSocket entry point. It owns the
// room directory and the WebSocket upgrader.
type Server struct {
	config    *config.ServerConfig
	directory *directory.Directory
	upgrader  websocket.Upgrader
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := loadConfig()
	srv := NewServer(cfg)

	log.Printf("=================================")
	log.Printf("  Maze Game Server")
	log.Printf("=================================")
	log.Printf("  Host: %s", cfg.Host)
	log.Printf("  Port: %d", cfg.Port)
	log.Printf("  Tick Rate: %d Hz", config.TickRate)
	log.Printf("=================================")

	if err := srv.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// loadConfig reads configuration from environment variables, falling
// back to config.DefaultServerConfig.
func loadConfig() *config.ServerConfig {
	cfg := config.DefaultServerConfig()

	if host := os.Getenv("HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if cors := os.Getenv("ENABLE_CORS"); cors == "false" {
		cfg.EnableCORS = false
	}

	return cfg
}

// NewServer wires up a Server with its room directory and upgrader.
func NewServer(cfg *config.ServerConfig) *Server {
	dir := directory.New(game.RealClock{}, maze.NewSpanningTreeFactory())
	return &Server{
		config:    cfg,
		directory: dir,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return cfg.EnableCORS
			},
		},
	}
}

// Start registers HTTP handlers and blocks serving connections.
func (s *Server) Start() error {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			if n := s.directory.RoomCount(); n > 0 {
				log.Printf("stats: %d active rooms", n)
			}
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/rooms", s.handleCreateRoom)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	log.Printf("listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// handleCreateRoom implements the external collaborator contract:
// POST /rooms -> {"roomId":"XXXXXX"}.
func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	room, err := s.directory.CreateRoom()
	if err != nil {
		log.Printf("create room: %v", err)
		http.Error(w, "could not allocate a room", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		RoomID string `json:"roomId"`
	}{RoomID: room.Code})
}

// handleWebSocket upgrades the connection and attaches it to the room
// named by the room/role/nick query parameters.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	params, err := network.ParseAttachParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	room, err := s.directory.Lookup(params.RoomCode)
	if err != nil {
		http.Error(w, "unknown room", http.StatusNotFound)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	conn := network.NewClientConnection(ws)
	sess, err := room.Attach(params.Role, params.Nick, conn)
	if err != nil {
		log.Printf("attach rejected for %s: %v", conn.RemoteAddr(), err)
		_ = conn.Close("rejected")
		return
	}

	conn.Attach(room, sess)
	log.Printf("%s joined room %s as %s", params.Nick, params.RoomCode, params.Role)
}
