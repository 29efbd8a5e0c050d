package system

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebServer exposes the live telemetry Snapshot over a websocket feed,
// modeled on the teacher scheduler's WebServer: one goroutine drains a
// broadcast channel to every connected client, and a periodic ticker
// pushes a snapshot even to an otherwise-idle connection.
type WebServer struct {
	sys       *System
	server    *http.Server
	startTime time.Time
	upgrader  websocket.Upgrader
	clients   sync.Map
	broadcast chan []byte
	done      chan struct{}
}

// NewWebServer constructs a WebServer bound to port. A non-positive port
// disables it; every method below is nil-receiver safe.
func NewWebServer(sys *System, port int) *WebServer {
	if port <= 0 {
		return nil
	}

	mux := http.NewServeMux()
	ws := &WebServer{
		sys:       sys,
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		broadcast: make(chan []byte, 256),
		done:      make(chan struct{}),
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	mux.HandleFunc("/api/status", ws.statusHandler)
	mux.HandleFunc("/api/ws", ws.wsHandler)

	return ws
}

// Start starts the websocket telemetry server and its periodic
// broadcaster.
func (ws *WebServer) Start() error {
	if ws == nil {
		return nil
	}
	go ws.handleBroadcasts()
	go ws.broadcastPeriodically()
	go func() {
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("web server error: %v\n", err)
		}
	}()
	return nil
}

// Stop gracefully stops the websocket telemetry server.
func (ws *WebServer) Stop(ctx context.Context) error {
	if ws == nil {
		return nil
	}
	close(ws.done)
	ws.clients.Range(func(key, value any) bool {
		if conn, ok := key.(*websocket.Conn); ok {
			conn.Close()
		}
		return true
	})
	return ws.server.Shutdown(ctx)
}

// Broadcast queues snap for delivery to every connected client. Safe to
// call from the slow tick; a full broadcast channel drops the frame
// rather than blocking the control loop.
func (ws *WebServer) Broadcast(snap Snapshot) {
	if ws == nil {
		return
	}
	message, err := json.Marshal(snap)
	if err != nil {
		return
	}
	select {
	case ws.broadcast <- message:
	default:
	}
}

func (ws *WebServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ws.sys.Status())
}

func (ws *WebServer) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		fmt.Printf("websocket upgrade error: %v\n", err)
		return
	}

	ws.clients.Store(conn, true)
	if err := conn.WriteJSON(ws.sys.Status()); err != nil {
		fmt.Printf("failed to send initial snapshot: %v\n", err)
	}

	defer func() {
		ws.clients.Delete(conn)
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				fmt.Printf("websocket error: %v\n", err)
			}
			break
		}
	}
}

func (ws *WebServer) handleBroadcasts() {
	for {
		select {
		case message := <-ws.broadcast:
			ws.clients.Range(func(key, value any) bool {
				conn, ok := key.(*websocket.Conn)
				if !ok {
					return true
				}
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					conn.Close()
					ws.clients.Delete(conn)
				}
				return true
			})
		case <-ws.done:
			return
		}
	}
}

// broadcastPeriodically pushes a snapshot every 5s even absent a slow-tick
// status change, so a freshly connected client never waits more than one
// interval to see the feed move.
func (ws *WebServer) broadcastPeriodically() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ws.Broadcast(ws.sys.Status())
		case <-ws.done:
			return
		}
	}
}
