package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"spot-tracker/internal/config"
	"spot-tracker/internal/pipeline"
	"spot-tracker/internal/protocol"
	"spot-tracker/internal/track"
)

// commandTimeout bounds how long a client command waits for the pipeline.
const commandTimeout = 2 * time.Second

// Config for the server
type Config struct {
	ListenAddr string
}

// Server exposes the tracking pipeline over WebSocket and HTTP
type Server struct {
	cfg       Config
	pipe      *pipeline.Pipeline
	clients   map[*Client]bool
	clientsMu sync.RWMutex
	upgrader  websocket.Upgrader
	http      *http.Server
}

// Client represents a connected WebSocket client
type Client struct {
	id     string
	conn   *websocket.Conn
	server *Server
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

// New creates a new server instance. Register Broadcast as the pipeline's
// status sink to push status updates to clients.
func New(cfg Config, pipe *pipeline.Pipeline) *Server {
	s := &Server{
		cfg:     cfg,
		pipe:    pipe,
		clients: make(map[*Client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for local use
			},
		},
	}
	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/api/status", s.handleStatus)
	return mux
}

// Start serves until Stop is called
func (s *Server) Start() error {
	log.Printf("Server starting on %s", s.cfg.ListenAddr)
	return s.http.ListenAndServe()
}

// Stop disconnects all clients and shuts the HTTP server down
func (s *Server) Stop() {
	s.clientsMu.Lock()
	for client := range s.clients {
		client.Close()
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
}

// Broadcast sends a status update to every client. It never blocks; slow
// clients miss updates.
func (s *Server) Broadcast(st pipeline.Status) {
	data, err := encode(protocol.TypeStatus, statusPayload(st))
	if err != nil {
		log.Printf("Failed to encode status: %v", err)
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for client := range s.clients {
		client.sendRaw(data)
	}
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(statusPayload(s.pipe.Snapshot())); err != nil {
		log.Printf("Failed to write status: %v", err)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &Client{
		id:     uuid.New().String(),
		conn:   conn,
		server: s,
		send:   make(chan []byte, 64),
	}

	s.clientsMu.Lock()
	s.clients[client] = true
	s.clientsMu.Unlock()
	log.Printf("Client %s connected from %s", client.id, r.RemoteAddr)

	// Start client goroutines
	go client.writePump()
	go client.readPump()

	// Send initial status
	client.sendMessage(protocol.TypeStatus, statusPayload(s.pipe.Snapshot()))
}

func statusPayload(st pipeline.Status) protocol.StatusPayload {
	ts := st.Tracker
	p := protocol.StatusPayload{
		Mode:         ts.Mode.String(),
		Phase:        ts.Phase.String(),
		Pan:          ts.State.Pan,
		Tilt:         ts.State.Tilt,
		TargetX:      ts.State.TargetX,
		TargetY:      ts.State.TargetY,
		Tracking:     ts.State.Tracking,
		LostFrames:   ts.State.LostFrames,
		Returning:    ts.State.ReturningToCenter,
		TargetH:      string(ts.TargetH),
		TargetV:      string(ts.TargetV),
		PanMotion:    string(ts.PanMotion),
		TiltMotion:   string(ts.TiltMotion),
		Found:        st.Detection.Found,
		SpotX:        st.Detection.X,
		SpotY:        st.Detection.Y,
		Confidence:   st.Detection.Confidence,
		MissStreak:   st.LostCount,
		Threshold:    st.Threshold,
		Frames:       st.Detector.Frames,
		Detections:   st.Detector.Detections,
		DecodeErrors: st.DecodeErrors,
		Width:        ts.Width,
		Height:       ts.Height,
	}
	if !st.Detection.Found && st.Ticks > 0 {
		p.Miss = st.Detection.Miss.String()
	}
	return p
}

func encode(msgType string, payload any) ([]byte, error) {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType string, payload any) {
	data, err := encode(msgType, payload)
	if err != nil {
		log.Printf("Failed to create message: %v", err)
		return
	}
	c.sendRaw(data)
}

func (c *Client) sendError(code, message string) {
	c.sendMessage(protocol.TypeError, protocol.ErrorPayload{Code: code, Message: message})
}

func (c *Client) sendRaw(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
		log.Printf("Client %s send buffer full, dropping message", c.id)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.server.clientsMu.Lock()
		delete(c.server.clients, c)
		c.server.clientsMu.Unlock()
		c.Close()
		log.Printf("Client %s disconnected", c.id)
	}()

	c.conn.SetReadLimit(65536)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}

		c.handleMessage(data)
	}
}

func (c *Client) handleMessage(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError(protocol.ErrInvalidMessage, "Failed to parse message")
		return
	}

	switch msg.Type {
	case protocol.TypePing:
		var payload protocol.PingPayload
		if err := msg.ParsePayload(&payload); err != nil {
			c.sendError(protocol.ErrInvalidMessage, err.Error())
			return
		}
		c.sendMessage(protocol.TypePong, protocol.PongPayload{
			ClientTimestamp: payload.Timestamp,
			ServerTimestamp: time.Now().UnixMilli(),
		})

	case protocol.TypeStatus:
		c.sendMessage(protocol.TypeStatus, statusPayload(c.server.pipe.Snapshot()))

	case protocol.TypeSetMode:
		var payload protocol.SetModePayload
		if err := msg.ParsePayload(&payload); err != nil {
			c.sendError(protocol.ErrInvalidMessage, err.Error())
			return
		}
		mode, err := track.ParseMode(payload.Mode)
		if err != nil {
			c.sendError(protocol.ErrInvalidMode, err.Error())
			return
		}
		c.submit(func(p *pipeline.Pipeline) {
			p.Controller().SetMode(mode)
		})

	case protocol.TypeManual:
		var payload protocol.ManualPayload
		if err := msg.ParsePayload(&payload); err != nil {
			c.sendError(protocol.ErrInvalidMessage, err.Error())
			return
		}
		c.handleManual(payload)

	case protocol.TypeSetAngles:
		var payload protocol.SetAnglesPayload
		if err := msg.ParsePayload(&payload); err != nil {
			c.sendError(protocol.ErrInvalidMessage, err.Error())
			return
		}
		c.submit(func(p *pipeline.Pipeline) {
			p.Controller().SetAngles(payload.Pan, payload.Tilt)
		})

	case protocol.TypeTuning:
		tuning := config.EmptyTuningConfig()
		if err := msg.ParsePayload(tuning); err != nil {
			c.sendError(protocol.ErrInvalidMessage, err.Error())
			return
		}
		c.submit(func(p *pipeline.Pipeline) {
			tuning.ApplyTo(p.Detector(), p.Controller())
			if tuning.CompressedFallback != nil {
				p.SetCompressedFallback(*tuning.CompressedFallback)
			}
		})

	case protocol.TypeReset:
		c.submit(func(p *pipeline.Pipeline) {
			p.Detector().Reset()
			p.Controller().Reset()
		})

	default:
		log.Printf("Unknown message type: %s", msg.Type)
		c.sendError(protocol.ErrInvalidMessage, "unknown message type: "+msg.Type)
	}
}

func (c *Client) handleManual(cmd protocol.ManualPayload) {
	pan, tilt := cmd.Pan, cmd.Tilt
	if cmd.Step != "" {
		var ok bool
		pan, tilt, ok = protocol.StepDelta(cmd.Step, track.ManualStep)
		if !ok {
			c.sendError(protocol.ErrInvalidMessage, "unknown step direction: "+cmd.Step)
			return
		}
	}
	c.submit(func(p *pipeline.Pipeline) {
		p.Controller().ManualControl(pan, tilt)
	})
}

// submit runs fn on the pipeline. The pipeline publishes a status update
// afterwards, which reaches this client through Broadcast.
func (c *Client) submit(fn func(*pipeline.Pipeline)) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := c.server.pipe.Submit(ctx, fn); err != nil {
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "pipeline busy"
		}
		c.sendError(protocol.ErrPipeline, msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
