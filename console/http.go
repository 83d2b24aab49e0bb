package console

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bosley/voiceguard/audio"
	"github.com/bosley/voiceguard/predict"
	"github.com/bosley/voiceguard/session"
	"github.com/bosley/voiceguard/ui"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	maxUploadSize = 32 << 20
)

type wsConnection struct {
	conn    *websocket.Conn
	id      string
	send    chan []byte
	console *Console

	mu     sync.Mutex
	closed bool
}

// Handler returns the console router.
func (c *Console) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(c.countRequests)

	// API routes
	router.HandleFunc("/api/state", c.handleState).Methods("GET")
	router.HandleFunc("/api/recording/start", c.handleStartRecording).Methods("POST")
	router.HandleFunc("/api/recording/stop", c.handleStopRecording).Methods("POST")
	router.HandleFunc("/api/file", c.handleSelectFile).Methods("POST")
	router.HandleFunc("/api/analyze", c.handleAnalyze).Methods("POST")
	router.HandleFunc("/api/alert/dismiss", c.handleDismissAlert).Methods("POST")
	router.HandleFunc("/api/preview", c.handlePreview).Methods("GET")
	router.HandleFunc("/ws", c.handleWebSocket)
	router.Handle("/metrics", promhttp.HandlerFor(c.config.Gatherer, promhttp.HandlerOpts{}))

	return router
}

func (c *Console) startHTTP(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Console listening", "address", c.config.HTTPAddr)
		if err := c.server.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (c *Console) handleState(w http.ResponseWriter, r *http.Request) {
	writeView(w, http.StatusOK, ui.Render(c.ctrl.State()))
}

func (c *Console) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	// The recording outlives this request, so it must not use its context.
	err := c.ctrl.StartRecording(context.WithoutCancel(r.Context()))
	writeView(w, statusFor(err), ui.Render(c.ctrl.State()))
}

func (c *Console) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	_, err := c.ctrl.StopRecording()
	writeView(w, statusFor(err), ui.Render(c.ctrl.State()))
}

func (c *Console) handleSelectFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "no file: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !audio.AcceptsFile(header.Filename) {
		http.Error(w, "only .wav files are accepted", http.StatusUnsupportedMediaType)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read upload", http.StatusBadRequest)
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = audio.MIMETypeFor(header.Filename)
	}

	p := audio.NewPayload(header.Filename, mimeType, audio.OriginFile, data)
	writeView(w, http.StatusOK, ui.Render(c.ctrl.SelectFile(p)))
}

// handleAnalyze accepts the submission and leaves the request to the worker,
// so a disconnecting client does not cancel it.
func (c *Console) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	sub, err := c.ctrl.Submit(c.baseContext())
	if err != nil {
		writeView(w, statusFor(err), ui.Render(c.ctrl.State()))
		return
	}

	if err := c.enqueue(analysisJob{Submission: sub}); err != nil {
		slog.Error("Failed to queue analysis", "error", err)
		sub.Abandon(err)
		writeView(w, http.StatusServiceUnavailable, ui.Render(c.ctrl.State()))
		return
	}
	writeView(w, http.StatusAccepted, ui.Render(sub.State()))
}

func (c *Console) handleDismissAlert(w http.ResponseWriter, r *http.Request) {
	writeView(w, http.StatusOK, ui.Render(c.ctrl.DismissAlert()))
}

func (c *Console) handlePreview(w http.ResponseWriter, r *http.Request) {
	preview := c.ctrl.State().Preview
	if preview == "" {
		http.Error(w, "No recording", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", audio.MIMETypeWAV)
	http.ServeFile(w, r, preview)
}

func (c *Console) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Upgrade connection to WebSocket
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	wsConn := &wsConnection{
		conn:    conn,
		id:      uuid.New().String(),
		send:    make(chan []byte, 256),
		console: c,
	}

	// Register before sending the current view so no later state is missed.
	c.subscribers.Store(wsConn.id, wsConn)
	c.config.Metrics.AddWebSocketClients(1)
	slog.Debug("WebSocket viewer connected", "viewerID", wsConn.id)

	if data, err := json.Marshal(ui.Render(c.ctrl.State())); err == nil {
		wsConn.enqueue(data)
	}

	// Start the connection handlers
	go wsConn.writePump()
	go wsConn.readPump()
}

// broadcast sends every new view to the websocket viewers.
func (c *Console) broadcast(s session.State) {
	data, err := json.Marshal(ui.Render(s))
	if err != nil {
		slog.Error("Failed to marshal view", "error", err)
		return
	}

	c.subscribers.Range(func(key, value interface{}) bool {
		conn := value.(*wsConnection)
		if !conn.enqueue(data) {
			slog.Warn("Failed to send to viewer - channel full", "viewerID", conn.id)
		}
		return true
	})
}

func (c *Console) unregisterSubscriber(wsConn *wsConnection) {
	if _, loaded := c.subscribers.LoadAndDelete(wsConn.id); loaded {
		c.config.Metrics.AddWebSocketClients(-1)
		slog.Debug("WebSocket viewer disconnected", "viewerID", wsConn.id)
	}
}

// enqueue queues data unless the connection is closed or its buffer is full.
func (c *wsConnection) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *wsConnection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *wsConnection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsConnection) readPump() {
	defer func() {
		c.console.unregisterSubscriber(c)
		c.close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket read error", "error", err)
			}
			break
		}
	}
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case session.IsUserError(err), errors.Is(err, session.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, predict.ErrBackendUnreachable):
		return http.StatusBadGateway
	default:
		return http.StatusServiceUnavailable
	}
}

func writeView(w http.ResponseWriter, status int, v ui.View) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Hijack lets the websocket upgrade pass through the recorder.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (c *Console) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		c.config.Metrics.ObserveHTTP(route, strconv.Itoa(rec.status))
	})
}
