// Package preview mirrors the stream to browsers over websockets and takes
// simple live controls back.
package preview

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	diag "github.com/coreman2200/ledstream/diagnostics"
	"github.com/coreman2200/ledstream/internal/layout"
	"github.com/coreman2200/ledstream/pixel"
	"github.com/coreman2200/ledstream/transmit"
)

const writeWait = 200 * time.Millisecond

// Control is one message on /control. Absent fields are left alone.
type Control struct {
	Brightness *float64 `json:"brightness,omitempty"` // 0..1
	On         *bool    `json:"on,omitempty"`
	Pattern    *string  `json:"pattern,omitempty"`
	FPS        *int     `json:"fps,omitempty"`
}

type Frame struct {
	T       int64  `json:"t" msgpack:"t"`
	FrameID uint64 `json:"frame_id" msgpack:"frame_id"`
	RGB     []byte `json:"rgb" msgpack:"rgb"`
}

type Topology struct {
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Serpentine bool   `json:"serpentine"`
	Count      int    `json:"count"`
	Order      string `json:"order"`
	Driver     string `json:"driver"`
}

type client struct {
	msgpack bool
}

type Options struct {
	Layout layout.Layout
	Order  pixel.ColorOrder
	Driver string
	Log    zerolog.Logger
	// Health supplies the body of /health.
	Health func() map[string]any
	// OnControl applies a /control message.
	OnControl func(Control)
}

type Hub struct {
	opts  Options
	start time.Time
	log   zerolog.Logger

	mu          sync.RWMutex
	clients     map[*websocket.Conn]client
	diagClients map[*websocket.Conn]bool

	frameID atomic.Uint64
	rgb     []byte // broadcaster owned
	diags   chan diag.Diagnostic
	quit    chan struct{}
	tap     *transmit.Async

	closeOnce sync.Once

	up websocket.Upgrader
}

func NewHub(o Options) *Hub {
	if o.Order.IsZero() {
		o.Order = pixel.GRB
	}
	n := o.Layout.Count()
	h := &Hub{
		opts:        o,
		start:       time.Now(),
		log:         o.Log,
		clients:     map[*websocket.Conn]client{},
		diagClients: map[*websocket.Conn]bool{},
		rgb:         make([]byte, n*3),
		diags:       make(chan diag.Diagnostic, 64),
		quit:        make(chan struct{}),
		up:          websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
	h.tap = transmit.NewAsync(sender{h}, n*o.Order.Channels(), transmit.AsyncLogger(o.Log))
	go h.pumpDiags()
	return h
}

// Tap is a transmitter that mirrors frames to /ws clients. Frames arriving
// while a broadcast is still going are skipped.
func (h *Hub) Tap() *transmit.Async { return h.tap }

// Diag queues d for /diag clients without blocking; it drops when the
// queue is full.
func (h *Hub) Diag(d diag.Diagnostic) {
	select {
	case h.diags <- d:
	default:
	}
}

// Close stops the tap and drops every client. Calling it again is a no-op.
func (h *Hub) Close() error {
	var err error
	h.closeOnce.Do(func() {
		err = h.tap.Close()
		close(h.quit)
		h.mu.Lock()
		for c := range h.clients {
			c.Close()
		}
		for c := range h.diagClients {
			c.Close()
		}
		h.mu.Unlock()
	})
	return err
}

type sender struct{ h *Hub }

func (s sender) Send(frame []byte) error {
	s.h.broadcastFrame(frame)
	return nil
}

func (h *Hub) broadcastFrame(frame []byte) {
	ch := h.opts.Order.Channels()
	for i := 0; i*3+2 < len(h.rgb) && (i+1)*ch <= len(frame); i++ {
		p := h.opts.Order.Decode(frame[i*ch:])
		h.rgb[i*3], h.rgb[i*3+1], h.rgb[i*3+2] = p.R, p.G, p.B
	}
	f := Frame{T: time.Now().UnixNano(), FrameID: h.frameID.Add(1), RGB: h.rgb}

	var js, mp []byte
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c, cl := range h.clients {
		var err error
		c.SetWriteDeadline(time.Now().Add(writeWait))
		if cl.msgpack {
			if mp == nil {
				mp, _ = msgpack.Marshal(f)
			}
			err = c.WriteMessage(websocket.BinaryMessage, mp)
		} else {
			if js == nil {
				js, _ = json.Marshal(f)
			}
			err = c.WriteMessage(websocket.TextMessage, js)
		}
		if err != nil {
			h.log.Debug().Err(err).Msg("write frame")
		}
	}
}

func (h *Hub) pumpDiags() {
	for {
		var d diag.Diagnostic
		select {
		case <-h.quit:
			return
		case d = <-h.diags:
		}
		b, _ := json.Marshal(d)
		h.mu.RLock()
		for c := range h.diagClients {
			c.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.WriteMessage(websocket.TextMessage, b)
		}
		h.mu.RUnlock()
	}
}

func (h *Hub) FrameID() uint64 { return h.frameID.Load() }

func (h *Hub) topology() Topology {
	return Topology{
		Width:      h.opts.Layout.Width,
		Height:     h.opts.Layout.Height,
		Serpentine: h.opts.Layout.Serpentine,
		Count:      h.opts.Layout.Count(),
		Order:      h.opts.Order.String(),
		Driver:     h.opts.Driver,
	}
}

func (h *Hub) sendTopology(conn *websocket.Conn) {
	b, _ := json.Marshal(h.topology())
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.TextMessage, b)
}

// readUntilClosed drains a connection we only write to, so pings and the
// close handshake are handled, and runs done when the peer goes away.
func readUntilClosed(conn *websocket.Conn, done func()) {
	defer func() {
		done()
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// HandleFramesWS streams frames. ?enc=msgpack switches to binary messages.
func (h *Hub) HandleFramesWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	// topology goes out before any frame can
	h.mu.Lock()
	h.sendTopology(conn)
	h.clients[conn] = client{msgpack: r.URL.Query().Get("enc") == "msgpack"}
	h.mu.Unlock()

	go readUntilClosed(conn, func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	})
}

func (h *Hub) HandleDiagWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.mu.Lock()
	h.diagClients[conn] = true
	h.mu.Unlock()

	go readUntilClosed(conn, func() {
		h.mu.Lock()
		delete(h.diagClients, conn)
		h.mu.Unlock()
	})
}

func (h *Hub) HandleControlWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg Control
		if err := json.Unmarshal(data, &msg); err != nil {
			h.log.Debug().Err(err).Msg("bad control message")
			continue
		}
		if h.opts.OnControl != nil {
			h.opts.OnControl(msg)
		}
		h.sendTopology(conn)
	}
}

func (h *Hub) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{}
	if h.opts.Health != nil {
		for k, v := range h.opts.Health() {
			resp[k] = v
		}
	}
	resp["frame_id"] = h.FrameID()
	resp["uptime_s"] = time.Since(h.start).Seconds()
	resp["count"] = h.opts.Layout.Count()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// Register mounts the hub's routes on mux.
func (h *Hub) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleFramesWS)
	mux.HandleFunc("/diag", h.HandleDiagWS)
	mux.HandleFunc("/control", h.HandleControlWS)
	mux.HandleFunc("/health", h.HandleHealth)
}
