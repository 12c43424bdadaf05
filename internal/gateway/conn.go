package gateway

import (
	"encoding/json"
	"errors"
	"log"
	"os/exec"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/asheshgoplani/agent-relay/internal/launchcfg"
)

// Terminal is the slice of the terminal adapter a connection drives. Tests
// inject a fake.
type Terminal interface {
	Name() string
	Write(data []byte) error
	Resize(cols, rows int) error
	Detach()
	CaptureHistory(lines int) string
	OnData(cb func([]byte)) func()
	OnExit(cb func(error)) func()
	OnReady(cb func())
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 50 * time.Second
	sendBuffer = 256
)

// frame is one outbound WebSocket message. PTY output goes out binary so the
// client emulator renders it directly; control responses go out as JSON text.
type frame struct {
	binary bool
	data   []byte
}

// clientMessage is the envelope for every inbound control message.
type clientMessage struct {
	Type   string      `json:"type"`
	Data   string      `json:"data"`
	Cols   int         `json:"cols"`
	Rows   int         `json:"rows"`
	Lines  int         `json:"lines"`
	Config RalphConfig `json:"config"`
}

// Conn relays one WebSocket client to one terminal.
type Conn struct {
	ws   *websocket.Conn
	term Terminal
	hub  *Hub

	launch         *launchcfg.Config
	debounceWindow time.Duration
	trustDelay     time.Duration
	now            func() time.Time

	send      chan frame
	closeOnce sync.Once
	done      chan struct{}

	mu        sync.Mutex
	lastRalph time.Time
}

func newConn(ws *websocket.Conn, term Terminal, hub *Hub, launch *launchcfg.Config, debounce, trustDelay time.Duration) *Conn {
	return &Conn{
		ws:             ws,
		term:           term,
		hub:            hub,
		launch:         launch,
		debounceWindow: debounce,
		trustDelay:     trustDelay,
		now:            time.Now,
		send:           make(chan frame, sendBuffer),
		done:           make(chan struct{}),
	}
}

// run wires the terminal to the socket and pumps until either side closes.
func (c *Conn) run() {
	c.hub.register(c)

	disposeData := c.term.OnData(func(data []byte) {
		buf := make([]byte, len(data))
		copy(buf, data)
		c.enqueueBinary(buf)
	})
	disposeExit := c.term.OnExit(func(err error) {
		c.enqueueJSON(map[string]any{"type": "exit", "code": exitCode(err)})
		c.close()
	})

	go c.writePump()
	c.readPump()

	disposeData()
	disposeExit()
	c.hub.unregister(c)
	c.close()

	// Detach rather than kill so the tmux session survives for reattach.
	c.term.Detach()
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

func (c *Conn) enqueueBinary(data []byte) { c.enqueue(frame{binary: true, data: data}) }
func (c *Conn) enqueueText(data []byte)   { c.enqueue(frame{data: data}) }

func (c *Conn) enqueueJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("gateway: marshal: %v", err)
		return
	}
	c.enqueueText(data)
}

func (c *Conn) enqueue(f frame) {
	select {
	case c.send <- f:
	case <-c.done:
	default:
		// Client cannot keep up, cut it loose.
		c.close()
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case f := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			kind := websocket.TextMessage
			if f.binary {
				kind = websocket.BinaryMessage
			}
			if err := c.ws.WriteMessage(kind, f.data); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) readPump() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		c.handleMessage(data)
	}
}

// handleMessage dispatches one inbound control message. Malformed JSON and
// unknown types are dropped without closing the connection.
func (c *Conn) handleMessage(data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	switch msg.Type {
	case "input":
		if err := c.term.Write([]byte(msg.Data)); err != nil {
			log.Printf("gateway: write %s: %v", c.term.Name(), err)
		}
	case "resize":
		if msg.Cols > 0 && msg.Rows > 0 {
			if err := c.term.Resize(msg.Cols, msg.Rows); err != nil {
				log.Printf("gateway: resize %s: %v", c.term.Name(), err)
			}
		}
	case "ping":
		c.enqueueJSON(map[string]any{"type": "pong"})
	case "request-history":
		go func(lines int) {
			data := c.term.CaptureHistory(lines)
			c.enqueueJSON(map[string]any{"type": "history", "data": data})
		}(msg.Lines)
	case "start-claude":
		c.writeCommand(claudeCommand(c.launch), 0)
	case "start-claude-ralph":
		c.startRalph(msg.Config)
	}
}

// startRalph launches the looped agent run. Repeat messages inside the
// debounce window are dropped outright, and every message restarts the
// window so a burst collapses to a single launch.
func (c *Conn) startRalph(rc RalphConfig) {
	c.mu.Lock()
	now := c.now()
	suppressed := !c.lastRalph.IsZero() && now.Sub(c.lastRalph) < c.debounceWindow
	c.lastRalph = now
	c.mu.Unlock()
	if suppressed {
		return
	}

	var delay time.Duration
	if rc.TrustMode {
		delay = c.trustDelay
	}
	c.writeCommand(ralphCommand(c.launch, rc), delay)
}

// writeCommand writes cmd plus a carriage return once the terminal is ready,
// optionally after an extra settle delay.
func (c *Conn) writeCommand(cmd string, delay time.Duration) {
	c.term.OnReady(func() {
		deliver := func() {
			select {
			case <-c.done:
				return
			default:
			}
			if err := c.term.Write([]byte(cmd + "\r")); err != nil {
				log.Printf("gateway: launch %s: %v", c.term.Name(), err)
			}
		}
		if delay > 0 {
			time.AfterFunc(delay, deliver)
			return
		}
		deliver()
	})
}
