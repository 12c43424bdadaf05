// Package terminal owns one pseudo-terminal bound to a named tmux session
// with create-or-attach semantics. It multiplexes PTY output to any number of
// observers and survives client churn: detaching closes the PTY without
// touching the underlying session.
package terminal

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/asheshgoplani/agent-relay/internal/tmux"
)

const (
	// defaultSettleDelay gives a freshly spawned shell time to initialize
	// before ready callbacks fire.
	defaultSettleDelay = 150 * time.Millisecond

	// defaultCaptureTimeout bounds the wait on tmux capture-pane.
	defaultCaptureTimeout = 5 * time.Second

	readBufferSize = 32 * 1024
)

// Options configures Create.
type Options struct {
	SessionName string
	WorkDir     string
	EnvVars     map[string]string
	Cols        int
	Rows        int

	// SettleDelay overrides the ready delay for fresh sessions. Zero means
	// the default.
	SettleDelay time.Duration
	// CaptureTimeout overrides the history capture bound. Zero means the
	// default.
	CaptureTimeout time.Duration
}

// Terminal is one PTY attached to one tmux session.
type Terminal struct {
	name     string
	executor tmux.Executor

	mu         sync.Mutex
	pty        *PTY
	existing   bool
	ready      bool
	readyCbs   []func()
	dataSubs   map[int]func([]byte)
	exitSubs   map[int]func(err error)
	nextSub    int
	closed     bool
	scriptPath string

	captureTimeout time.Duration
}

// Create attaches to the named tmux session if it exists, otherwise creates
// it from a generated init script. For an existing session the terminal is
// ready immediately; for a fresh one, ready callbacks fire after a short
// settle delay so the shell can initialize.
func Create(executor tmux.Executor, opts Options) (*Terminal, error) {
	if opts.Cols <= 0 {
		opts.Cols = 80
	}
	if opts.Rows <= 0 {
		opts.Rows = 24
	}
	if opts.SettleDelay == 0 {
		opts.SettleDelay = defaultSettleDelay
	}
	if opts.CaptureTimeout == 0 {
		opts.CaptureTimeout = defaultCaptureTimeout
	}

	t := &Terminal{
		name:           opts.SessionName,
		executor:       executor,
		dataSubs:       map[int]func([]byte){},
		exitSubs:       map[int]func(error){},
		captureTimeout: opts.CaptureTimeout,
	}

	exists, err := executor.SessionExists(opts.SessionName)
	if err != nil {
		return nil, fmt.Errorf("failed to check tmux session: %w", err)
	}

	if exists {
		p, err := SpawnPTY(opts.Cols, opts.Rows, "tmux", "attach-session", "-t", opts.SessionName)
		if err != nil {
			return nil, fmt.Errorf("failed to attach to tmux: %w", err)
		}
		t.pty = p
		t.existing = true
		t.markReady()
	} else {
		scriptPath, err := writeInitScript(opts.SessionName, opts.EnvVars)
		if err != nil {
			return nil, err
		}
		t.scriptPath = scriptPath

		p, err := SpawnPTY(opts.Cols, opts.Rows, "tmux", "new-session",
			"-A", "-s", opts.SessionName, "-c", opts.WorkDir, scriptPath)
		if err != nil {
			os.Remove(scriptPath)
			return nil, fmt.Errorf("failed to create tmux session: %w", err)
		}
		t.pty = p

		time.AfterFunc(opts.SettleDelay, t.markReady)
	}

	go t.readLoop()
	return t, nil
}

func writeInitScript(sessionName string, envVars map[string]string) (string, error) {
	f, err := os.CreateTemp("", "agent-relay-init-*.sh")
	if err != nil {
		return "", fmt.Errorf("failed to create init script: %w", err)
	}
	if _, err := f.WriteString(InitScript(sessionName, envVars)); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write init script: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	if err := os.Chmod(f.Name(), 0700); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// Name returns the tmux session name this terminal is bound to.
func (t *Terminal) Name() string {
	return t.name
}

// IsExistingSession reports whether Create attached to a session that was
// already live instead of spawning a new one.
func (t *Terminal) IsExistingSession() bool {
	return t.existing
}

// Write forwards raw input to the PTY.
func (t *Terminal) Write(data []byte) error {
	t.mu.Lock()
	p := t.pty
	closed := t.closed
	t.mu.Unlock()

	if p == nil || closed {
		return nil
	}
	_, err := p.Write(data)
	return err
}

// Resize forwards a resize to the PTY and the tmux window behind it.
func (t *Terminal) Resize(cols, rows int) error {
	t.mu.Lock()
	p := t.pty
	t.mu.Unlock()

	if p == nil {
		return nil
	}
	if err := p.Resize(uint16(cols), uint16(rows)); err != nil {
		return err
	}
	if err := t.executor.ResizeWindow(t.name, cols, rows); err != nil {
		log.Printf("terminal %s: tmux resize-window failed: %v", t.name, err)
	}
	return nil
}

// Detach releases the PTY by sending the tmux detach sequence (Ctrl-B, d).
// The underlying session keeps running and can be reattached later.
func (t *Terminal) Detach() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	p := t.pty
	t.mu.Unlock()

	if p != nil {
		// \x02 is Ctrl-B, the default tmux prefix.
		if _, err := p.Write([]byte("\x02d")); err == nil {
			// Give the tmux client a moment to exit on its own.
			time.Sleep(50 * time.Millisecond)
		}
		p.CloseFile()
	}
	t.cleanupScript()
}

// Kill terminates the PTY process. The tmux session itself is the registry's
// concern; killing the attachment alone leaves it running.
func (t *Terminal) Kill() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	p := t.pty
	t.mu.Unlock()

	if p != nil {
		p.Close()
	}
	t.cleanupScript()
}

func (t *Terminal) cleanupScript() {
	if t.scriptPath != "" {
		os.Remove(t.scriptPath)
	}
}

// CaptureHistory dumps up to lines of scrollback from the tmux session
// (0 means the backend default). Capture is best-effort: any failure or
// timeout yields an empty string, never an error.
func (t *Terminal) CaptureHistory(lines int) string {
	ctx, cancel := context.WithTimeout(context.Background(), t.captureTimeout)
	defer cancel()

	out, err := t.executor.CapturePaneHistory(ctx, t.name, lines)
	if err != nil {
		log.Printf("terminal %s: history capture failed: %v", t.name, err)
		return ""
	}
	return out
}

// OnData registers an observer for PTY output. The returned disposer
// unregisters it.
func (t *Terminal) OnData(cb func([]byte)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextSub
	t.nextSub++
	t.dataSubs[id] = cb
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.dataSubs, id)
	}
}

// OnExit registers an observer for PTY process termination. The returned
// disposer unregisters it.
func (t *Terminal) OnExit(cb func(err error)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextSub
	t.nextSub++
	t.exitSubs[id] = cb
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.exitSubs, id)
	}
}

// OnReady invokes cb once the terminal is initialized. If it already is, cb
// runs synchronously before OnReady returns; otherwise it is queued and every
// queued callback fires when initialization completes.
func (t *Terminal) OnReady(cb func()) {
	t.mu.Lock()
	if t.ready {
		t.mu.Unlock()
		cb()
		return
	}
	t.readyCbs = append(t.readyCbs, cb)
	t.mu.Unlock()
}

func (t *Terminal) markReady() {
	t.mu.Lock()
	if t.ready {
		t.mu.Unlock()
		return
	}
	t.ready = true
	cbs := t.readyCbs
	t.readyCbs = nil
	t.mu.Unlock()

	for _, cb := range cbs {
		cb()
	}
}

func (t *Terminal) readLoop() {
	buf := make([]byte, readBufferSize)
	for {
		t.mu.Lock()
		p := t.pty
		closed := t.closed
		t.mu.Unlock()

		if p == nil || closed {
			return
		}

		n, err := p.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			t.mu.Lock()
			subs := make([]func([]byte), 0, len(t.dataSubs))
			for _, cb := range t.dataSubs {
				subs = append(subs, cb)
			}
			t.mu.Unlock()
			for _, cb := range subs {
				cb(data)
			}
		}
		if err != nil {
			t.mu.Lock()
			wasClosed := t.closed
			t.closed = true
			subs := make([]func(error), 0, len(t.exitSubs))
			for _, cb := range t.exitSubs {
				subs = append(subs, cb)
			}
			t.mu.Unlock()

			// A read error after Detach/Kill is just the PTY going away.
			if !wasClosed {
				for _, cb := range subs {
					cb(err)
				}
			}
			t.cleanupScript()
			return
		}
	}
}
