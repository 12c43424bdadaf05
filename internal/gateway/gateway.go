package gateway

import (
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/asheshgoplani/agent-relay/internal/launchcfg"
	"github.com/asheshgoplani/agent-relay/internal/registry"
	"github.com/asheshgoplani/agent-relay/internal/session"
	"github.com/asheshgoplani/agent-relay/internal/store"
	"github.com/asheshgoplani/agent-relay/internal/terminal"
	"github.com/asheshgoplani/agent-relay/internal/tmux"
)

// Options configures the WebSocket gateway.
type Options struct {
	// BasePath is the resolved projects directory; a session's working
	// directory is BasePath/<project>.
	BasePath string
	// Whitelist restricts which projects may open terminals. Empty allows
	// all.
	Whitelist []string
	// LaunchDebounce is the per-connection window collapsing repeated
	// looped-launch messages into one.
	LaunchDebounce time.Duration
	// TrustModeDelay postpones the launch command in trust mode so the
	// agent prompt settles first.
	TrustModeDelay time.Duration
}

// Gateway upgrades terminal connections and relays them to tmux sessions.
type Gateway struct {
	hub      *Hub
	registry *registry.Registry
	store    *store.Store
	executor tmux.Executor
	launch   *launchcfg.Config
	opts     Options

	// newTerminal spawns or attaches the backing terminal. Tests swap in a
	// fake backend.
	newTerminal func(tmux.Executor, terminal.Options) (Terminal, error)

	upgrader websocket.Upgrader
}

func New(hub *Hub, reg *registry.Registry, st *store.Store, executor tmux.Executor, launch *launchcfg.Config, opts Options) *Gateway {
	if opts.LaunchDebounce <= 0 {
		opts.LaunchDebounce = 300 * time.Millisecond
	}
	if opts.TrustModeDelay <= 0 {
		opts.TrustModeDelay = 2500 * time.Millisecond
	}
	return &Gateway{
		hub:      hub,
		registry: reg,
		store:    st,
		executor: executor,
		launch:   launch,
		opts:     opts,
		newTerminal: func(ex tmux.Executor, topts terminal.Options) (Terminal, error) {
			return terminal.Create(ex, topts)
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Hub exposes the broadcast hub so the status layer can push updates.
func (g *Gateway) Hub() *Hub {
	return g.hub
}

func (g *Gateway) projectAllowed(project string) bool {
	if len(g.opts.Whitelist) == 0 {
		return true
	}
	for _, p := range g.opts.Whitelist {
		if p == project {
			return true
		}
	}
	return false
}

// HandleTerminal is the GET /terminal endpoint. Admission is checked before
// any terminal is spawned: a missing or non-whitelisted project gets close
// code 1008 and nothing else.
func (g *Gateway) HandleTerminal(c *gin.Context) {
	ws, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("gateway: upgrade: %v", err)
		return
	}

	project := c.Query("project")
	if project == "" || !g.projectAllowed(project) {
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "project not allowed")
		ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		ws.Close()
		return
	}

	name := c.Query("session")
	if name == "" {
		name = g.uniqueName(project)
	}

	if _, err := g.registry.Ensure(name, project); err != nil {
		log.Printf("gateway: ensure %s: %v", name, err)
		ws.Close()
		return
	}

	term, err := g.newTerminal(g.executor, terminal.Options{
		SessionName: name,
		WorkDir:     filepath.Join(g.opts.BasePath, project),
		EnvVars:     g.defaultEnvVars(),
	})
	if err != nil {
		log.Printf("gateway: terminal %s: %v", name, err)
		ws.Close()
		return
	}

	conn := newConn(ws, term, g.hub, g.launch, g.opts.LaunchDebounce, g.opts.TrustModeDelay)
	conn.run()
}

// uniqueName generates a session name not already taken by a live tmux
// session or a stored record.
func (g *Gateway) uniqueName(project string) string {
	live := g.registry.ListLive()
	for i := 0; i < 50; i++ {
		name := session.GenerateName(project)
		if _, taken := live[name]; taken {
			continue
		}
		if _, err := g.registry.Get(name); err == nil {
			continue
		}
		return name
	}
	return session.GenerateName(project)
}

// defaultEnvVars returns the variables of the default environment, if one is
// configured. Lookup failures fall back to no extra variables.
func (g *Gateway) defaultEnvVars() map[string]string {
	env, err := g.store.DefaultEnvironment()
	if err != nil {
		log.Printf("gateway: default environment: %v", err)
		return nil
	}
	if env == nil {
		return nil
	}
	return env.Variables
}
