package schedule

import (
	"context"
	"log/slog"
	"sync"

	"github.com/samber/mo"
)

// GateState is the onboarding state of a session.
type GateState int

const (
	// GateLoading means the directory has not been fetched yet.
	GateLoading GateState = iota
	// GateNeedsColor means the directory was fetched and the user has no color.
	GateNeedsColor
	// GateReady means the user has a color and may use the calendar.
	GateReady
)

func (s GateState) String() string {
	switch s {
	case GateNeedsColor:
		return "needs_color"
	case GateReady:
		return "ready"
	default:
		return "loading"
	}
}

func (s GateState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Gate blocks calendar use until the session's user has an assigned color.
// A Gate belongs to one session; every new session starts from GateLoading.
type Gate struct {
	mu      sync.Mutex
	session SessionContext
	colors  *ColorAssignments
	logger  *slog.Logger

	state GateState
	dir   Directory
	err   error
}

// NewGate returns a gate in GateLoading; call Evaluate to resolve it.
func NewGate(session SessionContext, colors *ColorAssignments, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		session: session,
		colors:  colors,
		logger:  logger.With("user_key", session.UserKey),
		state:   GateLoading,
	}
}

// State returns the current state.
func (g *Gate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Directory returns the last directory the gate resolved against.
func (g *Gate) Directory() Directory {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dir.Clone()
}

// Err returns the error of the last failed directory fetch, if any.
func (g *Gate) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

// Resolve applies the outcome of a directory fetch. A failed fetch leaves the
// state unchanged. Once ready, the gate stays ready.
func (g *Gate) Resolve(res mo.Result[Directory]) GateState {
	g.mu.Lock()
	defer g.mu.Unlock()

	dir, err := res.Get()
	if err != nil {
		g.err = err
		g.logger.Warn("directory fetch failed, gate unchanged",
			"state", g.state,
			"error", err)
		return g.state
	}
	g.err = nil
	g.dir = dir.Clone()

	if g.state == GateReady {
		return g.state
	}
	if HasAssignedColor(dir, g.session.UserKey) {
		g.state = GateReady
	} else {
		g.state = GateNeedsColor
	}
	g.logger.Debug("gate resolved", "state", g.state)
	return g.state
}

// Evaluate fetches the directory and resolves the gate against it.
func (g *Gate) Evaluate(ctx context.Context) GateState {
	return g.Resolve(mo.TupleToResult(g.colors.Load(ctx)))
}

// Complete records the color picked by the user. The gate moves to ready only
// after the directory write is confirmed; on failure it stays open and the
// error is returned. Concurrent calls are serialized.
func (g *Gate) Complete(ctx context.Context, color string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case GateLoading:
		return ErrDirectoryNotLoaded
	case GateReady:
		return nil
	}

	if err := g.colors.Assign(ctx, g.session, color); err != nil {
		g.logger.Warn("color selection not saved, gate stays open", "error", err)
		return err
	}
	if g.dir == nil {
		g.dir = Directory{}
	}
	g.dir[g.session.UserKey] = color
	g.state = GateReady
	g.logger.Info("onboarding complete", "color", color)
	return nil
}
