package ui

import (
	"log/slog"
	"sync"

	"github.com/ilievs/plugpanel/core"
)

// State is everything a panel page shows.
type State struct {
	Card      *core.Card `json:"card,omitempty"`
	RelayOn   bool       `json:"relay_on"`
	Status    string     `json:"status"`
	TimerText string     `json:"timer_text"`
}

const (
	FrameState = "state"
	FrameError = "error"
)

// Frame is what the server pushes to the page over the websocket.
type Frame struct {
	Type  string `json:"type"`
	State *State `json:"state,omitempty"`
	Error string `json:"error,omitempty"`
}

type FrameWriter interface {
	WriteJSON(v any) error
}

// Session is the core.Panel of one connected page. Every change pushes the
// whole state, so a page never has to patch fields itself.
type Session struct {
	mu     sync.Mutex
	state  State
	out    FrameWriter
	logger *slog.Logger
}

func NewSession(out FrameWriter, logger *slog.Logger) *Session {
	return &Session{
		state:  State{Status: core.StatusText(false)},
		out:    out,
		logger: logger,
	}
}

func (s *Session) RenderCard(card core.Card) {
	s.update(func(st *State) {
		st.Card = &card
	})
}

func (s *Session) SetRelay(on bool, status string) {
	s.update(func(st *State) {
		st.RelayOn = on
		st.Status = status
	})
}

func (s *Session) SetTimerText(text string) {
	s.update(func(st *State) {
		st.TimerText = text
	})
}

func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Sync pushes the current state without changing it.
func (s *Session) Sync() {
	s.update(func(*State) {})
}

func (s *Session) Fail(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.write(Frame{Type: FrameError, Error: msg})
}

func (s *Session) update(apply func(st *State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	apply(&s.state)
	snapshot := s.state
	s.write(Frame{Type: FrameState, State: &snapshot})
}

func (s *Session) write(f Frame) {
	if err := s.out.WriteJSON(f); err != nil {
		s.logger.Warn("failed to push panel frame", "type", f.Type, "error", err)
	}
}
