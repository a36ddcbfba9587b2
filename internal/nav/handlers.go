package nav

import (
	"errors"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"backend-kwenda/internal/speech"
)

// Sessions owns the navigators opened over HTTP. Each session gets its own
// navigator; they share the planner, position stream and synthesizer.
type Sessions struct {
	planner   RoutePlanner
	positions PositionStream
	synth     speech.Synthesizer
	tune      Tuning

	mu       sync.Mutex
	sessions map[string]*Navigator
}

func NewSessions(planner RoutePlanner, positions PositionStream, synth speech.Synthesizer, tune Tuning) *Sessions {
	return &Sessions{
		planner:   planner,
		positions: positions,
		synth:     synth,
		tune:      tune,
		sessions:  map[string]*Navigator{},
	}
}

func (s *Sessions) get(id string) (*Navigator, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.sessions[id]
	return n, ok
}

// StopAll ends every session; used on server shutdown.
func (s *Sessions) StopAll() {
	s.mu.Lock()
	navs := make([]*Navigator, 0, len(s.sessions))
	for _, n := range s.sessions {
		navs = append(navs, n)
	}
	s.sessions = map[string]*Navigator{}
	s.mu.Unlock()

	for _, n := range navs {
		n.Stop()
	}
}

type startSessionRequest struct {
	Origin      Point `json:"origin"`
	Destination Point `json:"destination"`
}

type sessionResponse struct {
	SessionID string          `json:"session_id"`
	State     NavigationState `json:"state"`
}

func RegisterRoutes(r fiber.Router, s *Sessions) {
	r.Post("/sessions", func(c *fiber.Ctx) error {
		var req startSessionRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.Origin == (Point{}) && req.Destination == (Point{}) {
			return fiber.NewError(fiber.StatusBadRequest, "origin and destination required")
		}

		n := NewNavigator(s.planner, s.positions, s.synth, s.tune)
		if err := n.Start(c.Context(), req.Origin, req.Destination); err != nil {
			if errors.Is(err, ErrRouteUnavailable) {
				return fiber.NewError(fiber.StatusBadGateway, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		id := uuid.NewString()
		s.mu.Lock()
		s.sessions[id] = n
		s.mu.Unlock()

		return c.Status(fiber.StatusCreated).JSON(sessionResponse{SessionID: id, State: n.State()})
	})

	r.Get("/sessions/:id", func(c *fiber.Ctx) error {
		n, ok := s.get(c.Params("id"))
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "session not found")
		}
		return c.JSON(sessionResponse{SessionID: c.Params("id"), State: n.State()})
	})

	r.Post("/sessions/:id/voice", func(c *fiber.Ctx) error {
		n, ok := s.get(c.Params("id"))
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "session not found")
		}
		if st := n.State(); st.State == StateStopped {
			return fiber.NewError(fiber.StatusConflict, ErrNotNavigating.Error())
		}
		return c.JSON(fiber.Map{"muted": n.ToggleVoice()})
	})

	r.Delete("/sessions/:id", func(c *fiber.Ctx) error {
		s.mu.Lock()
		n, ok := s.sessions[c.Params("id")]
		delete(s.sessions, c.Params("id"))
		s.mu.Unlock()
		if ok {
			n.Stop()
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}
