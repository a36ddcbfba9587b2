package trips

import (
	"errors"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// WatchRegistry holds the server-side watches opened over HTTP, keyed by a
// handle independent of the trip id so the same trip can be watched twice
// with different options.
type WatchRegistry struct {
	syncr *Synchronizer

	mu      sync.Mutex
	watches map[string]*Watch
}

func NewWatchRegistry(syncr *Synchronizer) *WatchRegistry {
	return &WatchRegistry{
		syncr:   syncr,
		watches: map[string]*Watch{},
	}
}

func (r *WatchRegistry) add(w *Watch) string {
	handle := uuid.NewString()
	r.mu.Lock()
	r.watches[handle] = w
	r.mu.Unlock()
	return handle
}

func (r *WatchRegistry) get(handle string) (*Watch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watches[handle]
	return w, ok
}

func (r *WatchRegistry) remove(handle string) (*Watch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watches[handle]
	delete(r.watches, handle)
	return w, ok
}

// CloseAll tears down every open watch; used on server shutdown.
func (r *WatchRegistry) CloseAll() {
	r.mu.Lock()
	watches := make([]*Watch, 0, len(r.watches))
	for _, w := range r.watches {
		watches = append(watches, w)
	}
	r.watches = map[string]*Watch{}
	r.mu.Unlock()

	for _, w := range watches {
		w.Close()
	}
}

type openWatchRequest struct {
	TripID  string       `json:"trip_id"`
	Kind    Kind         `json:"kind"`
	Options WatchOptions `json:"options"`
}

type watchResponse struct {
	WatchID          string       `json:"watch_id"`
	ConnectionStatus string       `json:"connection_status"`
	Stopped          bool         `json:"stopped"`
	StoppedReason    string       `json:"stopped_reason,omitempty"`
	Data             TrackingData `json:"data"`
}

func respondWatch(c *fiber.Ctx, handle string, w *Watch, status int) error {
	stopped, reason := w.Stopped()
	return c.Status(status).JSON(watchResponse{
		WatchID:          handle,
		ConnectionStatus: w.ConnectionStatus(),
		Stopped:          stopped,
		StoppedReason:    reason,
		Data:             w.Data(),
	})
}

func RegisterRoutes(r fiber.Router, reg *WatchRegistry) {
	r.Post("/watches", func(c *fiber.Ctx) error {
		var req openWatchRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.TripID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "trip_id required")
		}
		if !req.Kind.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "unknown kind")
		}

		w, err := reg.syncr.Watch(c.Context(), req.TripID, req.Kind, req.Options)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return respondWatch(c, reg.add(w), w, fiber.StatusCreated)
	})

	r.Get("/watches/:id", func(c *fiber.Ctx) error {
		w, ok := reg.get(c.Params("id"))
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "watch not found")
		}
		return respondWatch(c, c.Params("id"), w, fiber.StatusOK)
	})

	r.Post("/watches/:id/refresh", func(c *fiber.Ctx) error {
		w, ok := reg.get(c.Params("id"))
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "watch not found")
		}
		if err := w.Refresh(c.Context()); err != nil {
			switch {
			case errors.Is(err, ErrWatchClosed):
				return fiber.NewError(fiber.StatusConflict, err.Error())
			case errors.Is(err, ErrNotFound):
				// The watch degraded to stopped; report the state, the
				// record being gone is not the caller's error.
				return respondWatch(c, c.Params("id"), w, fiber.StatusOK)
			default:
				return fiber.NewError(fiber.StatusInternalServerError, err.Error())
			}
		}
		return respondWatch(c, c.Params("id"), w, fiber.StatusOK)
	})

	r.Delete("/watches/:id", func(c *fiber.Ctx) error {
		if w, ok := reg.remove(c.Params("id")); ok {
			w.Close()
		}
		// Deleting twice is fine.
		return c.SendStatus(fiber.StatusNoContent)
	})
}
