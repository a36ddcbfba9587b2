package sampler

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// FixRequest is one device report. Battery and online ride along with the
// fix so a single request keeps the sampler's power and network signals
// current.
type FixRequest struct {
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lng"`
	Accuracy  float64   `json:"accuracy"`
	Speed     float64   `json:"speed"`
	Heading   float64   `json:"heading"`
	Timestamp time.Time `json:"timestamp"`
	Battery   *float64  `json:"battery,omitempty"`
	Online    *bool     `json:"online,omitempty"`
}

// Ingest receives device fixes over HTTP and feeds them into the sampler
// pipeline.
type Ingest struct {
	sampler *Sampler
	source  *PushSource
}

func NewIngest(s *Sampler, src *PushSource) *Ingest {
	return &Ingest{sampler: s, source: src}
}

func RegisterRoutes(r fiber.Router, ing *Ingest) {
	r.Post("/fixes", func(c *fiber.Ctx) error {
		var req FixRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.Latitude < -90 || req.Latitude > 90 || req.Longitude < -180 || req.Longitude > 180 {
			return fiber.NewError(fiber.StatusBadRequest, "coordinates out of range")
		}
		if req.Timestamp.IsZero() {
			req.Timestamp = time.Now()
		}

		if req.Battery != nil {
			ing.sampler.SetBatteryLevel(*req.Battery)
		}
		if req.Online != nil {
			ing.sampler.SetNetworkOnline(*req.Online)
		}
		ing.source.Offer(Position{
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
			Accuracy:  req.Accuracy,
			Speed:     req.Speed,
			Heading:   req.Heading,
			Timestamp: req.Timestamp,
		})
		return c.SendStatus(fiber.StatusAccepted)
	})

	r.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(ing.sampler.Status())
	})

	r.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(ing.sampler.Stats())
	})
}
