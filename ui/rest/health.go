package rest

import (
	"context"
	"time"

	"github.com/AzielCF/az-gallery/infrastructure/valkey"
	"github.com/AzielCF/az-gallery/pkg/utils"
	"github.com/AzielCF/az-gallery/syncengine"
	"github.com/AzielCF/az-gallery/syncengine/domain/docstore"
	"github.com/gofiber/fiber/v2"
)

const healthTimeout = 2 * time.Second

type HealthRecord struct {
	Component string `json:"component"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

type Health struct {
	Engine *syncengine.Manager
	Valkey *valkey.Client
}

// InitRestHealth registers the health probes. vk may be nil.
func InitRestHealth(app fiber.Router, engine *syncengine.Manager, vk *valkey.Client) Health {
	handler := Health{Engine: engine, Valkey: vk}

	group := app.Group("/health")
	group.Get("/status", handler.GetStatus)

	return handler
}

func (h *Health) GetStatus(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
	defer cancel()

	records := []HealthRecord{
		probe("docstore", func() error {
			_, err := h.Engine.Store().PagedQuery(ctx, docstore.Query{Collection: "_health", Limit: 1})
			return err
		}),
		probe("cache", func() error {
			_, err := h.Engine.Cache().Stats(ctx)
			return err
		}),
	}
	if h.Valkey != nil {
		records = append(records, probe("valkey", func() error {
			return h.Valkey.Ping(ctx)
		}))
	}

	for _, r := range records {
		if r.Status != "ok" {
			return c.Status(503).JSON(utils.ResponseData{
				Status:  503,
				Code:    "SERVICE_UNAVAILABLE",
				Message: r.Component + " is unhealthy",
				Results: records,
			})
		}
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Health status retrieved",
		Results: records,
	})
}

func probe(component string, check func() error) HealthRecord {
	start := time.Now()
	err := check()
	r := HealthRecord{Component: component, Status: "ok", LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		r.Status = "error"
		r.Error = err.Error()
	}
	return r
}
