package rest

import (
	"github.com/AzielCF/az-gallery/core/config"
	"github.com/AzielCF/az-gallery/pkg/utils"
	"github.com/AzielCF/az-gallery/syncengine"
	"github.com/gofiber/fiber/v2"
)

type Engine struct {
	Engine *syncengine.Manager
}

func InitRestEngine(app fiber.Router, engine *syncengine.Manager) Engine {
	handler := Engine{Engine: engine}

	app.Get("/engine/stats", handler.GetStats)
	app.Get("/engine/subscriptions", handler.GetSubscriptions)
	app.Get("/delivery-pool/stats", handler.GetDeliveryPoolStats)
	app.Get("/app/version", handler.GetVersion)

	return handler
}

func (h *Engine) GetStats(c *fiber.Ctx) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Engine stats retrieved",
		Results: h.Engine.Stats(c.UserContext()),
	})
}

func (h *Engine) GetSubscriptions(c *fiber.Ctx) error {
	registry := h.Engine.Registry()
	keys := registry.Keys()
	states := make(map[string]string, len(keys))
	for _, k := range keys {
		states[k] = string(registry.State(k))
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Active subscriptions retrieved",
		Results: states,
	})
}

func (h *Engine) GetDeliveryPoolStats(c *fiber.Ctx) error {
	stats := h.Engine.Stats(c.UserContext())
	if stats.Delivery == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Delivery pool not initialized",
		})
	}

	return c.JSON(stats.Delivery)
}

func (h *Engine) GetVersion(c *fiber.Ctx) error {
	version := "unknown"
	if config.Global != nil {
		version = config.Global.App.Version
	}
	return c.JSON(fiber.Map{
		"version": version,
	})
}
