package rest

import (
	domainGallery "github.com/AzielCF/az-gallery/domains/gallery"
	"github.com/AzielCF/az-gallery/pkg/utils"
	"github.com/AzielCF/az-gallery/syncengine/domain/cache"
	"github.com/gofiber/fiber/v2"
)

type Cache struct {
	Store cache.Store
}

func InitRestCache(app fiber.Router, store cache.Store) Cache {
	rest := Cache{Store: store}
	app.Get("/cache/stats", rest.GetStats)
	app.Post("/cache/clear", rest.Clear)

	return rest
}

func (handler *Cache) GetStats(c *fiber.Ctx) error {
	stats, err := handler.Store.Stats(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Cache stats retrieved",
		Results: stats,
	})
}

// Clear drops the given keys, or the whole cache when the body has none.
func (handler *Cache) Clear(c *fiber.Ctx) error {
	var request domainGallery.ClearCacheRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&request); err != nil {
			return c.Status(400).JSON(utils.ResponseData{
				Status:  400,
				Code:    "BAD_REQUEST",
				Message: err.Error(),
			})
		}
	}

	err := handler.Store.Clear(c.UserContext(), request.Keys...)
	utils.PanicIfNeeded(err)

	message := "Cache cleared successfully"
	if len(request.Keys) > 0 {
		message = "Cache keys cleared successfully"
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: message,
	})
}
