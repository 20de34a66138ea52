package rest

import (
	domainGallery "github.com/AzielCF/az-gallery/domains/gallery"
	"github.com/AzielCF/az-gallery/pkg/utils"
	"github.com/AzielCF/az-gallery/syncengine"
	"github.com/AzielCF/az-gallery/syncengine/domain/notification"
	"github.com/AzielCF/az-gallery/validations"
	"github.com/gofiber/fiber/v2"
)

type Notification struct {
	Engine *syncengine.Manager
}

func InitRestNotification(app fiber.Router, engine *syncengine.Manager) Notification {
	rest := Notification{Engine: engine}
	app.Post("/notifications", rest.Create)
	app.Post("/notifications/flush", rest.Flush)
	app.Get("/notifications/stats", rest.GetStats)
	app.Post("/galleries/:id/notifications/read", rest.MarkRead)
	app.Post("/galleries/:id/notifications/:recipient/read-all", rest.MarkAllRead)
	app.Get("/galleries/:id/notifications/:recipient/unread-count", rest.UnreadCount)

	return rest
}

func (handler *Notification) Create(c *fiber.Ctx) error {
	var request domainGallery.CreateNotificationRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)
	utils.PanicIfNeeded(validations.ValidateCreateNotification(c.UserContext(), request))

	handler.Engine.Notifications().Create(notification.Notification{
		ScopeID:     request.ScopeID,
		RecipientID: request.RecipientID,
		Kind:        notification.Kind(request.Kind),
		Message:     request.Message,
		SenderID:    request.SenderID,
		MediaID:     request.MediaID,
	})

	return c.Status(fiber.StatusAccepted).JSON(utils.ResponseData{
		Status:  202,
		Code:    "SUCCESS",
		Message: "Notification queued",
	})
}

func (handler *Notification) Flush(c *fiber.Ctx) error {
	err := handler.Engine.Notifications().Flush(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Pending notifications flushed",
	})
}

func (handler *Notification) GetStats(c *fiber.Ctx) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Notification pipeline stats retrieved",
		Results: handler.Engine.Notifications().Stats(),
	})
}

func (handler *Notification) MarkRead(c *fiber.Ctx) error {
	var request domainGallery.MarkReadRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)
	utils.PanicIfNeeded(validations.ValidateMarkRead(c.UserContext(), request))

	err = handler.Engine.Notifications().MarkRead(c.UserContext(), c.Params("id"), request.IDs)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Notifications marked as read",
	})
}

func (handler *Notification) MarkAllRead(c *fiber.Ctx) error {
	err := handler.Engine.Notifications().MarkAllRead(c.UserContext(), c.Params("id"), c.Params("recipient"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "All notifications marked as read",
	})
}

func (handler *Notification) UnreadCount(c *fiber.Ctx) error {
	count := handler.Engine.Notifications().UnreadCount(c.UserContext(), c.Params("id"), c.Params("recipient"))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Unread count retrieved",
		Results: map[string]any{"unread": count},
	})
}
