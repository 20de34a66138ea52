package rest

import (
	"errors"

	domainGallery "github.com/AzielCF/az-gallery/domains/gallery"
	pkgError "github.com/AzielCF/az-gallery/pkg/error"
	"github.com/AzielCF/az-gallery/pkg/utils"
	"github.com/AzielCF/az-gallery/syncengine"
	"github.com/AzielCF/az-gallery/syncengine/application"
	"github.com/AzielCF/az-gallery/syncengine/domain/common"
	"github.com/AzielCF/az-gallery/syncengine/domain/gallery"
	"github.com/AzielCF/az-gallery/validations"
	"github.com/gofiber/fiber/v2"
)

type Gallery struct {
	Engine *syncengine.Manager
}

func InitRestGallery(app fiber.Router, engine *syncengine.Manager) Gallery {
	rest := Gallery{Engine: engine}
	app.Post("/galleries/:id/open", rest.Open)
	app.Get("/galleries/:id", rest.Snapshot)
	app.Post("/galleries/:id/load-more", rest.LoadMore)
	app.Post("/galleries/:id/refresh", rest.Refresh)
	app.Delete("/galleries/:id/session", rest.Close)
	app.Post("/galleries/:id/media", rest.AddMedia)
	app.Post("/galleries/:id/media/:mediaId/comments", rest.AddComment)
	app.Post("/galleries/:id/media/:mediaId/likes", rest.ToggleLike)
	app.Post("/galleries/:id/media/:mediaId/tags", rest.TagUsers)

	return rest
}

// session returns the open session of the :id gallery or aborts with 404.
func (handler *Gallery) session(c *fiber.Ctx) *application.GallerySession {
	s, ok := handler.Engine.Session(c.Params("id"))
	if !ok {
		utils.PanicIfNeeded(pkgError.NotFoundError("gallery session is not open"))
	}
	return s
}

func (handler *Gallery) Open(c *fiber.Ctx) error {
	s, err := handler.Engine.Acquire(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Gallery session opened",
		Results: s.Snapshot(),
	})
}

func (handler *Gallery) Snapshot(c *fiber.Ctx) error {
	s := handler.session(c)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Gallery snapshot retrieved",
		Results: s.Snapshot(),
	})
}

func (handler *Gallery) LoadMore(c *fiber.Ctx) error {
	s := handler.session(c)
	err := s.LoadMore(c.UserContext())

	view := s.Snapshot()
	if err != nil {
		var transient *common.TransientFetchError
		if errors.As(err, &transient) {
			// The accumulated items stay valid; only the next page failed.
			return c.Status(fiber.StatusServiceUnavailable).JSON(utils.ResponseData{
				Status:  503,
				Code:    "SERVICE_UNAVAILABLE",
				Message: err.Error(),
				Results: view,
			})
		}
		utils.PanicIfNeeded(err)
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Gallery page loaded",
		Results: view,
	})
}

func (handler *Gallery) Refresh(c *fiber.Ctx) error {
	s := handler.session(c)
	err := s.Refresh(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Gallery refreshed",
		Results: s.Snapshot(),
	})
}

func (handler *Gallery) Close(c *fiber.Ctx) error {
	handler.session(c)
	handler.Engine.Release(c.Params("id"))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Gallery session released",
	})
}

func (handler *Gallery) AddMedia(c *fiber.Ctx) error {
	var request domainGallery.AddMediaRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)
	utils.PanicIfNeeded(validations.ValidateAddMedia(c.UserContext(), request))

	s := handler.session(c)
	id, err := s.AddMedia(c.UserContext(), gallery.MediaItem{
		OwnerID:     request.OwnerID,
		URL:         request.URL,
		ThumbURL:    request.ThumbURL,
		ContentType: request.ContentType,
		Caption:     request.Caption,
		Tags:        request.Tags,
	})
	utils.PanicIfNeeded(err)

	return c.Status(fiber.StatusCreated).JSON(utils.ResponseData{
		Status:  201,
		Code:    "SUCCESS",
		Message: "Media added",
		Results: map[string]any{"id": id},
	})
}

func (handler *Gallery) AddComment(c *fiber.Ctx) error {
	var request domainGallery.AddCommentRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)
	utils.PanicIfNeeded(validations.ValidateAddComment(c.UserContext(), request))

	s := handler.session(c)
	id, err := s.AddComment(c.UserContext(), c.Params("mediaId"), request.AuthorID, request.Text)
	utils.PanicIfNeeded(err)

	return c.Status(fiber.StatusCreated).JSON(utils.ResponseData{
		Status:  201,
		Code:    "SUCCESS",
		Message: "Comment added",
		Results: map[string]any{"id": id},
	})
}

func (handler *Gallery) ToggleLike(c *fiber.Ctx) error {
	var request domainGallery.ToggleLikeRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)
	utils.PanicIfNeeded(validations.ValidateToggleLike(c.UserContext(), request))

	s := handler.session(c)
	liked, err := s.ToggleLike(c.UserContext(), c.Params("mediaId"), request.UserID)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Like toggled",
		Results: map[string]any{"liked": liked},
	})
}

func (handler *Gallery) TagUsers(c *fiber.Ctx) error {
	var request domainGallery.TagUsersRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)
	utils.PanicIfNeeded(validations.ValidateTagUsers(c.UserContext(), request))

	s := handler.session(c)
	err = s.TagUsers(c.UserContext(), c.Params("mediaId"), request.SenderID, request.UserIDs)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Users tagged",
	})
}
