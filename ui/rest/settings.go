package rest

import (
	"time"

	"github.com/AzielCF/az-gallery/core/config"
	settingsApp "github.com/AzielCF/az-gallery/core/settings/application"
	"github.com/AzielCF/az-gallery/pkg/utils"
	"github.com/AzielCF/az-gallery/syncengine"
	"github.com/AzielCF/az-gallery/validations"
	"github.com/gofiber/fiber/v2"
)

type Settings struct {
	Service *settingsApp.SettingsService
	Config  *config.Config
	Engine  *syncengine.Manager
}

// InitRestSettings exposes the persisted engine tunables. Updates apply to
// sessions opened afterwards.
func InitRestSettings(app fiber.Router, service *settingsApp.SettingsService, cfg *config.Config, engine *syncengine.Manager) Settings {
	rest := Settings{Service: service, Config: cfg, Engine: engine}
	app.Get("/settings", rest.GetSettings)
	app.Put("/settings", rest.UpdateSettings)
	app.Get("/settings/all", rest.GetAllSettings)

	return rest
}

func (handler *Settings) GetSettings(c *fiber.Ctx) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Engine settings retrieved",
		Results: settingsApp.Effective(handler.Config),
	})
}

func (handler *Settings) UpdateSettings(c *fiber.Ctx) error {
	var request settingsApp.EngineSettings
	if err := c.BodyParser(&request); err != nil {
		return c.Status(400).JSON(utils.ResponseData{
			Status:  400,
			Code:    "BAD_REQUEST",
			Message: err.Error(),
		})
	}
	utils.PanicIfNeeded(validations.ValidateEngineSettings(c.UserContext(), request))

	err := handler.Service.Save(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	settingsApp.Apply(handler.Config, &request)
	session := handler.Engine.SessionConfig()
	session.TTLs = handler.Config.Cache.TTLs()
	session.PageSize = handler.Config.Sync.PageSize
	session.Stagger = time.Duration(handler.Config.Sync.StaggerMs) * time.Millisecond
	handler.Engine.SetSessionConfig(session)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Engine settings updated successfully",
		Results: settingsApp.Effective(handler.Config),
	})
}

func (handler *Settings) GetAllSettings(c *fiber.Ctx) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Loaded configuration retrieved",
		Results: config.GetAllSettings(),
	})
}
