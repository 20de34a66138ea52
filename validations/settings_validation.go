package validations

import (
	"context"

	settingsApp "github.com/AzielCF/az-gallery/core/settings/application"
	pkgError "github.com/AzielCF/az-gallery/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func ValidateEngineSettings(ctx context.Context, request settingsApp.EngineSettings) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.MediaTTLMs, validation.Min(0)),
		validation.Field(&request.CommentsTTLMs, validation.Min(0)),
		validation.Field(&request.LikesTTLMs, validation.Min(0)),
		validation.Field(&request.ProfilesTTLMs, validation.Min(0)),
		validation.Field(&request.PageSize, validation.Min(1), validation.Max(200)),
		validation.Field(&request.StaggerMs, validation.Min(0), validation.Max(10000)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
