package validations

import (
	"context"

	domainGallery "github.com/AzielCF/az-gallery/domains/gallery"
	"github.com/AzielCF/az-gallery/syncengine/domain/notification"
	pkgError "github.com/AzielCF/az-gallery/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

func ValidateAddMedia(ctx context.Context, request domainGallery.AddMediaRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.OwnerID, validation.Required),
		validation.Field(&request.URL, validation.Required, is.URL),
		validation.Field(&request.ThumbURL, is.URL),
		validation.Field(&request.Caption, validation.Length(0, 2000)),
		validation.Field(&request.Tags, validation.Each(validation.Required)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateAddComment(ctx context.Context, request domainGallery.AddCommentRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.AuthorID, validation.Required),
		validation.Field(&request.Text, validation.Required, validation.Length(1, 2000)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateToggleLike(ctx context.Context, request domainGallery.ToggleLikeRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.UserID, validation.Required),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateTagUsers(ctx context.Context, request domainGallery.TagUsersRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.SenderID, validation.Required),
		validation.Field(&request.UserIDs, validation.Required, validation.Each(validation.Required)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateCreateNotification(ctx context.Context, request domainGallery.CreateNotificationRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.ScopeID, validation.Required),
		validation.Field(&request.RecipientID, validation.Required),
		validation.Field(&request.Kind, validation.Required, validation.In(
			string(notification.KindTag),
			string(notification.KindComment),
			string(notification.KindLike),
			string(notification.KindUpload),
		)),
		validation.Field(&request.Message, validation.Required),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateMarkRead(ctx context.Context, request domainGallery.MarkReadRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.IDs, validation.Required, validation.Each(validation.Required)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
