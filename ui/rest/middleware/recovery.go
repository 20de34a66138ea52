package middleware

import (
	"errors"
	"fmt"

	pkgError "github.com/AzielCF/az-gallery/pkg/error"
	"github.com/AzielCF/az-gallery/pkg/utils"
	"github.com/AzielCF/az-gallery/syncengine/domain/common"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

func Recovery() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		defer func() {
			err := recover()
			if err != nil {
				var res utils.ResponseData
				res.Status = 500
				res.Code = "INTERNAL_SERVER_ERROR"
				res.Message = fmt.Sprintf("%v", err)

				if genericErr, ok := asGenericError(err); ok {
					res.Status = genericErr.StatusCode()
					res.Code = genericErr.ErrCode()
					res.Message = genericErr.Error()
				}

				if res.Status >= 500 {
					logrus.Errorf("[REST] Panic recovered in middleware: %v", err)
				} else {
					logrus.Debugf("[REST] Request failed: %v", err)
				}

				_ = ctx.Status(res.Status).JSON(res)
			}
		}()

		return ctx.Next()
	}
}

// asGenericError maps engine errors to their REST counterpart.
func asGenericError(v any) (pkgError.GenericError, bool) {
	err, ok := v.(error)
	if !ok {
		return nil, false
	}

	var genericErr pkgError.GenericError
	if errors.As(err, &genericErr) {
		return genericErr, true
	}

	var transient *common.TransientFetchError
	switch {
	case errors.Is(err, common.ErrNotFound):
		return pkgError.NotFoundError(err.Error()), true
	case errors.Is(err, common.ErrSessionClosed), errors.Is(err, common.ErrStopped):
		return pkgError.UnavailableError(err.Error()), true
	case errors.As(err, &transient):
		return pkgError.UnavailableError(err.Error()), true
	}
	return nil, false
}
