package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	pkgError "github.com/AzielCF/az-gallery/pkg/error"
	"github.com/AzielCF/az-gallery/pkg/utils"
	"github.com/AzielCF/az-gallery/syncengine/domain/common"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoveryMapsErrors(t *testing.T) {
	cases := []struct {
		name   string
		panic  any
		status int
		code   string
	}{
		{"validation", pkgError.ValidationError("bad input"), 400, "VALIDATION_ERROR"},
		{"not found", fmt.Errorf("media m1: %w", common.ErrNotFound), 404, "NOT_FOUND_ERROR"},
		{"transient", &common.TransientFetchError{Op: "load more", Key: "media_g1", Err: errors.New("timeout")}, 503, "SERVICE_UNAVAILABLE"},
		{"closed", common.ErrSessionClosed, 503, "SERVICE_UNAVAILABLE"},
		{"plain", errors.New("boom"), 500, "INTERNAL_SERVER_ERROR"},
		{"string", "boom", 500, "INTERNAL_SERVER_ERROR"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Use(Recovery())
			app.Get("/", func(c *fiber.Ctx) error {
				panic(tc.panic)
			})

			resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)

			var body utils.ResponseData
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tc.code, body.Code)
			assert.Equal(t, tc.status, body.Status)
		})
	}
}
