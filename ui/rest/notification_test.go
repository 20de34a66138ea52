package rest

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotification_CreateFlushAndRead(t *testing.T) {
	app, _ := newTestApp(t)

	for _, msg := range []string{"first", "second"} {
		status := doJSON(t, app, http.MethodPost, "/api/notifications", map[string]any{
			"scope_id":     "g1",
			"recipient_id": "u2",
			"kind":         "comment",
			"message":      msg,
			"sender_id":    "u1",
		}, nil)
		require.Equal(t, http.StatusAccepted, status)
	}

	var res mapResponse
	require.Equal(t, http.StatusOK, doJSON(t, app, http.MethodGet, "/api/galleries/g1/notifications/u2/unread-count", nil, &res))
	assert.EqualValues(t, 0, res.Results["unread"], "nothing is written before the batch flushes")

	require.Equal(t, http.StatusOK, doJSON(t, app, http.MethodPost, "/api/notifications/flush", nil, nil))

	require.Equal(t, http.StatusOK, doJSON(t, app, http.MethodGet, "/api/galleries/g1/notifications/u2/unread-count", nil, &res))
	assert.EqualValues(t, 2, res.Results["unread"])

	require.Equal(t, http.StatusOK, doJSON(t, app, http.MethodPost, "/api/galleries/g1/notifications/u2/read-all", nil, nil))
	require.Equal(t, http.StatusOK, doJSON(t, app, http.MethodGet, "/api/galleries/g1/notifications/u2/unread-count", nil, &res))
	assert.EqualValues(t, 0, res.Results["unread"])
}

func TestNotification_Validation(t *testing.T) {
	app, _ := newTestApp(t)

	var res mapResponse
	status := doJSON(t, app, http.MethodPost, "/api/notifications", map[string]any{
		"scope_id":     "g1",
		"recipient_id": "u2",
		"kind":         "poke",
		"message":      "hey",
	}, &res)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", res.Code)

	status = doJSON(t, app, http.MethodPost, "/api/galleries/g1/notifications/read", map[string]any{"ids": []string{}}, &res)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestNotification_MarkReadUnknownID(t *testing.T) {
	app, _ := newTestApp(t)

	var res mapResponse
	status := doJSON(t, app, http.MethodPost, "/api/galleries/g1/notifications/read", map[string]any{"ids": []string{"missing"}}, &res)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND_ERROR", res.Code)
}
