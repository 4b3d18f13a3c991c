package sessions_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hbomb79/Trove/internal/api/sessions"
	"github.com/hbomb79/Trove/internal/api/sessions/mocks"
	"github.com/hbomb79/Trove/internal/progress"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func serve(service sessions.Service, method, target string) *httptest.ResponseRecorder {
	ec := echo.New()
	sessions.New(service).SetRoutes(ec.Group("/sessions"))

	rec := httptest.NewRecorder()
	ec.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestCancel(t *testing.T) {
	service := mocks.NewMockService(t)
	service.EXPECT().CancelSession(mock.Anything, "session-1").Return(nil)

	rec := serve(service, http.MethodPost, "/sessions/session-1/cancel/")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCancel_StoreFailure(t *testing.T) {
	service := mocks.NewMockService(t)
	service.EXPECT().CancelSession(mock.Anything, "session-1").Return(errors.New("store unavailable"))

	rec := serve(service, http.MethodPost, "/sessions/session-1/cancel/")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestProgress(t *testing.T) {
	service := mocks.NewMockService(t)
	service.EXPECT().SessionProgress(mock.Anything, "session-1").Return(progress.Counters{Total: 10, Done: 4, Failed: 1}, nil)

	rec := serve(service, http.MethodGet, "/sessions/session-1/progress/")
	require.Equal(t, http.StatusOK, rec.Code)

	var counters progress.Counters
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &counters))
	assert.Equal(t, progress.Counters{Total: 10, Done: 4, Failed: 1}, counters)
}
