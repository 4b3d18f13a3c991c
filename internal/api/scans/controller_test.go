package scans_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Trove/internal/api/scans"
	"github.com/hbomb79/Trove/internal/api/scans/mocks"
	"github.com/hbomb79/Trove/internal/scan"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func post(t *testing.T, service scans.Service, body string) *httptest.ResponseRecorder {
	ec := echo.New()
	scans.New(validator.New(), service).SetRoutes(ec.Group("/scans"))

	req := httptest.NewRequest(http.MethodPost, "/scans/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ec.ServeHTTP(rec, req)
	return rec
}

func TestCreate_FilesystemScan(t *testing.T) {
	root := t.TempDir()
	source := scan.NewFilesystemSource(root, nil, nil)

	service := mocks.NewMockService(t)
	service.EXPECT().FilesystemSource(root).Return(source)
	service.EXPECT().StartScan(mock.Anything, "session-1", source).Return(nil)

	rec := post(t, service, fmt.Sprintf(`{"sessionId":"session-1","path":%q}`, root))
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
}

func TestCreate_ListingScan(t *testing.T) {
	service := mocks.NewMockService(t)
	service.EXPECT().StartScan(mock.Anything, "session-1", mock.AnythingOfType("*scan.ListingSource")).Return(nil)

	rec := post(t, service, `{"sessionId":"session-1","listingUrl":"https://listing.example.com/items"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
}

func TestCreate_ScanInProgress(t *testing.T) {
	root := t.TempDir()
	service := mocks.NewMockService(t)
	service.EXPECT().FilesystemSource(root).Return(scan.NewFilesystemSource(root, nil, nil))
	service.EXPECT().StartScan(mock.Anything, "session-1", mock.Anything).Return(scan.ErrScanInProgress)

	rec := post(t, service, fmt.Sprintf(`{"sessionId":"session-1","path":%q}`, root))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreate_InvalidRequests(t *testing.T) {
	tests := []struct {
		summary string
		body    string
	}{
		{"missing session", fmt.Sprintf(`{"path":%q}`, t.TempDir())},
		{"missing source", `{"sessionId":"session-1"}`},
		{"both sources", fmt.Sprintf(`{"sessionId":"session-1","path":%q,"listingUrl":"https://a.example.com"}`, t.TempDir())},
		{"bad listing url", `{"sessionId":"session-1","listingUrl":"not a url"}`},
		{"missing directory", `{"sessionId":"session-1","path":"/does/not/exist"}`},
	}

	for _, test := range tests {
		t.Run(test.summary, func(t *testing.T) {
			rec := post(t, mocks.NewMockService(t), test.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}
