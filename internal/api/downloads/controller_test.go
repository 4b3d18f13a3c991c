package downloads_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hbomb79/Trove/internal/api/downloads"
	"github.com/hbomb79/Trove/internal/api/downloads/mocks"
	"github.com/hbomb79/Trove/internal/catalog"
	"github.com/hbomb79/Trove/internal/download"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const sourceURL = "https://cdn.example.com/media/clip.mp4"

type fixture struct {
	ec      *echo.Echo
	service *mocks.MockService
	files   *mocks.MockFileStore
}

func newFixture(t *testing.T) *fixture {
	service := mocks.NewMockService(t)
	files := mocks.NewMockFileStore(t)

	ec := echo.New()
	downloads.New(validator.New(), service, files).SetRoutes(ec.Group("/downloads"))

	return &fixture{ec: ec, service: service, files: files}
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}

	rec := httptest.NewRecorder()
	f.ec.ServeHTTP(rec, req)
	return rec
}

func TestCreate_WithFileID(t *testing.T) {
	f := newFixture(t)
	fileID := uuid.New()
	transferID := uuid.New()

	f.service.EXPECT().
		StartTransfer(mock.Anything, download.Request{URL: sourceURL, FileID: fileID, Force: true, SessionID: "session-1"}).
		Return(transferID, nil)

	rec := f.do(http.MethodPost, "/downloads/", fmt.Sprintf(`{"url":%q,"fileId":%q,"force":true,"sessionId":"session-1"}`, sourceURL, fileID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp downloads.CreateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, transferID, resp.ID)
}

func TestCreate_WithoutFileIDCreatesFile(t *testing.T) {
	f := newFixture(t)
	transferID := uuid.New()

	var created *catalog.File
	f.files.EXPECT().FindFileBySourceURL(mock.Anything, sourceURL).Return(nil, catalog.ErrFileNotFound)
	f.files.EXPECT().CreateFile(mock.Anything, mock.Anything).RunAndReturn(func(_ context.Context, file *catalog.File) error {
		created = file
		return nil
	})

	var request download.Request
	f.service.EXPECT().StartTransfer(mock.Anything, mock.Anything).RunAndReturn(func(_ context.Context, r download.Request) (uuid.UUID, error) {
		request = r
		return transferID, nil
	})

	rec := f.do(http.MethodPost, "/downloads/", fmt.Sprintf(`{"url":%q}`, sourceURL))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotNil(t, created)
	require.NotNil(t, created.SourceURL)
	assert.Equal(t, sourceURL, *created.SourceURL)
	assert.Equal(t, created.ID, request.FileID)
	assert.False(t, request.Force)
}

func TestCreate_WithoutFileIDReusesExistingFile(t *testing.T) {
	f := newFixture(t)
	existing := catalog.NewFile()

	f.files.EXPECT().FindFileBySourceURL(mock.Anything, sourceURL).Return(existing, nil)
	f.service.EXPECT().
		StartTransfer(mock.Anything, download.Request{URL: sourceURL, FileID: existing.ID}).
		Return(uuid.Nil, download.ErrAlreadyDownloaded)

	rec := f.do(http.MethodPost, "/downloads/", fmt.Sprintf(`{"url":%q}`, sourceURL))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreate_ErrorStatuses(t *testing.T) {
	tests := []struct {
		summary string
		err     error
		status  int
	}{
		{"invalid url", download.ErrInvalidURL, http.StatusBadRequest},
		{"already downloaded", download.ErrAlreadyDownloaded, http.StatusConflict},
		{"unknown file", fmt.Errorf("failed to find target file: %w", catalog.ErrFileNotFound), http.StatusNotFound},
		{"store failure", fmt.Errorf("connection refused"), http.StatusInternalServerError},
	}

	for _, test := range tests {
		t.Run(test.summary, func(t *testing.T) {
			f := newFixture(t)
			f.service.EXPECT().StartTransfer(mock.Anything, mock.Anything).Return(uuid.Nil, test.err)

			rec := f.do(http.MethodPost, "/downloads/", fmt.Sprintf(`{"url":%q,"fileId":%q}`, sourceURL, uuid.New()))
			assert.Equal(t, test.status, rec.Code, rec.Body.String())
		})
	}
}

func TestCreate_ProbeFailureIncludesTransferID(t *testing.T) {
	f := newFixture(t)
	transferID := uuid.New()
	f.service.EXPECT().StartTransfer(mock.Anything, mock.Anything).
		Return(transferID, fmt.Errorf("%w: %w", download.ErrProbeFailed, download.ErrNotFound))

	rec := f.do(http.MethodPost, "/downloads/", fmt.Sprintf(`{"url":%q,"fileId":%q}`, sourceURL, uuid.New()))
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var resp downloads.CreateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, transferID, resp.ID)
	assert.Contains(t, resp.Error, "resource not found")
}

func TestCreate_InvalidBody(t *testing.T) {
	for _, body := range []string{`{}`, `{"url": 12}`, `{"url":"https://a.b/c","fileId":"nope"}`} {
		f := newFixture(t)
		rec := f.do(http.MethodPost, "/downloads/", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestGet_IncludesChunks(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	total := int64(100)
	transfer := &download.Transfer{ID: id, Status: download.TransferDownloading, TotalBytes: &total, BytesDownloaded: 40}
	chunks := []*download.Chunk{
		{TransferID: id, Index: 0, RangeStart: 0, RangeEnd: 49, BytesDownloaded: 40, Status: download.ChunkDownloading},
		{TransferID: id, Index: 1, RangeStart: 50, RangeEnd: 99, Status: download.ChunkPending},
	}

	f.service.EXPECT().Transfer(mock.Anything, id).Return(transfer, nil)
	f.service.EXPECT().Chunks(mock.Anything, id).Return(chunks, nil)

	rec := f.do(http.MethodGet, "/downloads/"+id.String()+"/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, id.String(), body["id"])
	assert.Equal(t, "downloading", body["status"])
	assert.Len(t, body["chunks"], 2)
}

func TestGet_NotFound(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	f.service.EXPECT().Transfer(mock.Anything, id).Return(nil, download.ErrTransferNotFound)

	rec := f.do(http.MethodGet, "/downloads/"+id.String()+"/", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/downloads/not-a-uuid/", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestList(t *testing.T) {
	f := newFixture(t)
	f.service.EXPECT().Transfers(mock.Anything).Return([]*download.Transfer{{ID: uuid.New()}, {ID: uuid.New()}}, nil)

	rec := f.do(http.MethodGet, "/downloads/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body, 2)
	assert.NotContains(t, body[0], "chunks")
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	running, finished := uuid.New(), uuid.New()
	f.service.EXPECT().CancelTransfer(mock.Anything, running).Return(nil)
	f.service.EXPECT().CancelTransfer(mock.Anything, finished).Return(download.ErrTransferFinished)

	assert.Equal(t, http.StatusOK, f.do(http.MethodDelete, "/downloads/"+running.String()+"/", "").Code)
	assert.Equal(t, http.StatusConflict, f.do(http.MethodDelete, "/downloads/"+finished.String()+"/", "").Code)
}
