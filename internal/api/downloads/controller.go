package downloads

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hbomb79/Trove/internal/catalog"
	"github.com/hbomb79/Trove/internal/download"
	"github.com/labstack/echo/v4"
)

type (
	CreateRequest struct {
		URL       string     `json:"url" validate:"required"`
		FileID    *uuid.UUID `json:"fileId"`
		Force     bool       `json:"force"`
		SessionID string     `json:"sessionId" validate:"omitempty,max=128"`
	}

	CreateResponse struct {
		ID    uuid.UUID `json:"id"`
		Error string    `json:"error,omitempty"`
	}

	Dto struct {
		*download.Transfer
		Chunks []*download.Chunk `json:"chunks,omitempty"`
	}

	Service interface {
		StartTransfer(ctx context.Context, request download.Request) (uuid.UUID, error)
		CancelTransfer(ctx context.Context, id uuid.UUID) error
		Transfer(ctx context.Context, id uuid.UUID) (*download.Transfer, error)
		Transfers(ctx context.Context) ([]*download.Transfer, error)
		Chunks(ctx context.Context, id uuid.UUID) ([]*download.Chunk, error)
	}

	// FileStore is used to find or create the file a download request
	// targets when the caller does not name one.
	FileStore interface {
		FindFileBySourceURL(ctx context.Context, url string) (*catalog.File, error)
		CreateFile(ctx context.Context, file *catalog.File) error
	}

	Controller struct {
		service  Service
		files    FileStore
		validate *validator.Validate
	}
)

func New(validate *validator.Validate, service Service, files FileStore) *Controller {
	return &Controller{service: service, files: files, validate: validate}
}

func NewDto(transfer *download.Transfer) Dto {
	return Dto{Transfer: transfer}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.POST("/", controller.create)
	eg.GET("/", controller.list)
	eg.GET("/:id/", controller.get)
	eg.DELETE("/:id/", controller.delete)
}

func (controller *Controller) create(ec echo.Context) error {
	var createRequest CreateRequest
	if err := ec.Bind(&createRequest); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid body: %s", err.Error()))
	}

	if err := controller.validate.Struct(createRequest); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid body: %s", err.Error()))
	}

	ctx := ec.Request().Context()
	var fileID uuid.UUID
	if createRequest.FileID != nil {
		fileID = *createRequest.FileID
	} else {
		file, err := controller.fileForURL(ctx, createRequest.URL)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("Failed to create file for download: %s", err.Error()))
		}
		fileID = file.ID
	}

	id, err := controller.service.StartTransfer(ctx, download.Request{
		URL:       createRequest.URL,
		FileID:    fileID,
		Force:     createRequest.Force,
		SessionID: createRequest.SessionID,
	})
	switch {
	case err == nil:
		return ec.JSON(http.StatusCreated, CreateResponse{ID: id})
	case errors.Is(err, download.ErrInvalidURL):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, download.ErrAlreadyDownloaded):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, catalog.ErrFileNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, download.ErrProbeFailed):
		return ec.JSON(http.StatusBadGateway, CreateResponse{ID: id, Error: err.Error()})
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// fileForURL returns the file previously created for the URL, creating
// a minimal one if none exists yet.
func (controller *Controller) fileForURL(ctx context.Context, url string) (*catalog.File, error) {
	existing, err := controller.files.FindFileBySourceURL(ctx, url)
	if err == nil {
		return existing, nil
	} else if !errors.Is(err, catalog.ErrFileNotFound) {
		return nil, err
	}

	file := catalog.NewFile()
	file.SourceURL = &url
	if err := controller.files.CreateFile(ctx, file); err != nil {
		return nil, err
	}

	return file, nil
}

func (controller *Controller) list(ec echo.Context) error {
	transfers, err := controller.service.Transfers(ec.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	dtos := make([]Dto, 0, len(transfers))
	for _, transfer := range transfers {
		dtos = append(dtos, NewDto(transfer))
	}

	return ec.JSON(http.StatusOK, dtos)
}

func (controller *Controller) get(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "ID is not a valid UUID")
	}

	ctx := ec.Request().Context()
	transfer, err := controller.service.Transfer(ctx, id)
	if err != nil {
		return transferError(err)
	}

	chunks, err := controller.service.Chunks(ctx, id)
	if err != nil {
		return transferError(err)
	}

	return ec.JSON(http.StatusOK, Dto{Transfer: transfer, Chunks: chunks})
}

func (controller *Controller) delete(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "ID is not a valid UUID")
	}

	if err := controller.service.CancelTransfer(ec.Request().Context(), id); err != nil {
		return transferError(err)
	}

	return ec.NoContent(http.StatusOK)
}

func transferError(err error) error {
	switch {
	case errors.Is(err, download.ErrTransferNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, download.ErrTransferFinished):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
