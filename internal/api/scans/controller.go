package scans

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Trove/internal/scan"
	"github.com/labstack/echo/v4"
)

type (
	// CreateRequest starts a scan of either a local directory or a
	// paged remote listing, never both.
	CreateRequest struct {
		SessionID  string `json:"sessionId" validate:"required,max=128"`
		Path       string `json:"path" validate:"required_without=ListingURL,excluded_with=ListingURL"`
		ListingURL string `json:"listingUrl" validate:"omitempty,url"`
	}

	CreateResponse struct {
		SessionID string `json:"sessionId"`
	}

	Service interface {
		StartScan(ctx context.Context, sessionID string, source scan.Source) error
		FilesystemSource(root string) *scan.FilesystemSource
	}

	Controller struct {
		service  Service
		validate *validator.Validate
	}
)

func New(validate *validator.Validate, service Service) *Controller {
	return &Controller{service: service, validate: validate}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.POST("/", controller.create)
}

func (controller *Controller) create(ec echo.Context) error {
	var createRequest CreateRequest
	if err := ec.Bind(&createRequest); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid body: %s", err.Error()))
	}

	if err := controller.validate.Struct(createRequest); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid body: %s", err.Error()))
	}

	var source scan.Source
	if createRequest.ListingURL != "" {
		source = scan.NewListingSource(scan.NewHTTPLister(nil, createRequest.ListingURL))
	} else {
		if info, err := os.Stat(createRequest.Path); err != nil || !info.IsDir() {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Path %s is not a readable directory", createRequest.Path))
		}
		source = controller.service.FilesystemSource(createRequest.Path)
	}

	if err := controller.service.StartScan(ec.Request().Context(), createRequest.SessionID, source); err != nil {
		if errors.Is(err, scan.ErrScanInProgress) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}

		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ec.JSON(http.StatusAccepted, CreateResponse{SessionID: createRequest.SessionID})
}
