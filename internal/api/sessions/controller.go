package sessions

import (
	"context"
	"net/http"

	"github.com/hbomb79/Trove/internal/progress"
	"github.com/labstack/echo/v4"
)

type (
	Service interface {
		CancelSession(ctx context.Context, sessionID string) error
		SessionProgress(ctx context.Context, sessionID string) (progress.Counters, error)
	}

	Controller struct {
		service Service
	}
)

func New(service Service) *Controller {
	return &Controller{service: service}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.POST("/:id/cancel/", controller.cancel)
	eg.GET("/:id/progress/", controller.progress)
}

func (controller *Controller) cancel(ec echo.Context) error {
	if err := controller.service.CancelSession(ec.Request().Context(), ec.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ec.NoContent(http.StatusNoContent)
}

func (controller *Controller) progress(ec echo.Context) error {
	counters, err := controller.service.SessionProgress(ec.Request().Context(), ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ec.JSON(http.StatusOK, counters)
}
