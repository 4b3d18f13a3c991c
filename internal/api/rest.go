package api

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Trove/internal/api/downloads"
	"github.com/hbomb79/Trove/internal/api/scans"
	"github.com/hbomb79/Trove/internal/api/sessions"
	"github.com/hbomb79/Trove/internal/http/websocket"
	"github.com/hbomb79/Trove/pkg/logger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var log = logger.Get("API")

const basePath = "/api/trove/v1"

type (
	RestConfig struct {
		HostAddr string `yaml:"host_address" env:"API_HOST_ADDR" env-default:"0.0.0.0:8080" validate:"required,hostname_port"`
	}

	controller interface {
		SetRoutes(*echo.Group)
	}

	// The RestGateway is a thin-wrapper around the Echo HTTP router. It's sole responsibility
	// is to create the routes Trove exposes, and to manage ongoing web socket connections and events.
	RestGateway struct {
		*broadcaster
		config             *RestConfig
		ec                 *echo.Echo
		socket             *websocket.SocketHub
		downloadController controller
		scanController     controller
		sessionController  controller
	}
)

// NewRestGateway constructs the Echo router and populates it with all the
// routes defined by the various controllers. The gatherer provided is
// exposed on the /metrics route.
func NewRestGateway(
	config *RestConfig,
	downloadService downloads.Service,
	fileStore downloads.FileStore,
	scanService scans.Service,
	sessionService sessions.Service,
	gatherer prometheus.Gatherer,
) *RestGateway {
	ec := echo.New()
	ec.OnAddRouteHandler = func(host string, route echo.Route, handler echo.HandlerFunc, middleware []echo.MiddlewareFunc) {
		log.Emit(logger.DEBUG, "Registered new route %s %s\n", route.Method, route.Path)
	}
	ec.HidePort = true
	ec.HideBanner = true

	validate := validator.New()
	socket := websocket.New()
	gateway := &RestGateway{
		broadcaster:        newBroadcaster(socket, downloadService),
		config:             config,
		ec:                 ec,
		socket:             socket,
		downloadController: downloads.New(validate, downloadService, fileStore),
		scanController:     scans.New(validate, scanService),
		sessionController:  sessions.New(sessionService),
	}

	(&socketGateway{sessions: sessionService}).bindCommands(socket)

	ec.Use(middleware.Logger())
	ec.Use(middleware.Recover())
	ec.Pre(middleware.AddTrailingSlash())

	ec.GET(basePath+"/activity/ws/", func(ec echo.Context) error {
		gateway.socket.UpgradeToSocket(ec.Response(), ec.Request())
		return nil
	})
	ec.GET("/metrics/", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	gateway.downloadController.SetRoutes(ec.Group(basePath + "/downloads"))
	gateway.scanController.SetRoutes(ec.Group(basePath + "/scans"))
	gateway.sessionController.SetRoutes(ec.Group(basePath + "/sessions"))

	return gateway
}

// ServeHTTP routes the request through the gateway's router without
// requiring the gateway to be listening.
func (gateway *RestGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	gateway.ec.ServeHTTP(w, r)
}

func (gateway *RestGateway) Run(parentCtx context.Context) error {
	ctx, ctxCancel := context.WithCancelCause(parentCtx)
	wg := &sync.WaitGroup{}

	// Start echo router
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gateway.ec.Start(gateway.config.HostAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ctxCancel(err)
		}
	}()

	// Start thread to listen for context cancellation
	go func(ec *echo.Echo) {
		<-ctx.Done()
		ec.Close()
	}(gateway.ec)

	// Start websocket
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gateway.socket.Run(ctx); err != nil {
			ctxCancel(err)
		}
	}()

	wg.Wait()

	// Return cancellation cause if any, otherwise nil as parent context
	// cancellation is not an error case we should report.
	if cause := context.Cause(ctx); cause != ctx.Err() {
		return cause
	}

	return nil
}
