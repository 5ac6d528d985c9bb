package api

import (
	"context"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Aria/internal/api/jobs"
	"github.com/hbomb79/Aria/internal/event"
	"github.com/hbomb79/Aria/internal/http/websocket"
	"github.com/hbomb79/Aria/pkg/logger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

var log = logger.Get("API")

type (
	RestConfig struct {
		HostAddr       string   `yaml:"host" env:"API_HOST_ADDR" env-default:"0.0.0.0:8080"`
		AllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-default:"*"`
	}

	controller interface {
		SetRoutes(*echo.Group)
	}

	// The RestGateway is a thin-wrapper around the Echo HTTP router. It's sole responsbility
	// is to create the routes Aria exposes, manage ongoing web socket connections, and to
	// forward job activity from the event bus to those connections.
	RestGateway struct {
		config         *RestConfig
		ec             *echo.Echo
		socket         *websocket.SocketHub
		jobsController controller
		eventChannel   event.HandlerChannel
	}
)

// NewRestGateway constructs the Echo router and populates it with all
// the routes Aria exposes. The jobs service provided backs both the
// submit/fetch routes and the websocket activity feed.
func NewRestGateway(config *RestConfig, downloadService jobs.DownloadService, eventBus event.EventCoordinator) *RestGateway {
	ec := echo.New()
	ec.OnAddRouteHandler = func(host string, route echo.Route, handler echo.HandlerFunc, middleware []echo.MiddlewareFunc) {
		log.Emit(logger.DEBUG, "Registered new route %s %s\n", route.Method, route.Path)
	}
	ec.HidePort = true
	ec.HideBanner = true

	socket := websocket.New()
	gateway := &RestGateway{
		config:         config,
		ec:             ec,
		socket:         socket,
		jobsController: jobs.New(validator.New(), downloadService),
		eventChannel:   make(event.HandlerChannel, 100),
	}

	eventBus.RegisterHandlerChannel(gateway.eventChannel,
		event.JobUpdateEvent, event.JobProgressEvent, event.JobCompleteEvent, event.JobExpiredEvent)

	// Furnish newly connected activity-feed clients with a snapshot of
	// every live job, so they need not wait for the next transition.
	socket.WithConnectionCallback(func() map[string]interface{} {
		live := downloadService.AllJobs()
		snapshot := make([]jobs.JobDto, 0, len(live))
		for _, item := range live {
			snapshot = append(snapshot, jobs.NewDto(item))
		}

		return map[string]interface{}{"jobs": snapshot}
	})

	ec.Use(middleware.Logger())
	ec.Use(middleware.Recover())
	ec.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: config.AllowedOrigins,
		AllowMethods: []string{echo.GET, echo.POST, echo.OPTIONS},
	}))
	ec.Pre(middleware.AddTrailingSlash())

	ec.GET("/api/aria/v1/activity/ws/", func(ec echo.Context) error {
		gateway.socket.UpgradeToSocket(ec.Response(), ec.Request())
		return nil
	})

	gateway.jobsController.SetRoutes(ec.Group(""))

	return gateway
}

func (gateway *RestGateway) Run(parentCtx context.Context) error {
	ctx, ctxCancel := context.WithCancelCause(parentCtx)
	wg := &sync.WaitGroup{}

	// Start echo router
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gateway.ec.Start(gateway.config.HostAddr); err != nil {
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
		gateway.socket.Start(ctx)
	}()

	// Forward job activity from the event bus to connected clients
	wg.Add(1)
	go func() {
		defer wg.Done()
		gateway.forwardActivity(ctx)
	}()

	wg.Wait()

	// Return cancellation cause if any, otherwise nil as parent context
	// cancellation is not an error case we should report.
	if cause := context.Cause(ctx); cause != ctx.Err() {
		return cause
	}

	return nil
}

// forwardActivity drains the gateways event channel, pushing each job
// lifecycle event to the websocket hub until the context is cancelled.
func (gateway *RestGateway) forwardActivity(ctx context.Context) {
	for {
		select {
		case message := <-gateway.eventChannel:
			gateway.socket.Send(&websocket.SocketMessage{
				Title: string(message.Event),
				Body:  map[string]interface{}{"token": message.Payload},
				Type:  websocket.Update,
			})
		case <-ctx.Done():
			return
		}
	}
}
