package jobs

import (
	"net/http"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hbomb79/Aria/internal/extract"
	"github.com/hbomb79/Aria/internal/job"
	"github.com/hbomb79/Aria/pkg/logger"
	"github.com/labstack/echo/v4"
)

type (
	SubmitRequest struct {
		URL string `query:"url" validate:"required"`
	}

	// JobDto is the response shape used by the polling endpoint and the
	// activity feed.
	JobDto struct {
		Token    uuid.UUID   `json:"token"`
		Status   JobStateDto `json:"status"`
		Progress int         `json:"progress"`
		Detail   string      `json:"detail,omitempty"`
	}

	JobStateDto string

	DownloadService interface {
		Submit(locator string) (uuid.UUID, error)
		Job(token uuid.UUID) *job.Job
		AllJobs() []*job.Job
		Consume(token uuid.UUID) *job.Job
		ReleaseArtifact(path string) error
		OneTimeDelivery() bool
	}

	// Controller is the struct which is responsible for defining the
	// routes for this controller. The capability token carried in the
	// query string is the only authentication any of these routes have.
	Controller struct {
		validate *validator.Validate
		service  DownloadService
	}
)

var controllerLogger = logger.Get("JobsController")

const (
	ProcessingState JobStateDto = "processing"
	ReadyState      JobStateDto = "ready"
	FailedState     JobStateDto = "failed"
)

func New(validate *validator.Validate, service DownloadService) *Controller {
	return &Controller{validate: validate, service: service}
}

// errorResponse writes a failure body keyed on 'error'. Clients read
// this key, so plain HTTPErrors (which serialize under 'message') must
// not be used on these routes.
func errorResponse(ec echo.Context, status int, detail string) error {
	return ec.JSON(status, map[string]string{"error": detail})
}

// SetRoutes accepts the Echo group for the job endpoints
// and sets the routes on them.
func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/", controller.submit)
	eg.GET("/download/", controller.fetch)
}

// submit accepts the 'url' query param and issues a new extraction job
// for it, returning the jobs token. The submission returns immediately;
// the extraction itself runs out-of-band.
func (controller *Controller) submit(ec echo.Context) error {
	request := SubmitRequest{URL: ec.QueryParam("url")}
	if err := controller.validate.Struct(&request); err != nil {
		return errorResponse(ec, http.StatusBadRequest, "Missing URL")
	}

	token, err := controller.service.Submit(request.URL)
	if err != nil {
		return errorResponse(ec, http.StatusBadRequest, err.Error())
	}

	return ec.JSON(http.StatusOK, map[string]string{"token": token.String()})
}

// fetch is the poll/fetch path: it accepts the 'token' query param and
// responds according to the jobs state. Unknown, expired and consumed
// tokens are indistinguishable (all 404). A PROCESSING job reports
// progress with no side effect. When one-time delivery is enabled,
// terminal jobs are atomically consumed by this handler: of racing
// fetches for the same READY token exactly one streams the artifact,
// the rest observe 404.
func (controller *Controller) fetch(ec echo.Context) error {
	token, err := uuid.Parse(ec.QueryParam("token"))
	if err != nil {
		return errorResponse(ec, http.StatusNotFound, "invalid token")
	}

	item := controller.service.Job(token)
	if item == nil {
		return errorResponse(ec, http.StatusNotFound, "invalid token")
	}

	if item.Status == job.PROCESSING {
		return ec.JSON(http.StatusAccepted, NewDto(item))
	}

	if controller.service.OneTimeDelivery() {
		if item = controller.service.Consume(token); item == nil {
			// Lost the race against another fetch or the reaper.
			return errorResponse(ec, http.StatusNotFound, "invalid token")
		}
	}

	if item.Status == job.FAILED {
		body := map[string]string{"error": "extraction failed", "detail": item.ErrorDetail}
		if hint := extract.ClassifyFailure(item.ErrorDetail); hint != "" {
			body["hint"] = hint
		}

		return ec.JSON(http.StatusInternalServerError, body)
	}

	return controller.streamArtifact(ec, item)
}

// streamArtifact serves a READY jobs artifact as an attachment. In
// one-time mode the job has already been consumed by the caller, so the
// backing file is scheduled for deletion once the response completes.
func (controller *Controller) streamArtifact(ec echo.Context, item *job.Job) error {
	if controller.service.OneTimeDelivery() {
		defer func() {
			if err := controller.service.ReleaseArtifact(item.ResultPath); err != nil {
				controllerLogger.Emit(logger.ERROR, "Failed to release artifact for consumed %s: %v\n", item, err)
			}
		}()
	}

	controllerLogger.Emit(logger.INFO, "Serving artifact for %s\n", item)
	return ec.Attachment(item.ResultPath, filepath.Base(item.ResultPath))
}

// NewDto converts a job model in to its external representation.
func NewDto(item *job.Job) JobDto {
	return JobDto{
		Token:    item.Token,
		Status:   stateToDto(item.Status),
		Progress: item.Progress,
		Detail:   item.ErrorDetail,
	}
}

func stateToDto(status job.Status) JobStateDto {
	switch status {
	case job.READY:
		return ReadyState
	case job.FAILED:
		return FailedState
	default:
		return ProcessingState
	}
}
