package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/easel-ai/easel/pkg/config"
	"github.com/easel-ai/easel/pkg/jobs"
	"github.com/easel-ai/easel/pkg/models"
	"github.com/easel-ai/easel/pkg/session"
	"github.com/easel-ai/easel/pkg/supervisor"
)

// mapError maps backend errors to HTTP error responses.
func mapError(err error) *echo.HTTPError {
	var validErr *models.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusBadRequest, validErr.Message)
	}

	switch {
	case errors.Is(err, jobs.ErrNotFound),
		errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrImageNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, jobs.ErrNotCancellable):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrInvalidSessionID),
		errors.Is(err, session.ErrInvalidFilename):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, config.ErrServiceNotFound):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, supervisor.ErrEncoderValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, supervisor.ErrAlreadyRunning),
		errors.Is(err, supervisor.ErrPortInUse),
		errors.Is(err, supervisor.ErrStopLocked):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, supervisor.ErrNotConfigured):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, supervisor.ErrNoStopLock):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	slog.Error("Unexpected backend error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
