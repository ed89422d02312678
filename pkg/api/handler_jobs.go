package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// getJobHandler handles GET /api/jobs/:jobId.
func (s *Server) getJobHandler(c *echo.Context) error {
	jobID := c.Param("jobId")
	if jobID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "job id is required")
	}

	job, err := s.manager.Get(jobID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, job)
}

// getJobMetadataHandler handles GET /api/jobs/:jobId/metadata.
func (s *Server) getJobMetadataHandler(c *echo.Context) error {
	jobID := c.Param("jobId")
	if jobID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "job id is required")
	}

	doc, err := s.manager.Metadata(jobID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, doc)
}

// cancelJobHandler handles POST /api/jobs/:jobId/cancel. It responds as
// soon as the cancellation is flagged; the worker notices at its next
// suspension point.
func (s *Server) cancelJobHandler(c *echo.Context) error {
	jobID := c.Param("jobId")
	if jobID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "job id is required")
	}

	if err := s.manager.Cancel(jobID); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, &CancelResponse{Success: true})
}

// listSessionsHandler handles GET /api/jobs.
func (s *Server) listSessionsHandler(c *echo.Context) error {
	sessions, err := s.manager.List()
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, &SessionsResponse{Sessions: sessions})
}
