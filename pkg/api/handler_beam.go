package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// submitBeamSearchHandler handles POST /api/beam-search.
func (s *Server) submitBeamSearchHandler(c *echo.Context) error {
	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	job, err := s.manager.Submit(req.toParams(s.cfg.Defaults))
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusOK, &SubmitResponse{
		JobID:  job.JobID,
		Status: job.Status,
		Params: job.Params,
	})
}
