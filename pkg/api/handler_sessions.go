package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// createEvaluationHandler handles POST /api/sessions/:sessionId/evaluations.
func (s *Server) createEvaluationHandler(c *echo.Context) error {
	var req EvaluationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := s.store.AppendEvaluation(c.Param("sessionId"), req.toEvaluation()); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// listEvaluationsHandler handles GET /api/sessions/:sessionId/evaluations.
func (s *Server) listEvaluationsHandler(c *echo.Context) error {
	evals, err := s.store.ListEvaluations(c.Param("sessionId"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, evals)
}
