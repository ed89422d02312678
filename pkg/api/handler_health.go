package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/easel-ai/easel/pkg/version"
)

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   version.Full(),
	})
}
