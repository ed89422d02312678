package api

import (
	"net/http"
	"os"

	echo "github.com/labstack/echo/v5"
)

// getImageHandler handles GET /api/images/:sessionId/:filename. The
// store validates both path elements and rejects traversal before any
// filesystem access.
func (s *Server) getImageHandler(c *echo.Context) error {
	sessionID := c.Param("sessionId")
	filename := c.Param("filename")

	path, err := s.store.ImagePath(sessionID, filename)
	if err != nil {
		return mapError(err)
	}

	f, err := os.Open(path)
	if err != nil {
		return mapError(err)
	}
	defer f.Close()

	c.Response().Header().Set("Cache-Control", "public, max-age=3600")
	return c.Stream(http.StatusOK, "image/png", f)
}
