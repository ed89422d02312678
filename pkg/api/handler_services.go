package api

import (
	"fmt"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/easel-ai/easel/pkg/config"
	"github.com/easel-ai/easel/pkg/supervisor"
)

// serviceName validates the :name path parameter.
func serviceName(c *echo.Context) (string, error) {
	name := c.Param("name")
	if !config.IsValidServiceName(name) {
		return "", echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("invalid service name %q: must be one of llm, flux, vision, vlm", name))
	}
	return name, nil
}

// servicesStatusHandler handles GET /api/services/status.
func (s *Server) servicesStatusHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.sup.AllStatuses(c.Request().Context()))
}

// startServiceHandler handles POST /api/services/:name/start.
func (s *Server) startServiceHandler(c *echo.Context) error {
	name, err := serviceName(c)
	if err != nil {
		return err
	}

	pid, port, err := s.sup.Start(c.Request().Context(), name, supervisor.StartOptions{})
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, &ServiceActionResponse{PID: pid, Port: port})
}

// stopServiceHandler handles POST /api/services/:name/stop. An explicit
// stop is a user decision, so the stop lock is created first; the
// service stays down until the lock is deleted.
func (s *Server) stopServiceHandler(c *echo.Context) error {
	name, err := serviceName(c)
	if err != nil {
		return err
	}

	if err := s.sup.CreateStopLock(name); err != nil {
		return mapError(err)
	}
	if err := s.sup.Stop(c.Request().Context(), name); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// restartServiceHandler handles POST /api/services/:name/restart.
// Refused with 409 while a stop lock is present.
func (s *Server) restartServiceHandler(c *echo.Context) error {
	name, err := serviceName(c)
	if err != nil {
		return err
	}

	pid, port, err := s.sup.Restart(c.Request().Context(), name, supervisor.StartOptions{})
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, &ServiceActionResponse{PID: pid, Port: port})
}

// deleteStopLockHandler handles DELETE /api/services/:name/stop-lock,
// the explicit user reset that allows the service to run again.
func (s *Server) deleteStopLockHandler(c *echo.Context) error {
	name, err := serviceName(c)
	if err != nil {
		return err
	}

	if err := s.sup.DeleteStopLock(name); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// stopLocksHandler handles GET /api/services/stop-locks.
func (s *Server) stopLocksHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.sup.AllStopLocks())
}
