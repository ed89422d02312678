package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/easel-ai/easel/pkg/progress"
)

// wsWriteTimeout bounds a single WebSocket send so one stuck client
// cannot pin its writer goroutine forever.
const wsWriteTimeout = 10 * time.Second

// wsHandler upgrades a GET request to a WebSocket progress stream. It is
// also bound to the catch-all route, so plain HTTP requests that reach it
// without an upgrade header are ordinary 404s.
func (s *Server) wsHandler(c *echo.Context) error {
	if !strings.EqualFold(c.Request().Header.Get("Upgrade"), "websocket") {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		// The server binds to localhost; origin checks add nothing there.
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	s.handleWS(c.Request().Context(), conn)
	return nil
}

// handleWS runs one WebSocket session: a read loop accepting subscribe
// messages and one writer goroutine serializing everything outbound.
// Blocks until the connection closes.
func (s *Server) handleWS(parentCtx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	// Outbound frames funnel through a single channel; websocket.Conn
	// allows only one concurrent writer.
	send := make(chan []byte, 16)
	go func() {
		for {
			select {
			case data, ok := <-send:
				if !ok {
					return
				}
				writeCtx, writeCancel := context.WithTimeout(ctx, wsWriteTimeout)
				err := conn.Write(writeCtx, websocket.MessageText, data)
				writeCancel()
				if err != nil {
					cancel()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	var subs []*progress.Subscription
	defer func() {
		for _, sub := range subs {
			s.bus.Unsubscribe(sub)
		}
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg SubscribeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("Ignoring malformed WebSocket message", "error", err)
			continue
		}

		switch msg.Type {
		case "subscribe":
			if msg.JobID == "" {
				continue
			}
			sub := s.bus.Subscribe(msg.JobID)
			subs = append(subs, sub)
			s.enqueueJSON(ctx, send, SubscribedMessage{Type: "subscribed", JobID: msg.JobID})
			go s.forward(ctx, send, sub)
		case "ping":
			s.enqueueJSON(ctx, send, map[string]string{"type": "pong"})
		default:
			// Unknown message types are ignored, not fatal.
		}
	}
}

// forward drains one bus subscription into the connection's send channel.
// Exits when the subscription channel closes (job done or subscriber
// dropped) or the connection goes away.
func (s *Server) forward(ctx context.Context, send chan<- []byte, sub *progress.Subscription) {
	for msg := range sub.Messages() {
		data, err := json.Marshal(msg)
		if err != nil {
			s.logger.Warn("Failed to marshal progress message",
				"job_id", sub.JobID(), "error", err)
			continue
		}
		select {
		case send <- data:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) enqueueJSON(ctx context.Context, send chan<- []byte, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("Failed to marshal WebSocket message", "error", err)
		return
	}
	select {
	case send <- data:
	case <-ctx.Done():
	}
}
