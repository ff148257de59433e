package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// StreamHeartbeat keeps idle SSE connections open through proxies.
var StreamHeartbeat = 15 * time.Second

// Stream pushes a views event after every recompute
// GET /api/v1/dashboard/stream
func (h *DashboardHandler) Stream(c echo.Context) error {
	ctx := c.Request().Context()
	updates, cancel := h.dashboard.Listen()
	defer cancel()

	res := c.Response()
	// the server write timeout would otherwise cut the stream
	_ = http.NewResponseController(res.Writer).SetWriteDeadline(time.Time{})
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	heartbeat := time.NewTicker(StreamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.closing:
			return nil
		case <-heartbeat.C:
			if _, err := fmt.Fprint(res, ": ping\n\n"); err != nil {
				return nil
			}
			res.Flush()
		case views, ok := <-updates:
			if !ok {
				return nil
			}
			data, err := json.Marshal(h.presenter.Stream(views))
			if err != nil {
				h.logger.WithContext(ctx).WithError(err).Error("Failed to encode stream event")
				continue
			}
			if _, err := fmt.Fprintf(res, "id: %d\nevent: views\ndata: %s\n\n", views.Version, data); err != nil {
				h.logger.WithContext(ctx).WithError(err).Debug("Stream client went away")
				return nil
			}
			res.Flush()
		}
	}
}
