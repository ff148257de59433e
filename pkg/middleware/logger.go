package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/marigold/pkg/context"
)

// quietRoutes are polled by orchestrators and scrapers; successful hits log at debug.
var quietRoutes = []string{"/api/v1/health", "/metrics"}

// Logger writes one access log line per request. The dashboard stream logs once, when the client leaves.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			start := time.Now()
			if err = next(c); err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			ctx := req.Context()

			fields := context.Fields(ctx)
			fields["status"] = res.Status
			fields["uri"] = req.RequestURI
			fields["user_agent"] = req.UserAgent()
			fields["response_time"] = time.Since(start)
			fields["response_size"] = res.Size

			log := logger.WithContext(ctx).WithFields(fields)
			switch {
			case res.Status >= http.StatusInternalServerError:
				log.Warn("Request failed")
			case isQuiet(c.Path()):
				log.Debug("Request")
			default:
				log.Info("Request")
			}

			return nil
		}
	}
}

func isQuiet(route string) bool {
	for _, prefix := range quietRoutes {
		if strings.HasPrefix(route, prefix) {
			return true
		}
	}
	return false
}
