package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	ModeSetup = "setup"
	ModeLive  = "live"
)

// SetupResponse tells an operator which variables to set before the dashboard can run.
type SetupResponse struct {
	Mode                string   `json:"mode"`
	Missing             []string `json:"missing"`
	Variables           []string `json:"variables"`
	AssistantConfigured bool     `json:"assistantConfigured"`
}

// SetupHandler reports configuration status and gates the dashboard routes while the
// ledger is not configured.
type SetupHandler struct {
	missing             []string
	variables           []string
	assistantConfigured bool
}

func NewSetupHandler(missing, variables []string, assistantConfigured bool) *SetupHandler {
	if missing == nil {
		missing = []string{}
	}
	return &SetupHandler{missing: missing, variables: variables, assistantConfigured: assistantConfigured}
}

// Configured reports whether the ledger settings are complete.
func (h *SetupHandler) Configured() bool {
	return len(h.missing) == 0
}

func (h *SetupHandler) response() SetupResponse {
	mode := ModeLive
	if !h.Configured() {
		mode = ModeSetup
	}
	return SetupResponse{
		Mode:                mode,
		Missing:             h.missing,
		Variables:           h.variables,
		AssistantConfigured: h.assistantConfigured,
	}
}

// Status returns the configuration status
// GET /api/v1/setup
func (h *SetupHandler) Status(c echo.Context) error {
	return SuccessResponse(c, h.response())
}

// RequireLedger answers 503 with the setup guidance until the ledger is configured.
func (h *SetupHandler) RequireLedger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !h.Configured() {
				return c.JSON(http.StatusServiceUnavailable, h.response())
			}
			return next(c)
		}
	}
}
