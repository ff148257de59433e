// Package handlers serves the dashboard API.
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/marigold/pkg/assistant"
	"github.com/Ramsey-B/marigold/pkg/dashboard"
)

// Dashboard is the live view source.
type Dashboard interface {
	Views() *dashboard.Views
	Listen() (<-chan *dashboard.Views, func())
}

// Assistant runs the model-backed operations.
type Assistant interface {
	PredictDelay(ctx context.Context, input assistant.DelayPredictionInput) (assistant.DelayPrediction, error)
	DraftFollowUp(ctx context.Context, input assistant.FollowUpInput) (assistant.FollowUpDraft, error)
}

// StudentID reads the :id path parameter.
func StudentID(c echo.Context) (string, error) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return "", httperror.NewHTTPError(http.StatusBadRequest, "missing student id")
	}
	return id, nil
}

// SuccessResponse returns a 200 OK with data
func SuccessResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, data)
}

// BadRequest returns a 400 Bad Request error
func BadRequest(message string) error {
	return httperror.NewHTTPError(http.StatusBadRequest, message)
}

// NotFound returns a 404 Not Found error
func NotFound(message string) error {
	return httperror.NewHTTPError(http.StatusNotFound, message)
}
