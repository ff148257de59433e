// Package utils binds and validates request and response payloads.
package utils

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"
)

// BindRequest binds the JSON body into T and validates it.
// Failures are 400s; validation failures carry the failed fields under the "fields" meta key.
func BindRequest[T any](c echo.Context) (T, error) {
	var v T

	if err := c.Bind(&v); err != nil {
		return v, httperror.NewHTTPError(http.StatusBadRequest, "request body is not valid JSON")
	}

	v, err := Validate(v)
	if err == nil {
		return v, nil
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		return v, httperror.NewHTTPError(http.StatusBadRequest, verr.Error()).AddMetaValue("fields", verr.Fields)
	}
	return v, httperror.WrapError(http.StatusBadRequest, err)
}
