package api

import (
	"errors"

	"BarFeed/internal/domain/models"
	xhttp "BarFeed/pkg/http"

	"github.com/labstack/echo/v4"
)

// errorResponse maps domain errors onto the HTTP envelope.
func errorResponse(c echo.Context, err error) error {
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(ve.Field, ve.Message).WithError(err))
	}
	if errors.Is(err, models.ErrInvalidSubscription) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("", err.Error()).WithError(err))
	}
	var se *models.StoreQueryError
	if errors.As(err, &se) {
		return xhttp.AppErrorResponse(c, xhttp.BadGatewayError("ERR_STORE_QUERY", se.Error()).WithError(err))
	}
	return xhttp.AppErrorResponse(c, xhttp.InternalError("internal error").WithError(err))
}
