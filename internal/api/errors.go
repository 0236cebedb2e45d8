package api

import (
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/pkg/errors"

	"github.com/sudomakeinstall/cardio/internal/logger"
	"github.com/sudomakeinstall/cardio/pkg/cine"
	"github.com/sudomakeinstall/cardio/pkg/mpr"
	"github.com/sudomakeinstall/cardio/pkg/orientation"
	"github.com/sudomakeinstall/cardio/pkg/rotation"
)

// StatusError is a handler error with the HTTP status it should be served as
type StatusError struct {
	Code int
	Err  error
}

func (se StatusError) Error() string {
	return se.Err.Error()
}

func (se StatusError) Status() int {
	return se.Code
}

func (se StatusError) Unwrap() error {
	return se.Err
}

func MakeBadRequestError(err error) StatusError {
	return StatusError{Code: http.StatusBadRequest, Err: err}
}

func MakeNotFoundError(what string) StatusError {
	return StatusError{Code: http.StatusNotFound, Err: fmt.Errorf("%v not found", what)}
}

// Errors that come from bad input rather than from the server
var badRequestErrors = []error{
	orientation.ErrInvalidAxcode,
	orientation.ErrInvalidAxis,
	orientation.ErrInvalidUnits,
	orientation.ErrInvalidConvention,
	orientation.ErrNotAxisAligned,
	rotation.ErrInvalidStep,
	rotation.ErrInvalidMetadata,
	rotation.ErrInvalidOrigin,
	mpr.ErrInvalidView,
	ErrFrameOutOfRange,
	ErrFileVolumeMismatch,
}

var conflictErrors = []error{
	rotation.ErrNotDeletable,
	rotation.ErrNameNotEditable,
	ErrNoVolume,
	ErrPlaying,
	cine.ErrAlreadyPlaying,
}

var notFoundErrors = []error{
	ErrUnknownVolume,
	ErrNoSuchStep,
	rotation.ErrObjectNotFound,
}

// statusFor picks the HTTP status of an error returned by a handler
func statusFor(err error) int {
	var se StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	for _, e := range notFoundErrors {
		if errors.Is(err, e) {
			return http.StatusNotFound
		}
	}
	for _, e := range conflictErrors {
		if errors.Is(err, e) {
			return http.StatusConflict
		}
	}
	for _, e := range badRequestErrors {
		if errors.Is(err, e) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// logHandlerErrors writes err to the response. Server errors are also sent to
// Sentry, which is a no-op when it was never initialised.
func logHandlerErrors(err error, log logger.ILogger, w http.ResponseWriter, r *http.Request) {
	status := statusFor(err)
	log.Errorf("Request: %v (%v), Result: status=%v, error=%v", r.URL, r.Method, status, err)
	if status >= http.StatusInternalServerError {
		hub := sentry.GetHubFromContext(r.Context())
		if hub == nil {
			hub = sentry.CurrentHub()
		}
		hub.CaptureException(err)
	}
	http.Error(w, err.Error(), status)
}
