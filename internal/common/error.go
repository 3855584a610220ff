package common

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/hertz/pkg/app"
	kerrors "github.com/cloudwego/kitex/pkg/kerrors"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeKBUnavailable    = "kb_unavailable"
	ErrCodeStoreUnavailable = "store_unavailable"
	ErrCodeInternal         = "internal_error"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrForbidden        = errors.New("forbidden")
	ErrKBUnavailable    = errors.New("knowledge base unavailable")
)

// ValidationError rejects malformed input at the boundary, before any write happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Invalid is shorthand for building a *ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Conflict wraps ErrConflict with a message.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Forbidden(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// Unavailable marks err as a store failure while keeping it in the chain.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// ErrorResponse harmonized HTTP error schema.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// RequestIDKey for context retrieval.
const RequestIDKey = "request_id"

// KitexErrorKey holds the biz status error of a failed request; the access log reports it.
const KitexErrorKey = "kitex_error"

// MapErrorCodeToHTTP maps domain error codes to HTTP status.
func MapErrorCodeToHTTP(code string) int32 {
	switch code {
	case ErrCodeBadRequest:
		return 400
	case ErrCodeUnauthorized:
		return 401
	case ErrCodeForbidden:
		return 403
	case ErrCodeNotFound:
		return 404
	case ErrCodeConflict:
		return 409
	case ErrCodeKBUnavailable, ErrCodeStoreUnavailable:
		return 503
	default:
		return 500
	}
}

// WriteError converts internal error code + message to HTTP JSON response and attaches a Kitex biz error.
func WriteError(c context.Context, ctx *app.RequestContext, status int, code, msg string) {
	rid := RequestID(ctx)
	codeInt := MapErrorCodeToHTTP(code)
	if status == 0 {
		status = int(codeInt)
	}
	err := kerrors.NewBizStatusError(codeInt, msg)
	ctx.SetStatusCode(status)
	ctx.JSON(status, ErrorResponse{Code: code, Message: msg, RequestID: rid})
	ctx.Set(KitexErrorKey, err)
}

// WriteDomainError picks the HTTP code for err from the sentinel it wraps.
func WriteDomainError(c context.Context, ctx *app.RequestContext, err error) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		WriteError(c, ctx, 0, ErrCodeBadRequest, ve.Error())
	case errors.Is(err, ErrNotFound):
		WriteError(c, ctx, 0, ErrCodeNotFound, err.Error())
	case errors.Is(err, ErrConflict):
		WriteError(c, ctx, 0, ErrCodeConflict, err.Error())
	case errors.Is(err, ErrForbidden):
		WriteError(c, ctx, 0, ErrCodeForbidden, err.Error())
	case errors.Is(err, ErrKBUnavailable):
		logError(ctx, "kb unavailable", err)
		WriteError(c, ctx, 0, ErrCodeKBUnavailable, "knowledge base unavailable, please retry")
	case errors.Is(err, ErrStoreUnavailable):
		logError(ctx, "store unavailable", err)
		WriteError(c, ctx, 0, ErrCodeStoreUnavailable, "store unavailable, please retry")
	default:
		logError(ctx, "internal error", err)
		WriteError(c, ctx, 0, ErrCodeInternal, "internal error")
	}
}

// RequestID returns the request id set by the middleware chain, if any.
func RequestID(ctx *app.RequestContext) string {
	if v, ok := ctx.Get(RequestIDKey); ok {
		switch vv := v.(type) {
		case string:
			return vv
		case []byte:
			return string(vv)
		}
	}
	return ""
}
