package server

import (
	"errors"
	"net/http"

	"github.com/abrahamoflondon/innercircle/internal/access"
	accesskeydomain "github.com/abrahamoflondon/innercircle/internal/accesskey/domain"
	auditdomain "github.com/abrahamoflondon/innercircle/internal/audit/domain"
	"github.com/abrahamoflondon/innercircle/internal/authorization"
	memberdomain "github.com/abrahamoflondon/innercircle/internal/member/domain"
	"github.com/abrahamoflondon/innercircle/internal/session"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// unavailableMessage is the only thing a caller learns about a store fault.
const unavailableMessage = "access temporarily unavailable"

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// validationFields names the request field each domain validation sentinel
// belongs to. The sentinel text is the error code.
var validationFields = []struct {
	err   error
	field string
}{
	{ErrInvalidRequest, "request"},
	{errInvalidSnowflakeID, "id"},
	{access.ErrInvalidTier, "tier"},
	{accesskeydomain.ErrInvalidTTL, "ttl_days"},
	{accesskeydomain.ErrInvalidKeyID, "id"},
	{accesskeydomain.ErrInvalidReference, "key"},
	{memberdomain.ErrInvalidEmail, "email"},
	{memberdomain.ErrInvalidMember, "member_id"},
	{memberdomain.ErrInvalidReason, "reason"},
	{auditdomain.ErrInvalidPageToken, "page_token"},
	{auditdomain.ErrInvalidTimeRange, "start_at"},
	{auditdomain.ErrInvalidAction, "action"},
}

type errorRule struct {
	status  int
	kind    string
	message string
	matches []error
}

// errorRules are checked in order; the first rule with a matching sentinel
// decides the response.
var errorRules = []errorRule{
	{http.StatusUnauthorized, "unauthorized", "unauthorized", []error{
		ErrUnauthorized, authorization.ErrInvalidAdminToken, session.ErrInvalidSession,
	}},
	{http.StatusForbidden, "forbidden", "forbidden", []error{
		ErrForbidden, authorization.ErrForbidden,
	}},
	{http.StatusConflict, "conflict", "active key limit reached", []error{accesskeydomain.ErrKeyLimitReached}},
	{http.StatusConflict, "conflict", "member is suspended", []error{memberdomain.ErrSuspended}},
	{http.StatusConflict, "conflict", "conflict", []error{ErrConflict}},
	{http.StatusNotFound, "not_found", "not found", []error{
		ErrNotFound, accesskeydomain.ErrNotFound, memberdomain.ErrNotFound, gorm.ErrRecordNotFound,
	}},
	{http.StatusTooManyRequests, "rate_limited", "too many requests", []error{ErrRateLimited}},
	{http.StatusServiceUnavailable, "service_unavailable", unavailableMessage, []error{
		ErrServiceUnavailable, accesskeydomain.ErrStoreUnavailable,
	}},
}

func (r errorRule) match(err error) (error, bool) {
	for _, target := range r.matches {
		if errors.Is(err, target) {
			return target, true
		}
	}
	return nil, false
}

func mapError(err error) (int, errorPayload) {
	status, payload, _ := resolveError(err)
	return status, payload
}

// resolveError maps err onto the response envelope and returns the sentinel
// that decided it, if any.
func resolveError(err error) (int, errorPayload, error) {
	if err == nil {
		return http.StatusInternalServerError, internalPayload(), nil
	}

	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return http.StatusBadRequest, validationPayload(vErr.Errors), nil
	}
	for _, v := range validationFields {
		if errors.Is(err, v.err) {
			return http.StatusBadRequest, validationPayload([]ValidationError{{
				Field:   v.field,
				Code:    v.err.Error(),
				Message: validationMessage(v.err),
			}}), v.err
		}
	}

	for _, rule := range errorRules {
		if target, ok := rule.match(err); ok {
			return rule.status, errorPayload{Type: rule.kind, Message: rule.message}, target
		}
	}
	return http.StatusInternalServerError, internalPayload(), nil
}

func internalPayload() errorPayload {
	return errorPayload{Type: "internal_error", Message: "internal server error"}
}

func validationPayload(items []ValidationError) errorPayload {
	return errorPayload{
		Type:    "validation_error",
		Message: "validation error",
		Errors:  items,
	}
}

func validationMessage(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid request"
	}
	return "invalid value"
}

// classifyErrorForLog feeds the request logger. The code is a sentinel or
// validation code and never the wrapped cause.
func classifyErrorForLog(err error) (string, string) {
	_, payload, sentinel := resolveError(err)
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	if sentinel != nil {
		return payload.Type, sentinel.Error()
	}
	return payload.Type, payload.Type
}
