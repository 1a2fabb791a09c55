package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/huangang/larkticket/pkg/logger"
)

// Business result codes carried in the retcode field.
const (
	RetcodeSuccess       = 0
	RetcodeFailure       = -1
	RetcodeNotFound      = 20001
	RetcodeAlreadyExists = 20002
	RetcodeValidation    = 20003
)

// RetcodeKey is the gin context key holding the retcode of the envelope sent.
const RetcodeKey = "retcode"

// Response is the unified API response envelope.
type Response struct {
	Retcode int         `json:"retcode"`
	Msg     string      `json:"msg"`
	Resp    interface{} `json:"resp"`
	Error   string      `json:"error"`
}

// AppError represents a structured application error with HTTP status and retcode.
// Business errors are reported with HTTP 200 and a non-zero retcode.
type AppError struct {
	HTTPStatus int    // HTTP status code
	Retcode    int    // Business result code
	Message    string // Human-readable error message
}

func (e *AppError) Error() string {
	return e.Message
}

// Pre-defined error constructors

func NewValidation(msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusOK, Retcode: RetcodeValidation, Message: msg}
}

func NewNotFound(msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusOK, Retcode: RetcodeNotFound, Message: msg}
}

func NewAlreadyExists(msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusOK, Retcode: RetcodeAlreadyExists, Message: msg}
}

// --- Gin response helpers ---

// Success sends a 200 OK envelope. A nil payload is sent as an empty object.
func Success(c *gin.Context, data interface{}) {
	if data == nil {
		data = gin.H{}
	}
	c.Set(RetcodeKey, RetcodeSuccess)
	c.JSON(http.StatusOK, Response{
		Retcode: RetcodeSuccess,
		Msg:     "success",
		Resp:    data,
	})
}

// Body wraps a collection the way list endpoints return it: {"body": items}.
func Body(items interface{}) gin.H {
	return gin.H{"body": items}
}

// Error sends an error envelope. If err is an *AppError, its status and retcode
// are used; otherwise the generic failure retcode is returned with HTTP 200.
func Error(c *gin.Context, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		logger.Warn().
			Str("path", c.Request.URL.Path).
			Int("retcode", appErr.Retcode).
			Msg(appErr.Message)
		Abort(c, appErr.HTTPStatus, appErr.Retcode, appErr.Message)
		return
	}
	logger.Error().
		Err(err).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Msg("request failed")
	Abort(c, http.StatusOK, RetcodeFailure, err.Error())
}

// Abort writes a failure envelope with an explicit status and stops the chain.
func Abort(c *gin.Context, status, retcode int, msg string) {
	c.Set(RetcodeKey, retcode)
	c.AbortWithStatusJSON(status, Response{
		Retcode: retcode,
		Resp:    gin.H{},
		Error:   msg,
	})
}

// Convenience error response functions

func BadRequest(c *gin.Context, msg string) {
	Abort(c, http.StatusOK, RetcodeFailure, msg)
}

func Unauthorized(c *gin.Context, msg string) {
	Abort(c, http.StatusUnauthorized, RetcodeFailure, msg)
}

func NotFound(c *gin.Context, msg string) {
	Abort(c, http.StatusNotFound, RetcodeFailure, msg)
}

func MethodNotAllowed(c *gin.Context, msg string) {
	Abort(c, http.StatusMethodNotAllowed, RetcodeFailure, msg)
}

func TooManyRequests(c *gin.Context, msg string) {
	Abort(c, http.StatusTooManyRequests, RetcodeFailure, msg)
}
