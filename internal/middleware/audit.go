package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/huangang/larkticket/internal/models"
	"github.com/huangang/larkticket/pkg/logger"
	"github.com/huangang/larkticket/pkg/response"
)

// OperationRecorder persists audit entries.
type OperationRecorder interface {
	Record(ctx context.Context, entry *models.OperationLog) error
}

// AuditLog records configuration writes (POST/PUT/DELETE) with the operator,
// the approval code touched, the HTTP status and the envelope retcode.
// recorder may be nil.
func AuditLog(recorder OperationRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if method != http.MethodPost && method != http.MethodPut && method != http.MethodDelete {
			c.Next()
			return
		}

		code := c.Param("approval_code")
		if code == "" && c.Request.Body != nil {
			bodyBytes, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			code = approvalCodeOf(bodyBytes)
		}

		c.Next()

		operator := GetOperator(c)
		if operator == "" {
			operator = "anonymous"
		}
		entry := &models.OperationLog{
			RequestID:    c.GetString(logger.RequestIDKey),
			Operator:     operator,
			Action:       auditAction(c),
			ApprovalCode: code,
			Status:       c.Writer.Status(),
			Retcode:      retcodeOf(c),
			IP:           c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
		}
		logger.Info().
			Str("request_id", entry.RequestID).
			Str("operator", entry.Operator).
			Str("action", entry.Action).
			Str("approval_code", entry.ApprovalCode).
			Int("status", entry.Status).
			Int("retcode", entry.Retcode).
			Msg("[Audit] approval config write")

		if recorder == nil {
			return
		}
		if err := recorder.Record(context.WithoutCancel(c.Request.Context()), entry); err != nil {
			logger.Warn().Err(err).Str("request_id", entry.RequestID).Msg("[Audit] failed to store operation log")
		}
	}
}

func approvalCodeOf(body []byte) string {
	var payload struct {
		ApprovalCode string `json:"approval_code"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.ApprovalCode
}

// auditAction is "METHOD route", using the route pattern when one matched.
func auditAction(c *gin.Context) string {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	return c.Request.Method + " " + path
}

// retcodeOf reads the retcode of the envelope sent. Responses written without
// the envelope count as failures when the status is not 2xx.
func retcodeOf(c *gin.Context) int {
	if v, ok := c.Get(response.RetcodeKey); ok {
		if code, ok := v.(int); ok {
			return code
		}
	}
	if c.Writer.Status() >= http.StatusBadRequest {
		return response.RetcodeFailure
	}
	return response.RetcodeSuccess
}
