package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/larkticket/internal/services"
	"github.com/huangang/larkticket/pkg/response"
)

// OperationLogHandler exposes the audit trail of configuration writes.
type OperationLogHandler struct {
	operationLogService *services.OperationLogService
}

func NewOperationLogHandler(operationLogService *services.OperationLogService) *OperationLogHandler {
	return &OperationLogHandler{operationLogService: operationLogService}
}

func (h *OperationLogHandler) List(c *gin.Context) {
	var req services.OperationLogListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, response.NewValidation(err.Error()))
		return
	}

	resp, err := h.operationLogService.List(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}
