package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/larkticket/internal/services"
	"github.com/huangang/larkticket/pkg/approval"
	"github.com/huangang/larkticket/pkg/logger"
	"github.com/huangang/larkticket/pkg/response"
)

// ApprovalConfigHandler serves the admin console under /api/v1/web.
type ApprovalConfigHandler struct {
	configService *services.ApprovalConfigService
}

func NewApprovalConfigHandler(configService *services.ApprovalConfigService) *ApprovalConfigHandler {
	return &ApprovalConfigHandler{configService: configService}
}

func (h *ApprovalConfigHandler) List(c *gin.Context) {
	items, err := h.configService.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, response.Body(items))
}

func (h *ApprovalConfigHandler) Get(c *gin.Context) {
	code := c.Param("approval_code")
	logger.Info().Str("approval_code", code).Msg("[Web] get config")

	cfg, err := h.configService.Get(c.Request.Context(), code)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, cfg)
}

func (h *ApprovalConfigHandler) Create(c *gin.Context) {
	var req approval.Config
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, response.NewValidation(err.Error()))
		return
	}
	logger.Info().Str("approval_code", req.ApprovalCode).Msg("[Web] create config")

	if err := h.configService.Create(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

func (h *ApprovalConfigHandler) Update(c *gin.Context) {
	var req approval.Config
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, response.NewValidation(err.Error()))
		return
	}
	logger.Info().Str("approval_code", req.ApprovalCode).Msg("[Web] update config")

	if err := h.configService.Update(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

func (h *ApprovalConfigHandler) Delete(c *gin.Context) {
	code := c.Param("approval_code")
	logger.Info().Str("approval_code", code).Msg("[Web] delete config")

	if err := h.configService.Delete(c.Request.Context(), code); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// ApprovalFields lists the form controls of a Lark approval definition as
// {label, value} options for the relation and field mapping selectors.
func (h *ApprovalConfigHandler) ApprovalFields(c *gin.Context) {
	options, err := h.configService.ApprovalFields(c.Request.Context(), c.Query("approval_code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, response.Body(options))
}
