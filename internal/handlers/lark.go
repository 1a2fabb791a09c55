package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/huangang/larkticket/internal/config"
	"github.com/huangang/larkticket/internal/lark"
	"github.com/huangang/larkticket/internal/services"
	"github.com/huangang/larkticket/pkg/approval"
	"github.com/huangang/larkticket/pkg/logger"
	"github.com/huangang/larkticket/pkg/response"
)

// LarkHandler receives Lark event callbacks, check/execute results from
// external systems and external data source requests.
type LarkHandler struct {
	cfg             *config.LarkConfig
	configService   *services.ApprovalConfigService
	callbackService *services.CallbackService
	taskQueue       services.TaskQueue
}

func NewLarkHandler(cfg *config.LarkConfig, configService *services.ApprovalConfigService, callbackService *services.CallbackService, taskQueue services.TaskQueue) *LarkHandler {
	return &LarkHandler{
		cfg:             cfg,
		configService:   configService,
		callbackService: callbackService,
		taskQueue:       taskQueue,
	}
}

type encryptedRequest struct {
	Encrypt string `json:"encrypt"`
}

// decodeEvent returns the plaintext event, decrypting the {encrypt} envelope
// when present. Plaintext bodies are only accepted without an encrypt key.
func (h *LarkHandler) decodeEvent(body []byte) (*lark.EventContext, error) {
	var envelope encryptedRequest
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}

	if envelope.Encrypt == "" {
		if h.cfg.EncryptKey != "" {
			return nil, errors.New("encrypted body required")
		}
		return lark.ParseEvent(body)
	}

	if h.cfg.EncryptKey == "" {
		return nil, errors.New("encrypt key not configured")
	}
	plain, err := lark.Decrypt(envelope.Encrypt, h.cfg.EncryptKey)
	if err != nil {
		return nil, err
	}
	return lark.ParseEvent(plain)
}

// Callback is the Lark event subscription endpoint.
func (h *LarkHandler) Callback(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.BadRequest(c, "failed to read body")
		return
	}

	event, err := h.decodeEvent(body)
	if err != nil {
		logger.Warn().Err(err).Msg("[Lark] invalid callback body")
		response.BadRequest(c, err.Error())
		return
	}

	if h.cfg.VerificationToken != "" && event.VerificationToken() != h.cfg.VerificationToken {
		logger.Warn().Msg("[Lark] verification token mismatch")
		response.Unauthorized(c, "invalid verification token")
		return
	}

	if event.IsURLVerification() {
		c.JSON(http.StatusOK, gin.H{"challenge": event.Challenge})
		return
	}

	eventType := event.EventType()
	if eventType != lark.TypeApprovalTask {
		logger.Info().Str("type", eventType).Msg("[Lark] unhandled event type, ignored")
		c.JSON(http.StatusOK, gin.H{"msg": "success"})
		return
	}

	ev, err := event.Approval()
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	ev.Type = eventType

	exists, err := h.configService.Exists(c.Request.Context(), ev.ApprovalCode)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !exists {
		logger.Info().Str("approval_code", ev.ApprovalCode).Msg("[Lark] approval not configured, ignored")
		c.JSON(http.StatusOK, gin.H{"msg": "success"})
		return
	}

	logger.Info().
		Str("approval_code", ev.ApprovalCode).
		Str("instance_code", ev.InstanceCode).
		Str("task_id", ev.TaskID).
		Msg("[Lark] approval task received")

	if err := h.taskQueue.Enqueue(services.NewApprovalEventTask(ev)); err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "success"})
}

// CheckCallback accepts the result of an async check node.
func (h *LarkHandler) CheckCallback(c *gin.Context) {
	h.taskResult(c, lark.NodeCheck)
}

// ExecuteCallback accepts the result of an async execute node.
func (h *LarkHandler) ExecuteCallback(c *gin.Context) {
	h.taskResult(c, lark.NodeExecute)
}

func (h *LarkHandler) taskResult(c *gin.Context, node string) {
	var req approval.TaskResult
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, response.NewValidation(err.Error()))
		return
	}
	if _, err := lark.ParseTicket(req.TicketID); err != nil {
		response.Error(c, response.NewValidation("ticket_id: invalid ticket id"))
		return
	}

	logger.Info().
		Str("node", node).
		Str("ticket_id", req.TicketID).
		Bool("result", req.Result).
		Msg("[Lark] task result received")

	if err := h.taskQueue.Enqueue(services.NewTaskResultTask(node, req)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// ExternalField proxies a Lark external data source request to the URL
// configured for the form control.
func (h *LarkHandler) ExternalField(c *gin.Context) {
	var req services.ExternalFieldRequest
	if c.Request.ContentLength != 0 && c.Request.Body != nil && c.Request.Body != http.NoBody {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			response.Error(c, response.NewValidation(err.Error()))
			return
		}
	}
	if req.Token == "" {
		req.Token = c.Query("token")
	}
	if req.PageToken == "" {
		req.PageToken = c.Query("page_token")
	}
	if req.Query == "" {
		req.Query = c.Query("query")
	}

	data, err := h.callbackService.ExternalField(c.Request.Context(), c.Param("approval_code"), c.Param("field_code"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}
