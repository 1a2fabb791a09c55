package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/huangang/larkticket/internal/config"
	"github.com/huangang/larkticket/internal/lark"
	"github.com/huangang/larkticket/pkg/approval"
	"github.com/huangang/larkticket/pkg/logger"
)

// Default approval comments used when an external system leaves msg/error empty.
const (
	CheckSuccessComment   = "检查成功。"
	CheckFailureComment   = "检查失败。"
	ExecuteSuccessComment = "执行成功。"
	ExecuteFailureComment = "执行失败。"
)

// ExternalFieldRequest is the body Lark sends to an external data source.
type ExternalFieldRequest struct {
	LinkageParams map[string]interface{} `json:"linkage_params"`
	Token         string                 `json:"token"`
	PageToken     string                 `json:"page_token"`
	Query         string                 `json:"query"`
}

// CallbackService drives approval tasks through the check and execute nodes.
type CallbackService struct {
	configs    *ApprovalConfigService
	lark       lark.ApprovalAPI
	cfg        *config.LarkConfig
	httpClient *http.Client
}

func NewCallbackService(configs *ApprovalConfigService, api lark.ApprovalAPI, cfg *config.LarkConfig) *CallbackService {
	timeout := time.Duration(cfg.CallbackTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &CallbackService{
		configs:    configs,
		lark:       api,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ProcessTask executes one queued Lark task.
func (s *CallbackService) ProcessTask(ctx context.Context, task *LarkTask) error {
	switch task.Type {
	case TaskTypeApprovalEvent:
		if task.Event == nil {
			return fmt.Errorf("task %s without event", task.Type)
		}
		return s.HandleApprovalTask(ctx, *task.Event)
	case TaskTypeTaskResult:
		if task.Result == nil {
			return fmt.Errorf("task %s without result", task.Type)
		}
		return s.ApplyResult(ctx, task.Node, *task.Result)
	default:
		logger.Warn().Str("type", task.Type).Msg("[Callback] unknown task type, dropped")
		return nil
	}
}

// HandleApprovalTask reacts to an approval_task event addressed to the
// assistant user: the pending check or execute node is either approved
// directly, resolved through a sync callback, or handed to an async callback.
func (s *CallbackService) HandleApprovalTask(ctx context.Context, ev lark.ApprovalEvent) error {
	if ev.UserID != s.cfg.AssistantUserID || ev.Status != lark.StatusPending {
		logger.Debug().
			Str("instance_code", ev.InstanceCode).
			Str("user_id", ev.UserID).
			Str("status", ev.Status).
			Msg("[Callback] event not addressed to the assistant, ignored")
		return nil
	}

	inst, err := s.lark.GetInstance(ctx, ev.InstanceCode)
	if err != nil {
		return err
	}
	approvalCode := inst.ApprovalCode
	if approvalCode == "" {
		approvalCode = ev.ApprovalCode
	}

	cfg, err := s.configs.Get(ctx, approvalCode)
	if err != nil {
		return err
	}

	if len(inst.Tasks) == 0 {
		return fmt.Errorf("instance %s has no tasks", inst.InstanceCode)
	}
	task := inst.Tasks[len(inst.Tasks)-1]

	ticket := lark.Ticket{ApprovalCode: approvalCode, InstanceCode: inst.InstanceCode, TaskID: task.ID}

	metadata, err := buildMetadata(cfg.Relation, inst.Form)
	if err != nil {
		return err
	}
	metadata["ticket_id"] = ticket.String()

	if task.Status != lark.StatusPending {
		return nil
	}

	switch task.NodeName {
	case lark.NodeCheck:
		return s.runNode(ctx, lark.NodeCheck, cfg.Check, ticket, metadata)
	case lark.NodeExecute:
		return s.runNode(ctx, lark.NodeExecute, cfg.Execute, ticket, metadata)
	}
	return nil
}

// buildMetadata maps related form components to their api keys.
func buildMetadata(rel approval.RelationGroup, form string) (map[string]interface{}, error) {
	metadata := map[string]interface{}{}
	if !rel.IsOpen {
		return metadata, nil
	}

	keys := make(map[string]string, len(rel.Data))
	for _, r := range rel.Data {
		keys[r.Code] = r.APIKey
	}

	components, err := lark.ParseForm(form)
	if err != nil {
		return nil, err
	}
	for _, c := range components {
		if key, ok := keys[c.ID()]; ok {
			metadata[key] = c
		}
	}
	return metadata, nil
}

func (s *CallbackService) runNode(ctx context.Context, node string, cb approval.Callback, ticket lark.Ticket, metadata map[string]interface{}) error {
	log := logger.Info().Str("node", node).Str("ticket_id", ticket.String())

	if !cb.IsOpen {
		log.Msg("[Callback] node callback closed, approving")
		return s.ApplyResult(ctx, node, approval.TaskResult{TicketID: ticket.String(), Result: true})
	}

	switch cb.CallType {
	case approval.CallTypeAsync:
		log.Str("url", cb.URL).Msg("[Callback] async callback")
		_, err := s.postJSON(ctx, cb.URL, metadata)
		return err
	default:
		log.Str("url", cb.URL).Msg("[Callback] sync callback")
		body, err := s.postJSON(ctx, cb.URL, metadata)
		if err != nil {
			return err
		}
		var result approval.TaskResult
		if err := json.Unmarshal(body, &result); err != nil {
			return fmt.Errorf("decode %s callback reply: %w", node, err)
		}
		if result.TicketID == "" {
			result.TicketID = ticket.String()
		}
		return s.ApplyResult(ctx, node, result)
	}
}

// ApplyResult approves or rejects the ticket's task according to result.
func (s *CallbackService) ApplyResult(ctx context.Context, node string, result approval.TaskResult) error {
	ticket, err := lark.ParseTicket(result.TicketID)
	if err != nil {
		return err
	}

	success, failure := CheckSuccessComment, CheckFailureComment
	if node == lark.NodeExecute {
		success, failure = ExecuteSuccessComment, ExecuteFailureComment
	}

	action := lark.TaskAction{
		ApprovalCode: ticket.ApprovalCode,
		InstanceCode: ticket.InstanceCode,
		TaskID:       ticket.TaskID,
		UserID:       s.cfg.AssistantUserID,
	}

	if result.Result {
		action.Comment = firstNonEmpty(result.Msg, success)
		logger.Info().Str("ticket_id", result.TicketID).Str("node", node).Msg("[Callback] approving task")
		return s.lark.ApproveTask(ctx, action)
	}

	action.Comment = firstNonEmpty(result.Error, failure)
	logger.Info().Str("ticket_id", result.TicketID).Str("node", node).Msg("[Callback] rejecting task")
	return s.lark.RejectTask(ctx, action)
}

// ExternalField forwards a Lark external data source request to the URL
// configured for the form control and returns the upstream JSON unchanged.
func (s *CallbackService) ExternalField(ctx context.Context, approvalCode, fieldCode string, req ExternalFieldRequest) (json.RawMessage, error) {
	url, err := s.configs.FieldURL(ctx, approvalCode, fieldCode)
	if err != nil {
		return nil, err
	}
	if req.LinkageParams == nil {
		req.LinkageParams = map[string]interface{}{}
	}

	body, err := s.postJSON(ctx, url, req)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("field source %s returned invalid json", url)
	}
	return json.RawMessage(body), nil
}

// postJSON sends payload and requires an HTTP 200 reply.
func (s *CallbackService) postJSON(ctx context.Context, url string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	logger.Info().
		Str("url", url).
		Int("status", resp.StatusCode).
		Int("payload_size", len(body)).
		Msg("[Callback] POST")

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("callback %s returned status %d: %s", url, resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
