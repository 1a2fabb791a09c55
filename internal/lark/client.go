// Package lark wraps the Lark (Feishu) open platform approval API and the
// event subscription wire format.
package lark

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/huangang/larkticket/internal/config"
	"github.com/huangang/larkticket/pkg/logger"
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkapproval "github.com/larksuite/oapi-sdk-go/v3/service/approval/v4"
)

var ErrNotConfigured = errors.New("lark: app credentials are not configured")

// ApprovalDefinition is the subset of an approval definition the service reads.
type ApprovalDefinition struct {
	ApprovalCode string
	Name         string
	Form         string
}

type InstanceTask struct {
	ID       string
	NodeName string
	Status   string
}

// ApprovalInstance is the subset of an approval instance the service reads.
type ApprovalInstance struct {
	ApprovalCode string
	InstanceCode string
	Form         string
	Tasks        []InstanceTask
}

// TaskAction approves or rejects one task on behalf of UserID.
type TaskAction struct {
	ApprovalCode string
	InstanceCode string
	TaskID       string
	UserID       string
	Comment      string
}

// ApprovalAPI is the set of Lark approval operations the service uses.
type ApprovalAPI interface {
	GetApproval(ctx context.Context, approvalCode string) (*ApprovalDefinition, error)
	GetInstance(ctx context.Context, instanceCode string) (*ApprovalInstance, error)
	ApproveTask(ctx context.Context, action TaskAction) error
	RejectTask(ctx context.Context, action TaskAction) error
	Subscribe(ctx context.Context, approvalCode string) error
	Unsubscribe(ctx context.Context, approvalCode string) error
}

// NewClient returns an SDK-backed client, or a disabled client when no app
// credentials are configured.
func NewClient(cfg *config.LarkConfig) ApprovalAPI {
	if cfg.AppID == "" || cfg.AppSecret == "" {
		logger.Warn().Msg("[Lark] app_id/app_secret not set, approval API disabled")
		return disabledClient{}
	}

	opts := []lark.ClientOptionFunc{
		lark.WithLogger(sdkLogger{}),
		lark.WithLogLevel(larkcore.LogLevelInfo),
		lark.WithReqTimeout(10 * time.Second),
	}
	if cfg.Domain != "" {
		opts = append(opts, lark.WithOpenBaseUrl(cfg.Domain))
	}

	return &Client{client: lark.NewClient(cfg.AppID, cfg.AppSecret, opts...)}
}

// Client implements ApprovalAPI with the official SDK.
type Client struct {
	client *lark.Client
}

func (c *Client) GetApproval(ctx context.Context, approvalCode string) (*ApprovalDefinition, error) {
	req := larkapproval.NewGetApprovalReqBuilder().
		ApprovalCode(approvalCode).
		Build()

	resp, err := c.client.Approval.V4.Approval.Get(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lark: get approval %s: %w", approvalCode, err)
	}
	if !resp.Success() {
		return nil, apiError("get approval", resp.Code, resp.Msg)
	}

	def := &ApprovalDefinition{ApprovalCode: approvalCode}
	if resp.Data != nil {
		def.Name = deref(resp.Data.ApprovalName)
		def.Form = deref(resp.Data.Form)
	}
	return def, nil
}

func (c *Client) GetInstance(ctx context.Context, instanceCode string) (*ApprovalInstance, error) {
	req := larkapproval.NewGetInstanceReqBuilder().
		InstanceId(instanceCode).
		Build()

	resp, err := c.client.Approval.V4.Instance.Get(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lark: get instance %s: %w", instanceCode, err)
	}
	if !resp.Success() {
		return nil, apiError("get instance", resp.Code, resp.Msg)
	}

	inst := &ApprovalInstance{InstanceCode: instanceCode}
	if resp.Data == nil {
		return inst, nil
	}
	inst.ApprovalCode = deref(resp.Data.ApprovalCode)
	if code := deref(resp.Data.InstanceCode); code != "" {
		inst.InstanceCode = code
	}
	inst.Form = deref(resp.Data.Form)
	for _, t := range resp.Data.TaskList {
		if t == nil {
			continue
		}
		inst.Tasks = append(inst.Tasks, InstanceTask{
			ID:       deref(t.Id),
			NodeName: deref(t.NodeName),
			Status:   deref(t.Status),
		})
	}
	return inst, nil
}

func (c *Client) taskBody(action TaskAction) *larkapproval.TaskApprove {
	return larkapproval.NewTaskApproveBuilder().
		ApprovalCode(action.ApprovalCode).
		InstanceCode(action.InstanceCode).
		UserId(action.UserID).
		Comment(action.Comment).
		TaskId(action.TaskID).
		Build()
}

func (c *Client) ApproveTask(ctx context.Context, action TaskAction) error {
	req := larkapproval.NewApproveTaskReqBuilder().
		UserIdType("user_id").
		TaskApprove(c.taskBody(action)).
		Build()

	resp, err := c.client.Approval.V4.Task.Approve(ctx, req)
	if err != nil {
		return fmt.Errorf("lark: approve task %s: %w", action.TaskID, err)
	}
	if !resp.Success() {
		return apiError("approve task", resp.Code, resp.Msg)
	}
	return nil
}

func (c *Client) RejectTask(ctx context.Context, action TaskAction) error {
	req := larkapproval.NewRejectTaskReqBuilder().
		UserIdType("user_id").
		TaskApprove(c.taskBody(action)).
		Build()

	resp, err := c.client.Approval.V4.Task.Reject(ctx, req)
	if err != nil {
		return fmt.Errorf("lark: reject task %s: %w", action.TaskID, err)
	}
	if !resp.Success() {
		return apiError("reject task", resp.Code, resp.Msg)
	}
	return nil
}

func (c *Client) Subscribe(ctx context.Context, approvalCode string) error {
	req := larkapproval.NewSubscribeApprovalReqBuilder().
		ApprovalCode(approvalCode).
		Build()

	resp, err := c.client.Approval.V4.Approval.Subscribe(ctx, req)
	if err != nil {
		return fmt.Errorf("lark: subscribe %s: %w", approvalCode, err)
	}
	if !resp.Success() {
		return apiError("subscribe approval", resp.Code, resp.Msg)
	}
	return nil
}

func (c *Client) Unsubscribe(ctx context.Context, approvalCode string) error {
	req := larkapproval.NewUnsubscribeApprovalReqBuilder().
		ApprovalCode(approvalCode).
		Build()

	resp, err := c.client.Approval.V4.Approval.Unsubscribe(ctx, req)
	if err != nil {
		return fmt.Errorf("lark: unsubscribe %s: %w", approvalCode, err)
	}
	if !resp.Success() {
		return apiError("unsubscribe approval", resp.Code, resp.Msg)
	}
	return nil
}

// APIError is a non-zero code returned by the open platform.
type APIError struct {
	Op   string
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lark: %s failed: code=%d msg=%s", e.Op, e.Code, e.Msg)
}

func apiError(op string, code int, msg string) error {
	return &APIError{Op: op, Code: code, Msg: msg}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// disabledClient lets the service run without Lark credentials: subscription
// changes are skipped and reads fail with ErrNotConfigured.
type disabledClient struct{}

func (disabledClient) GetApproval(context.Context, string) (*ApprovalDefinition, error) {
	return nil, ErrNotConfigured
}

func (disabledClient) GetInstance(context.Context, string) (*ApprovalInstance, error) {
	return nil, ErrNotConfigured
}

func (disabledClient) ApproveTask(context.Context, TaskAction) error { return ErrNotConfigured }
func (disabledClient) RejectTask(context.Context, TaskAction) error  { return ErrNotConfigured }

func (disabledClient) Subscribe(_ context.Context, approvalCode string) error {
	logger.Warn().Str("approval_code", approvalCode).Msg("[Lark] subscribe skipped, API disabled")
	return nil
}

func (disabledClient) Unsubscribe(_ context.Context, approvalCode string) error {
	logger.Warn().Str("approval_code", approvalCode).Msg("[Lark] unsubscribe skipped, API disabled")
	return nil
}

// sdkLogger routes SDK logs into the service logger.
type sdkLogger struct{}

func (sdkLogger) Debug(_ context.Context, args ...interface{}) {
	logger.Debug().Msg(fmt.Sprint(args...))
}

func (sdkLogger) Info(_ context.Context, args ...interface{}) {
	logger.Info().Msg(fmt.Sprint(args...))
}

func (sdkLogger) Warn(_ context.Context, args ...interface{}) {
	logger.Warn().Msg(fmt.Sprint(args...))
}

func (sdkLogger) Error(_ context.Context, args ...interface{}) {
	logger.Error().Msg(fmt.Sprint(args...))
}
