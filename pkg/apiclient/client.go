package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/huangang/larkticket/pkg/approval"
	"github.com/huangang/larkticket/pkg/response"
)

var (
	ErrNotFound      = errors.New("apiclient: not found")
	ErrAlreadyExists = errors.New("apiclient: already exists")
	ErrValidation    = errors.New("apiclient: validation failed")
)

// Envelope is the response wrapper of every web API call.
type Envelope struct {
	Retcode int             `json:"retcode"`
	Msg     string          `json:"msg"`
	Resp    json.RawMessage `json:"resp"`
	Error   string          `json:"error"`
}

// BusinessError is an envelope with a non-zero retcode.
type BusinessError struct {
	Retcode int
	Msg     string
	Message string
}

func (e *BusinessError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with retcode %d", e.Retcode)
}

func (e *BusinessError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Retcode == response.RetcodeNotFound
	case ErrAlreadyExists:
		return e.Retcode == response.RetcodeAlreadyExists
	case ErrValidation:
		return e.Retcode == response.RetcodeValidation
	}
	return false
}

// ConfigAPI is the approval configuration surface used by the console.
type ConfigAPI interface {
	ListConfigurations(ctx context.Context) ([]approval.Summary, error)
	GetConfiguration(ctx context.Context, approvalCode string) (*approval.Config, error)
	CreateConfiguration(ctx context.Context, cfg approval.Config) error
	UpdateConfiguration(ctx context.Context, cfg approval.Config) error
	DeleteConfiguration(ctx context.Context, approvalCode string) error
	GetApprovalFields(ctx context.Context, approvalCode string) ([]approval.FieldOption, error)
}

// Client implements ConfigAPI over HTTP.
type Client struct {
	transport *Transport
}

var _ ConfigAPI = (*Client)(nil)

type Option func(*options)

type options struct {
	doer  Doer
	token string
}

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(doer Doer) Option {
	return func(o *options) { o.doer = doer }
}

// WithToken sends "Authorization: Bearer <token>" with every call.
func WithToken(token string) Option {
	return func(o *options) { o.token = token }
}

func New(baseURL string, opts ...Option) *Client {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	t := NewTransport(baseURL, o.doer)
	if o.token != "" {
		t.SetHeader("Authorization", "Bearer "+o.token)
	}
	return &Client{transport: t}
}

// call performs the request and decodes resp into out when out is non-nil.
func (c *Client) call(ctx context.Context, path string, req Request, out interface{}) error {
	body, err := c.transport.Do(ctx, path, req)
	if err != nil {
		return err
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("apiclient: decode envelope: %w", err)
	}
	if env.Retcode != response.RetcodeSuccess {
		return &BusinessError{Retcode: env.Retcode, Msg: env.Msg, Message: env.Error}
	}
	if out == nil || len(env.Resp) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Resp, out); err != nil {
		return fmt.Errorf("apiclient: decode resp: %w", err)
	}
	return nil
}

func (c *Client) ListConfigurations(ctx context.Context) ([]approval.Summary, error) {
	var resp struct {
		Body []approval.Summary `json:"body"`
	}
	if err := c.call(ctx, "/configs", Request{Method: http.MethodGet}, &resp); err != nil {
		return nil, err
	}
	if resp.Body == nil {
		resp.Body = []approval.Summary{}
	}
	return resp.Body, nil
}

func (c *Client) GetConfiguration(ctx context.Context, approvalCode string) (*approval.Config, error) {
	var cfg approval.Config
	if err := c.call(ctx, "/config/"+url.PathEscape(approvalCode), Request{Method: http.MethodGet}, &cfg); err != nil {
		return nil, err
	}
	cfg = cfg.Normalize()
	return &cfg, nil
}

func (c *Client) CreateConfiguration(ctx context.Context, cfg approval.Config) error {
	return c.call(ctx, "/config", Request{Method: http.MethodPost, Data: cfg}, nil)
}

func (c *Client) UpdateConfiguration(ctx context.Context, cfg approval.Config) error {
	return c.call(ctx, "/config", Request{Method: http.MethodPut, Data: cfg}, nil)
}

func (c *Client) DeleteConfiguration(ctx context.Context, approvalCode string) error {
	return c.call(ctx, "/config/"+url.PathEscape(approvalCode), Request{Method: http.MethodDelete}, nil)
}

func (c *Client) GetApprovalFields(ctx context.Context, approvalCode string) ([]approval.FieldOption, error) {
	var resp struct {
		Body []approval.FieldOption `json:"body"`
	}
	req := Request{Method: http.MethodGet, Data: map[string]string{"approval_code": approvalCode}}
	if err := c.call(ctx, "/lark/approval/fields", req, &resp); err != nil {
		return nil, err
	}
	if resp.Body == nil {
		resp.Body = []approval.FieldOption{}
	}
	return resp.Body, nil
}
