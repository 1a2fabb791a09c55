package lark

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	TypeURLVerification = "url_verification"
	TypeApprovalTask    = "approval_task"

	StatusPending = "PENDING"

	NodeCheck   = "check_node"
	NodeExecute = "execute_node"

	TicketDelimiter = "|"
)

// EventHeader is the v2 event envelope header.
type EventHeader struct {
	EventID    string `json:"event_id"`
	Token      string `json:"token"`
	CreateTime string `json:"create_time"`
	EventType  string `json:"event_type"`
	TenantKey  string `json:"tenant_key"`
	AppID      string `json:"app_id"`
}

// EventContext is a decrypted event subscription body. v1 events carry
// ts/uuid/token/type at the top level; v2 events carry schema and header.
type EventContext struct {
	Challenge string          `json:"challenge"`
	Ts        string          `json:"ts"`
	UUID      string          `json:"uuid"`
	Token     string          `json:"token"`
	Type      string          `json:"type"`
	Schema    string          `json:"schema"`
	Header    *EventHeader    `json:"header"`
	Event     json.RawMessage `json:"event"`
}

// ApprovalEvent is the payload of approval events, v1 and v2 alike.
type ApprovalEvent struct {
	Type         string `json:"type"`
	AppID        string `json:"app_id"`
	TenantKey    string `json:"tenant_key"`
	ApprovalCode string `json:"approval_code"`
	InstanceCode string `json:"instance_code"`
	TaskID       string `json:"task_id"`
	UserID       string `json:"user_id"`
	OpenID       string `json:"open_id"`
	Status       string `json:"status"`
	OperateTime  string `json:"operate_time"`
}

// ParseEvent decodes a plaintext event body.
func ParseEvent(body []byte) (*EventContext, error) {
	var ctx EventContext
	if err := json.Unmarshal(body, &ctx); err != nil {
		return nil, fmt.Errorf("lark: decode event: %w", err)
	}
	return &ctx, nil
}

// IsURLVerification reports whether this is the endpoint registration challenge.
func (e *EventContext) IsURLVerification() bool {
	return e.Type == TypeURLVerification
}

// EventType resolves the event type for both envelope versions.
func (e *EventContext) EventType() string {
	if e.Schema != "" {
		if e.Header != nil {
			return e.Header.EventType
		}
		return ""
	}
	var inner struct {
		Type string `json:"type"`
	}
	if len(e.Event) > 0 {
		_ = json.Unmarshal(e.Event, &inner)
	}
	return inner.Type
}

// VerificationToken returns the token carried by either envelope version.
func (e *EventContext) VerificationToken() string {
	if e.Header != nil && e.Header.Token != "" {
		return e.Header.Token
	}
	return e.Token
}

// Approval decodes the event payload.
func (e *EventContext) Approval() (ApprovalEvent, error) {
	var ev ApprovalEvent
	if len(e.Event) == 0 {
		return ev, nil
	}
	if err := json.Unmarshal(e.Event, &ev); err != nil {
		return ev, fmt.Errorf("lark: decode approval event: %w", err)
	}
	return ev, nil
}

// Ticket identifies one approval task; external systems echo it back in
// their check and execute results.
type Ticket struct {
	ApprovalCode string
	InstanceCode string
	TaskID       string
}

func (t Ticket) String() string {
	return strings.Join([]string{t.ApprovalCode, t.InstanceCode, t.TaskID}, TicketDelimiter)
}

var ErrInvalidTicket = errors.New("lark: invalid ticket id")

// ParseTicket splits "approval_code|instance_code|task_id".
func ParseTicket(id string) (Ticket, error) {
	parts := strings.Split(id, TicketDelimiter)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Ticket{}, fmt.Errorf("%w: %q", ErrInvalidTicket, id)
	}
	return Ticket{ApprovalCode: parts[0], InstanceCode: parts[1], TaskID: parts[2]}, nil
}

// FormComponent is one control of an approval form, kept as decoded JSON so
// it can be forwarded to callbacks unchanged.
type FormComponent map[string]interface{}

func (c FormComponent) ID() string {
	s, _ := c["id"].(string)
	return s
}

func (c FormComponent) Name() string {
	s, _ := c["name"].(string)
	return s
}

// ParseForm decodes the JSON-encoded form of an approval definition or instance.
func ParseForm(form string) ([]FormComponent, error) {
	if strings.TrimSpace(form) == "" {
		return nil, nil
	}
	var components []FormComponent
	if err := json.Unmarshal([]byte(form), &components); err != nil {
		return nil, fmt.Errorf("lark: decode form: %w", err)
	}
	return components, nil
}
