// Package approval holds the approval configuration data model shared by the
// API server and the admin console.
package approval

// CallType selects how a check or execute callback is invoked.
type CallType string

const (
	CallTypeSync  CallType = "sync"
	CallTypeAsync CallType = "async"
)

// Valid reports whether t is a known call type.
func (t CallType) Valid() bool {
	return t == CallTypeSync || t == CallTypeAsync
}

// Callback describes an external endpoint invoked at the check or execute node.
type Callback struct {
	IsOpen   bool     `json:"is_open"`
	CallType CallType `json:"call_type"`
	URL      string   `json:"url"`
}

// FieldMapping binds an approval form control to an external data source.
type FieldMapping struct {
	Code string `json:"code"`
	URL  string `json:"url"`
}

type FieldGroup struct {
	IsOpen bool           `json:"is_open"`
	Data   []FieldMapping `json:"data"`
}

// RelationMapping maps an approval form control to a key in the metadata
// sent to check and execute callbacks.
type RelationMapping struct {
	Code   string `json:"code"`
	APIKey string `json:"api_key"`
}

type RelationGroup struct {
	IsOpen bool              `json:"is_open"`
	Data   []RelationMapping `json:"data"`
}

// Config is the full configuration attached to one approval definition.
type Config struct {
	ApprovalCode string        `json:"approval_code"`
	Name         string        `json:"name"`
	Check        Callback      `json:"check"`
	Execute      Callback      `json:"execute"`
	Field        FieldGroup    `json:"field"`
	Relation     RelationGroup `json:"relation"`
}

// Summary is the list projection of a Config.
type Summary struct {
	ApprovalCode string `json:"approval_code"`
	Name         string `json:"name"`
}

// FieldOption is one selectable form control of an approval definition.
type FieldOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// TaskResult is the outcome an external system reports for a ticket.
type TaskResult struct {
	TicketID string `json:"ticket_id"`
	Result   bool   `json:"result"`
	Msg      string `json:"msg"`
	Error    string `json:"error"`
}

// FieldURI is the address of an external field source relative to the
// Lark field proxy endpoint.
func FieldURI(approvalCode, code string) string {
	return approvalCode + "/" + code
}

// Normalize returns a copy of c with closed sections reset: closed callbacks
// become sync with an empty url, closed or empty mapping groups carry an
// empty, non-nil data slice.
func (c Config) Normalize() Config {
	out := c
	out.Check = normalizeCallback(c.Check)
	out.Execute = normalizeCallback(c.Execute)

	if !c.Field.IsOpen || len(c.Field.Data) == 0 {
		out.Field.Data = []FieldMapping{}
	} else {
		out.Field.Data = append([]FieldMapping(nil), c.Field.Data...)
	}
	if !c.Relation.IsOpen || len(c.Relation.Data) == 0 {
		out.Relation.Data = []RelationMapping{}
	} else {
		out.Relation.Data = append([]RelationMapping(nil), c.Relation.Data...)
	}
	return out
}

func normalizeCallback(cb Callback) Callback {
	if cb.IsOpen {
		return cb
	}
	return Callback{IsOpen: false, CallType: CallTypeSync, URL: ""}
}

// Summary returns the list projection of c.
func (c Config) Summary() Summary {
	return Summary{ApprovalCode: c.ApprovalCode, Name: c.Name}
}
