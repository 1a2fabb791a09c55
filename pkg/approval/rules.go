package approval

import (
	"fmt"
	"strings"
)

// Rule is one declarative validation constraint over a Config.
// A rule fails when it applies to the record and the value is blank, or
// when Allowed is set and the value is not one of the allowed values.
type Rule struct {
	Path     string
	Applies  func(c *Config) bool
	Value    func(c *Config) string
	Allowed  []string
	Required bool
}

// FieldError is a validation failure bound to a field path.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationErrors lists every failed rule in rule order.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

// For returns the message for path, or "" when the field is valid.
func (v ValidationErrors) For(path string) string {
	for _, e := range v {
		if e.Path == path {
			return e.Message
		}
	}
	return ""
}

func always(*Config) bool { return true }

func callbackRules(section string, cb func(c *Config) *Callback) []Rule {
	open := func(c *Config) bool { return cb(c).IsOpen }
	return []Rule{
		{
			Path:     section + ".call_type",
			Applies:  open,
			Value:    func(c *Config) string { return string(cb(c).CallType) },
			Allowed:  []string{string(CallTypeSync), string(CallTypeAsync)},
			Required: true,
		},
		{
			Path:     section + ".url",
			Applies:  open,
			Value:    func(c *Config) string { return cb(c).URL },
			Required: true,
		},
	}
}

// Rules returns the rule set for c. Row rules are generated for the rows
// currently present in the field and relation groups.
func Rules(c *Config) []Rule {
	rules := []Rule{
		{Path: "approval_code", Applies: always, Value: func(c *Config) string { return c.ApprovalCode }, Required: true},
		{Path: "name", Applies: always, Value: func(c *Config) string { return c.Name }, Required: true},
	}
	rules = append(rules, callbackRules("check", func(c *Config) *Callback { return &c.Check })...)
	rules = append(rules, callbackRules("execute", func(c *Config) *Callback { return &c.Execute })...)

	fieldOpen := func(c *Config) bool { return c.Field.IsOpen }
	for i := range c.Field.Data {
		i := i
		rules = append(rules,
			Rule{
				Path:     fmt.Sprintf("field.data[%d].code", i),
				Applies:  fieldOpen,
				Value:    func(c *Config) string { return c.Field.Data[i].Code },
				Required: true,
			},
			Rule{
				Path:     fmt.Sprintf("field.data[%d].url", i),
				Applies:  fieldOpen,
				Value:    func(c *Config) string { return c.Field.Data[i].URL },
				Required: true,
			},
		)
	}

	relationOpen := func(c *Config) bool { return c.Relation.IsOpen }
	for i := range c.Relation.Data {
		i := i
		rules = append(rules,
			Rule{
				Path:     fmt.Sprintf("relation.data[%d].code", i),
				Applies:  relationOpen,
				Value:    func(c *Config) string { return c.Relation.Data[i].Code },
				Required: true,
			},
			Rule{
				Path:     fmt.Sprintf("relation.data[%d].api_key", i),
				Applies:  relationOpen,
				Value:    func(c *Config) string { return c.Relation.Data[i].APIKey },
				Required: true,
			},
		)
	}
	return rules
}

// Validate evaluates the rule set against c and returns nil when c is valid.
func Validate(c Config) ValidationErrors {
	var errs ValidationErrors
	for _, r := range Rules(&c) {
		if !r.Applies(&c) {
			continue
		}
		v := strings.TrimSpace(r.Value(&c))
		if v == "" {
			if r.Required {
				errs = append(errs, FieldError{Path: r.Path, Message: r.Path + " is required"})
			}
			continue
		}
		if len(r.Allowed) > 0 && !contains(r.Allowed, v) {
			errs = append(errs, FieldError{
				Path:    r.Path,
				Message: fmt.Sprintf("%s must be one of %s", r.Path, strings.Join(r.Allowed, ", ")),
			})
		}
	}
	return errs
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
