// Package form is the state container behind the approval configuration
// detail screen: create, edit and read-only modes over four independently
// toggled sections.
package form

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/huangang/larkticket/internal/console/notify"
	"github.com/huangang/larkticket/internal/console/router"
	"github.com/huangang/larkticket/pkg/apiclient"
	"github.com/huangang/larkticket/pkg/approval"
	"github.com/huangang/larkticket/pkg/logger"
)

var (
	ErrReadOnly       = errors.New("form: read-only")
	ErrSubmitInFlight = errors.New("form: submission already in flight")
	ErrUnknownSection = errors.New("form: unknown section")
	ErrRowOutOfRange  = errors.New("form: row index out of range")
)

const (
	CreateSuccess = "新增成功"
	UpdateSuccess = "更新成功"
)

type Mode int

const (
	ModeCreate Mode = iota
	ModeEdit
	ModeSearch
)

func (m Mode) String() string {
	switch m {
	case ModeEdit:
		return "edit"
	case ModeSearch:
		return "search"
	default:
		return "create"
	}
}

// ParseMode derives the mode from navigation parameters: no code is create,
// type=edit is edit, anything else with a code is read-only.
func ParseMode(approvalCode, typ string) Mode {
	if approvalCode == "" {
		return ModeCreate
	}
	if typ == router.TypeEdit {
		return ModeEdit
	}
	return ModeSearch
}

type Section string

const (
	SectionCheck    Section = "check"
	SectionExecute  Section = "execute"
	SectionField    Section = "field"
	SectionRelation Section = "relation"
)

// Sections lists the sections in display order.
var Sections = []Section{SectionCheck, SectionExecute, SectionField, SectionRelation}

// Form is safe for concurrent use. Network calls never hold the lock.
type Form struct {
	api   apiclient.ConfigAPI
	board *notify.Board
	nav   router.Navigator
	mode  Mode
	code  string

	mu         sync.Mutex
	values     approval.Config
	options    []approval.FieldOption
	errs       approval.ValidationErrors
	submitting bool
}

// New builds the form for a resolved detail route.
func New(api apiclient.ConfigAPI, board *notify.Board, nav router.Navigator, route router.Route) *Form {
	f := &Form{
		api:     api,
		board:   board,
		nav:     nav,
		mode:    ParseMode(route.ApprovalCode, route.Type),
		code:    route.ApprovalCode,
		options: []approval.FieldOption{},
	}
	f.values = approval.Config{
		ApprovalCode: route.ApprovalCode,
		Check:        approval.Callback{CallType: approval.CallTypeSync},
		Execute:      approval.Callback{CallType: approval.CallTypeSync},
		Field:        approval.FieldGroup{Data: []approval.FieldMapping{}},
		Relation:     approval.RelationGroup{Data: []approval.RelationMapping{}},
	}
	return f
}

func (f *Form) Mode() Mode {
	return f.mode
}

func (f *Form) ReadOnly() bool {
	return f.mode == ModeSearch
}

// Values returns a copy of the current, unnormalized form values.
func (f *Form) Values() approval.Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyConfig(f.values)
}

func (f *Form) Options() []approval.FieldOption {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]approval.FieldOption(nil), f.options...)
}

// Errors returns the inline messages of the last failed submit.
func (f *Form) Errors() approval.ValidationErrors {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append(approval.ValidationErrors(nil), f.errs...)
}

func (f *Form) Submitting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitting
}

// Payload is what Submit would send: the current values with closed
// sections reset.
func (f *Form) Payload() approval.Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values.Normalize()
}

// FieldURI is the derived label shown next to field row i.
func (f *Form) FieldURI(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i >= len(f.values.Field.Data) {
		return ""
	}
	return approval.FieldURI(f.values.ApprovalCode, f.values.Field.Data[i].Code)
}

// mutate applies fn under the lock unless the form is read-only.
func (f *Form) mutate(fn func(v *approval.Config) error) error {
	if f.ReadOnly() {
		return ErrReadOnly
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(&f.values)
}

// SetApprovalCode is only allowed while creating.
func (f *Form) SetApprovalCode(code string) error {
	if f.mode != ModeCreate {
		return ErrReadOnly
	}
	return f.mutate(func(v *approval.Config) error {
		v.ApprovalCode = code
		return nil
	})
}

func (f *Form) SetName(name string) error {
	return f.mutate(func(v *approval.Config) error {
		v.Name = name
		return nil
	})
}

func callbackOf(v *approval.Config, s Section) (*approval.Callback, error) {
	switch s {
	case SectionCheck:
		return &v.Check, nil
	case SectionExecute:
		return &v.Execute, nil
	}
	return nil, fmt.Errorf("%w: %q has no callback", ErrUnknownSection, s)
}

// IsOpen reports the gate of section s.
func (f *Form) IsOpen(s Section) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch s {
	case SectionCheck:
		return f.values.Check.IsOpen
	case SectionExecute:
		return f.values.Execute.IsOpen
	case SectionField:
		return f.values.Field.IsOpen
	case SectionRelation:
		return f.values.Relation.IsOpen
	}
	return false
}

// SetOpen toggles one section. Values inside the section are kept so that
// re-opening restores them; they are dropped from the payload while closed.
func (f *Form) SetOpen(s Section, open bool) error {
	return f.mutate(func(v *approval.Config) error {
		switch s {
		case SectionCheck:
			v.Check.IsOpen = open
		case SectionExecute:
			v.Execute.IsOpen = open
		case SectionField:
			v.Field.IsOpen = open
		case SectionRelation:
			v.Relation.IsOpen = open
		default:
			return fmt.Errorf("%w: %q", ErrUnknownSection, s)
		}
		return nil
	})
}

func (f *Form) SetCallType(s Section, t approval.CallType) error {
	return f.mutate(func(v *approval.Config) error {
		cb, err := callbackOf(v, s)
		if err != nil {
			return err
		}
		cb.CallType = t
		return nil
	})
}

func (f *Form) SetURL(s Section, url string) error {
	return f.mutate(func(v *approval.Config) error {
		cb, err := callbackOf(v, s)
		if err != nil {
			return err
		}
		cb.URL = url
		return nil
	})
}

func (f *Form) AddFieldRow() error {
	return f.mutate(func(v *approval.Config) error {
		v.Field.Data = appendRow(v.Field.Data, approval.FieldMapping{})
		return nil
	})
}

func (f *Form) RemoveFieldRow(i int) error {
	return f.mutate(func(v *approval.Config) error {
		rows, err := removeRow(v.Field.Data, i)
		if err != nil {
			return err
		}
		v.Field.Data = rows
		return nil
	})
}

func (f *Form) SetFieldRow(i int, row approval.FieldMapping) error {
	return f.mutate(func(v *approval.Config) error {
		rows, err := replaceRow(v.Field.Data, i, row)
		if err != nil {
			return err
		}
		v.Field.Data = rows
		return nil
	})
}

func (f *Form) AddRelationRow() error {
	return f.mutate(func(v *approval.Config) error {
		v.Relation.Data = appendRow(v.Relation.Data, approval.RelationMapping{})
		return nil
	})
}

func (f *Form) RemoveRelationRow(i int) error {
	return f.mutate(func(v *approval.Config) error {
		rows, err := removeRow(v.Relation.Data, i)
		if err != nil {
			return err
		}
		v.Relation.Data = rows
		return nil
	})
}

func (f *Form) SetRelationRow(i int, row approval.RelationMapping) error {
	return f.mutate(func(v *approval.Config) error {
		rows, err := replaceRow(v.Relation.Data, i, row)
		if err != nil {
			return err
		}
		v.Relation.Data = rows
		return nil
	})
}

// Validate evaluates the rules against the payload and records the result
// for inline display.
func (f *Form) Validate() approval.ValidationErrors {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = approval.Validate(f.values.Normalize())
	return append(approval.ValidationErrors(nil), f.errs...)
}

// Load fills the form from the server in edit and search mode and fetches
// the field options for the record's code.
func (f *Form) Load(ctx context.Context) error {
	if f.mode == ModeCreate {
		return nil
	}

	var (
		wg      sync.WaitGroup
		options []approval.FieldOption
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		options = f.fetchOptions(ctx, f.code)
	}()

	cfg, err := f.api.GetConfiguration(ctx, f.code)
	wg.Wait()

	f.mu.Lock()
	f.options = options
	if err == nil {
		f.values = copyConfig(*cfg)
	}
	f.mu.Unlock()

	if err != nil {
		f.board.Failure(err)
		return err
	}
	return nil
}

// BlurApprovalCode refetches the field options for the code currently typed.
// Options fetched for a code that has since been edited are discarded.
func (f *Form) BlurApprovalCode(ctx context.Context) {
	f.mu.Lock()
	code := strings.TrimSpace(f.values.ApprovalCode)
	f.mu.Unlock()

	options := f.fetchOptions(ctx, code)

	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.TrimSpace(f.values.ApprovalCode) != code {
		return
	}
	f.options = options
}

// fetchOptions degrades to an empty set on any failure.
func (f *Form) fetchOptions(ctx context.Context, code string) []approval.FieldOption {
	if code == "" {
		return []approval.FieldOption{}
	}
	options, err := f.api.GetApprovalFields(ctx, code)
	if err != nil {
		logger.Debug().Err(err).Str("approval_code", code).Msg("[form] field options unavailable")
		return []approval.FieldOption{}
	}
	return options
}

// Submit validates, normalizes and saves the form. Validation failures block
// the call and are returned as approval.ValidationErrors. On success the
// console returns to the list; on failure the values are kept.
func (f *Form) Submit(ctx context.Context) error {
	if f.ReadOnly() {
		return ErrReadOnly
	}

	f.mu.Lock()
	if f.submitting {
		f.mu.Unlock()
		return ErrSubmitInFlight
	}
	payload := f.values.Normalize()
	f.errs = approval.Validate(payload)
	if len(f.errs) > 0 {
		errs := append(approval.ValidationErrors(nil), f.errs...)
		f.mu.Unlock()
		return errs
	}
	f.submitting = true
	f.mu.Unlock()

	var err error
	if f.mode == ModeCreate {
		err = f.api.CreateConfiguration(ctx, payload)
	} else {
		err = f.api.UpdateConfiguration(ctx, payload)
	}

	f.mu.Lock()
	f.submitting = false
	f.mu.Unlock()

	if err != nil {
		f.board.Failure(err)
		return err
	}

	if f.mode == ModeCreate {
		f.board.Success(CreateSuccess)
	} else {
		f.board.Success(UpdateSuccess)
	}
	f.nav.Navigate(router.HomeLocation())
	return nil
}

func copyConfig(c approval.Config) approval.Config {
	out := c
	out.Field.Data = append([]approval.FieldMapping{}, c.Field.Data...)
	out.Relation.Data = append([]approval.RelationMapping{}, c.Relation.Data...)
	return out
}
