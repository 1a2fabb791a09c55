// Package consoletest provides an in-memory apiclient.ConfigAPI for console
// tests.
package consoletest

import (
	"context"
	"sort"
	"sync"

	"github.com/huangang/larkticket/pkg/apiclient"
	"github.com/huangang/larkticket/pkg/approval"
)

// Call records one API invocation.
type Call struct {
	Method string
	Code   string
	Config approval.Config
}

// FakeAPI stores configurations in memory. Err, when set, is returned by
// every call; Gate, when set, blocks mutating calls until it is closed.
// FieldGates blocks option lookups for a code until its channel is closed.
type FakeAPI struct {
	mu       sync.Mutex
	configs  map[string]approval.Config
	order    []string
	Options  map[string][]approval.FieldOption
	Err      error
	FieldErr error
	Gate     chan struct{}
	calls    []Call

	FieldGates map[string]chan struct{}
}

var _ apiclient.ConfigAPI = (*FakeAPI)(nil)

func NewFakeAPI(configs ...approval.Config) *FakeAPI {
	f := &FakeAPI{
		configs: map[string]approval.Config{},
		Options: map[string][]approval.FieldOption{},
	}
	for _, c := range configs {
		f.configs[c.ApprovalCode] = c
		f.order = append(f.order, c.ApprovalCode)
	}
	return f
}

func (f *FakeAPI) record(c Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.Err
}

func (f *FakeAPI) wait(ctx context.Context) {
	if f.Gate == nil {
		return
	}
	select {
	case <-f.Gate:
	case <-ctx.Done():
	}
}

// Calls returns the recorded calls, filtered by method when given.
func (f *FakeAPI) Calls(method ...string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(method) == 0 {
		return append([]Call(nil), f.calls...)
	}
	var out []Call
	for _, c := range f.calls {
		for _, m := range method {
			if c.Method == m {
				out = append(out, c)
			}
		}
	}
	return out
}

func (f *FakeAPI) Has(code string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.configs[code]
	return ok
}

func notFound(code string) error {
	return &apiclient.BusinessError{Retcode: 20001, Message: "approval_code: " + code + " does not exist!"}
}

func (f *FakeAPI) ListConfigurations(ctx context.Context) ([]approval.Summary, error) {
	if err := f.record(Call{Method: "List"}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]approval.Summary, 0, len(f.order))
	for _, code := range f.order {
		out = append(out, f.configs[code].Summary())
	}
	return out, nil
}

func (f *FakeAPI) GetConfiguration(ctx context.Context, code string) (*approval.Config, error) {
	if err := f.record(Call{Method: "Get", Code: code}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, ok := f.configs[code]
	if !ok {
		return nil, notFound(code)
	}
	cfg = cfg.Normalize()
	return &cfg, nil
}

func (f *FakeAPI) CreateConfiguration(ctx context.Context, cfg approval.Config) error {
	f.wait(ctx)
	if err := f.record(Call{Method: "Create", Code: cfg.ApprovalCode, Config: cfg}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.configs[cfg.ApprovalCode]; ok {
		return &apiclient.BusinessError{Retcode: 20002, Message: "approval_code: " + cfg.ApprovalCode + " already exists!"}
	}
	f.configs[cfg.ApprovalCode] = cfg
	f.order = append(f.order, cfg.ApprovalCode)
	return nil
}

func (f *FakeAPI) UpdateConfiguration(ctx context.Context, cfg approval.Config) error {
	f.wait(ctx)
	if err := f.record(Call{Method: "Update", Code: cfg.ApprovalCode, Config: cfg}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.configs[cfg.ApprovalCode]; !ok {
		return notFound(cfg.ApprovalCode)
	}
	f.configs[cfg.ApprovalCode] = cfg
	return nil
}

func (f *FakeAPI) DeleteConfiguration(ctx context.Context, code string) error {
	f.wait(ctx)
	if err := f.record(Call{Method: "Delete", Code: code}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.configs[code]; !ok {
		return notFound(code)
	}
	delete(f.configs, code)
	for i, c := range f.order {
		if c == code {
			f.order = append(f.order[:i:i], f.order[i+1:]...)
			break
		}
	}
	return nil
}

func (f *FakeAPI) GetApprovalFields(ctx context.Context, code string) ([]approval.FieldOption, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Method: "Fields", Code: code})
	fieldErr := f.FieldErr
	options := append([]approval.FieldOption(nil), f.Options[code]...)
	gate := f.FieldGates[code]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if fieldErr != nil {
		return nil, fieldErr
	}
	sort.Slice(options, func(i, j int) bool { return options[i].Label < options[j].Label })
	return options, nil
}

// Recorder is a router.Navigator that remembers every location.
type Recorder struct {
	mu        sync.Mutex
	locations []string
}

func (r *Recorder) Navigate(location string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locations = append(r.locations, location)
}

func (r *Recorder) Locations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.locations...)
}
