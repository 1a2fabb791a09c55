// Package listview holds the state of the configuration list screen.
package listview

import (
	"context"
	"errors"
	"sync"

	"github.com/huangang/larkticket/internal/console/notify"
	"github.com/huangang/larkticket/internal/console/router"
	"github.com/huangang/larkticket/pkg/apiclient"
	"github.com/huangang/larkticket/pkg/approval"
	"github.com/huangang/larkticket/pkg/logger"
)

// DeleteSuccess is posted after a confirmed delete.
const DeleteSuccess = "删除成功"

var ErrNoPendingDelete = errors.New("listview: no delete awaiting confirmation")

// Controller lists configurations and drives the per-row actions.
type Controller struct {
	api   apiclient.ConfigAPI
	board *notify.Board
	nav   router.Navigator

	mu            sync.Mutex
	items         []approval.Summary
	loading       bool
	pendingDelete string
}

func New(api apiclient.ConfigAPI, board *notify.Board, nav router.Navigator) *Controller {
	return &Controller{
		api:   api,
		board: board,
		nav:   nav,
		items: []approval.Summary{},
	}
}

// Refresh reloads the list. On failure the previous items stay on screen
// and a notice is posted.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.loading = true
	c.mu.Unlock()

	items, err := c.api.ListConfigurations(ctx)

	c.mu.Lock()
	c.loading = false
	if err == nil {
		c.items = append([]approval.Summary{}, items...)
	}
	c.mu.Unlock()

	if err != nil {
		logger.Warn().Err(err).Msg("[listview] list configurations failed")
		c.board.Failure(err)
		return err
	}
	return nil
}

// Items returns the rows in server order.
func (c *Controller) Items() []approval.Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]approval.Summary{}, c.items...)
}

func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// PendingDelete is the code awaiting confirmation, or "".
func (c *Controller) PendingDelete() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingDelete
}

// Create opens the empty detail form.
func (c *Controller) Create() {
	c.nav.Navigate(router.DetailLocation("", ""))
}

// Open shows one configuration, editable when typ is router.TypeEdit.
func (c *Controller) Open(approvalCode, typ string) {
	c.nav.Navigate(router.DetailLocation(approvalCode, typ))
}

// RequestDelete asks for confirmation before deleting approvalCode.
func (c *Controller) RequestDelete(approvalCode string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingDelete = approvalCode
}

func (c *Controller) CancelDelete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingDelete = ""
}

// ConfirmDelete deletes the pending configuration and re-fetches the list.
// A failed delete leaves the list untouched.
func (c *Controller) ConfirmDelete(ctx context.Context) error {
	c.mu.Lock()
	code := c.pendingDelete
	c.pendingDelete = ""
	c.mu.Unlock()

	if code == "" {
		return ErrNoPendingDelete
	}

	if err := c.api.DeleteConfiguration(ctx, code); err != nil {
		logger.Warn().Err(err).Str("approval_code", code).Msg("[listview] delete failed")
		c.board.Failure(err)
		return err
	}

	logger.Info().Str("approval_code", code).Msg("[listview] configuration deleted")
	c.board.Success(DeleteSuccess)
	return c.Refresh(ctx)
}
