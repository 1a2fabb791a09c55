// Package tui renders the approval configuration console in the terminal.
package tui

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/huangang/larkticket/internal/console/form"
	"github.com/huangang/larkticket/internal/console/listview"
	"github.com/huangang/larkticket/internal/console/notify"
	"github.com/huangang/larkticket/internal/console/router"
	"github.com/huangang/larkticket/pkg/apiclient"
	"github.com/huangang/larkticket/pkg/logger"
)

// screen is one mounted view. Its board lives exactly as long as the screen.
type screen interface {
	Init() tea.Cmd
	Update(msg tea.Msg) (screen, tea.Cmd)
	View() string
	Help() string
	Board() *notify.Board
}

// scopedMsg carries the result of a command started by a particular mount,
// so results arriving after navigation are dropped.
type scopedMsg struct {
	mount int
	msg   tea.Msg
}

func scoped(mount int, fn func() tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return scopedMsg{mount: mount, msg: fn()}
	}
}

type tickMsg time.Time

// navigator records the last requested location. Controllers call it from
// command goroutines; the app applies it after the resulting message.
type navigator struct {
	mu      sync.Mutex
	pending string
	set     bool
}

func (n *navigator) Navigate(location string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending = location
	n.set = true
}

func (n *navigator) take() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	loc, ok := n.pending, n.set
	n.pending, n.set = "", false
	return loc, ok
}

// App is the root bubbletea model.
type App struct {
	api       apiclient.ConfigAPI
	nav       *navigator
	ttl       time.Duration
	tickEvery time.Duration

	mount  int
	route  router.Route
	screen screen
	width  int
	height int
}

var _ tea.Model = (*App)(nil)

// New builds the console positioned at location, e.g. "/home".
func New(api apiclient.ConfigAPI, location string) *App {
	a := &App{
		api:       api,
		nav:       &navigator{},
		ttl:       notify.DefaultTTL,
		tickEvery: time.Second,
	}
	a.build(location)
	return a
}

// Location is the location of the mounted screen.
func (a *App) Location() string {
	return a.route.Location
}

func (a *App) build(location string) {
	board := notify.NewBoard(a.ttl)
	if a.screen != nil {
		old := a.screen.Board()
		board.Adopt(old.Active())
		old.Close()
	}

	a.mount++
	a.route = router.Resolve(location)
	switch a.route.View {
	case router.ViewList:
		a.screen = newListScreen(a.mount, listview.New(a.api, board, a.nav), board)
	case router.ViewDetail:
		a.screen = newDetailScreen(a.mount, form.New(a.api, board, a.nav, a.route), board, a.nav)
	default:
		a.screen = newNotFoundScreen(a.route.Location, board, a.nav)
	}
	logger.Debug().Str("location", location).Str("view", a.route.View.String()).Msg("[console] mount")
}

func (a *App) navigate(location string) tea.Cmd {
	a.build(location)
	cmd := a.screen.Init()
	if a.width > 0 {
		var sized tea.Cmd
		a.screen, sized = a.screen.Update(tea.WindowSizeMsg{Width: a.width, Height: a.height})
		cmd = tea.Batch(cmd, sized)
	}
	return cmd
}

func (a *App) tick() tea.Cmd {
	if a.tickEvery <= 0 {
		return nil
	}
	return tea.Tick(a.tickEvery, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.screen.Init(), a.tick())
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.KeyMsg:
		if m.String() == "ctrl+c" {
			a.screen.Board().Close()
			return a, tea.Quit
		}
	case tea.WindowSizeMsg:
		a.width, a.height = m.Width, m.Height
	case tickMsg:
		// Re-render so expired notices disappear.
		return a, a.tick()
	case scopedMsg:
		if m.mount != a.mount {
			return a, nil
		}
		msg = m.msg
	}

	var cmd tea.Cmd
	a.screen, cmd = a.screen.Update(msg)
	if loc, ok := a.nav.take(); ok {
		return a, tea.Batch(cmd, a.navigate(loc))
	}
	return a, cmd
}

func (a *App) View() string {
	header := titleStyle.Render("审批配置管理") + "  " + dimStyle.Render(a.route.Location)
	parts := []string{header, "", a.screen.View()}
	if notices := renderNotices(a.screen.Board().Active()); notices != "" {
		parts = append(parts, "", notices)
	}
	parts = append(parts, helpStyle.Render(a.screen.Help()+" • ctrl+c 退出"))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
