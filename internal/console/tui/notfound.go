package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/huangang/larkticket/internal/console/notify"
	"github.com/huangang/larkticket/internal/console/router"
)

type notFoundScreen struct {
	location string
	board    *notify.Board
	nav      router.Navigator
}

func newNotFoundScreen(location string, board *notify.Board, nav router.Navigator) *notFoundScreen {
	return &notFoundScreen{location: location, board: board, nav: nav}
}

func (s *notFoundScreen) Init() tea.Cmd { return nil }

func (s *notFoundScreen) Update(msg tea.Msg) (screen, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "enter", "esc", "h":
			s.nav.Navigate(router.HomeLocation())
		}
	}
	return s, nil
}

func (s *notFoundScreen) View() string {
	return warnStyle.Render("404") + " " + s.location + " 页面不存在"
}

func (s *notFoundScreen) Help() string { return "enter 返回首页" }

func (s *notFoundScreen) Board() *notify.Board { return s.board }
