package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/huangang/larkticket/internal/console/listview"
	"github.com/huangang/larkticket/internal/console/notify"
	"github.com/huangang/larkticket/internal/console/router"
)

type refreshedMsg struct{ err error }

type deletedMsg struct{ err error }

type listScreen struct {
	mount   int
	ctrl    *listview.Controller
	board   *notify.Board
	table   table.Model
	spinner spinner.Model
	loading bool
}

func newListScreen(mount int, ctrl *listview.Controller, board *notify.Board) *listScreen {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "审批编码", Width: 36},
			{Title: "审批名称", Width: 32},
		}),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	t.SetStyles(tableStyles())

	return &listScreen{
		mount:   mount,
		ctrl:    ctrl,
		board:   board,
		table:   t,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

func (s *listScreen) Init() tea.Cmd {
	return s.refresh()
}

func (s *listScreen) refresh() tea.Cmd {
	s.loading = true
	ctrl := s.ctrl
	return tea.Batch(s.spinner.Tick, scoped(s.mount, func() tea.Msg {
		return refreshedMsg{err: ctrl.Refresh(context.Background())}
	}))
}

func (s *listScreen) confirmDelete() tea.Cmd {
	s.loading = true
	ctrl := s.ctrl
	return tea.Batch(s.spinner.Tick, scoped(s.mount, func() tea.Msg {
		return deletedMsg{err: ctrl.ConfirmDelete(context.Background())}
	}))
}

func (s *listScreen) syncRows() {
	items := s.ctrl.Items()
	rows := make([]table.Row, 0, len(items))
	for _, it := range items {
		rows = append(rows, table.Row{it.ApprovalCode, it.Name})
	}
	s.table.SetRows(rows)
	if n := len(rows); n > 0 && s.table.Cursor() >= n {
		s.table.SetCursor(n - 1)
	}
}

func (s *listScreen) selected() string {
	row := s.table.SelectedRow()
	if len(row) == 0 {
		return ""
	}
	return row[0]
}

func (s *listScreen) Update(msg tea.Msg) (screen, tea.Cmd) {
	switch m := msg.(type) {
	case refreshedMsg:
		s.loading = false
		s.syncRows()
		return s, nil
	case deletedMsg:
		// A successful delete already re-fetched the list.
		s.loading = false
		s.syncRows()
		return s, nil
	case spinner.TickMsg:
		if !s.loading {
			return s, nil
		}
		var cmd tea.Cmd
		s.spinner, cmd = s.spinner.Update(m)
		return s, cmd
	case tea.WindowSizeMsg:
		s.table.SetHeight(max(m.Height-10, 3))
		return s, nil
	case tea.KeyMsg:
		return s.handleKey(m)
	}
	return s, nil
}

func (s *listScreen) handleKey(k tea.KeyMsg) (screen, tea.Cmd) {
	if s.loading {
		return s, nil
	}

	if s.ctrl.PendingDelete() != "" {
		switch k.String() {
		case "y", "enter":
			return s, s.confirmDelete()
		case "n", "esc":
			s.ctrl.CancelDelete()
		}
		return s, nil
	}

	switch k.String() {
	case "n":
		s.ctrl.Create()
		return s, nil
	case "r":
		return s, s.refresh()
	case "enter", "e", "v", "d":
		code := s.selected()
		if code == "" {
			return s, nil
		}
		switch k.String() {
		case "v":
			s.ctrl.Open(code, router.TypeSearch)
		case "d":
			s.ctrl.RequestDelete(code)
		default:
			s.ctrl.Open(code, router.TypeEdit)
		}
		return s, nil
	}

	var cmd tea.Cmd
	s.table, cmd = s.table.Update(k)
	return s, cmd
}

func (s *listScreen) View() string {
	if s.loading {
		return s.spinner.View() + " 加载中..."
	}
	if len(s.table.Rows()) == 0 {
		return dimStyle.Render("暂无数据")
	}
	view := s.table.View()
	if code := s.ctrl.PendingDelete(); code != "" {
		view += "\n" + warnStyle.Render(fmt.Sprintf("确认删除 %s ? (y/n)", code))
	}
	return view
}

func (s *listScreen) Help() string {
	return "n 新增 • enter/e 编辑 • v 查看 • d 删除 • r 刷新"
}

func (s *listScreen) Board() *notify.Board { return s.board }
