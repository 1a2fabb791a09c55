package tui

import (
	"testing"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/huangang/larkticket/internal/console/consoletest"
	"github.com/huangang/larkticket/pkg/approval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T, api *consoletest.FakeAPI, location string) *App {
	t.Helper()
	a := New(api, location)
	a.tickEvery = 0
	run(t, a, a.Init())
	return a
}

// run executes cmd and feeds the resulting messages back into the app
// until no command is left. Spinner ticks are dropped.
func run(t *testing.T, a *App, cmd tea.Cmd) {
	t.Helper()
	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		require.Less(t, steps, 200, "command loop does not settle")
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		switch msg := c().(type) {
		case nil, spinner.TickMsg, tickMsg:
		case tea.BatchMsg:
			queue = append(queue, msg...)
		default:
			_, next := a.Update(msg)
			queue = append(queue, next)
		}
	}
}

func press(t *testing.T, a *App, k tea.KeyMsg) {
	t.Helper()
	_, cmd := a.Update(k)
	run(t, a, cmd)
}

func typeText(t *testing.T, a *App, s string) {
	t.Helper()
	press(t, a, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

var (
	keyUp    = tea.KeyMsg{Type: tea.KeyUp}
	keyDown  = tea.KeyMsg{Type: tea.KeyDown}
	keyEnter = tea.KeyMsg{Type: tea.KeyEnter}
	keySpace = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	keySave  = tea.KeyMsg{Type: tea.KeyCtrlS}
	keyAdd   = tea.KeyMsg{Type: tea.KeyCtrlN}
	keyDel   = tea.KeyMsg{Type: tea.KeyCtrlX}
	keyPick  = tea.KeyMsg{Type: tea.KeyCtrlO}
)

func seeded() *consoletest.FakeAPI {
	return consoletest.NewFakeAPI(
		approval.Config{
			ApprovalCode: "A",
			Name:         "Name A",
			Check:        approval.Callback{IsOpen: true, CallType: approval.CallTypeSync, URL: "https://check"},
		},
		approval.Config{ApprovalCode: "B", Name: "Name B"},
	)
}

func detail(t *testing.T, a *App) *detailScreen {
	t.Helper()
	d, ok := a.screen.(*detailScreen)
	require.True(t, ok, "mounted screen is %T", a.screen)
	return d
}

func TestApp_ListLoads(t *testing.T) {
	a := newTestApp(t, seeded(), "/home")

	view := a.View()
	assert.Contains(t, view, "Name A")
	assert.Contains(t, view, "Name B")
	assert.Equal(t, "/home", a.Location())
}

func TestApp_RootShowsList(t *testing.T) {
	a := newTestApp(t, seeded(), "/")
	_, ok := a.screen.(*listScreen)
	assert.True(t, ok)
}

func TestApp_CreateFlow(t *testing.T) {
	api := seeded()
	api.Options["NEW"] = []approval.FieldOption{{Label: "Amount", Value: "widget1"}}
	a := newTestApp(t, api, "/home")

	typeText(t, a, "n")
	require.Equal(t, "/detail", a.Location())
	assert.Contains(t, a.View(), "新增配置")

	typeText(t, a, "NEW")
	press(t, a, keyDown)
	assert.Len(t, api.Calls("Fields"), 1, "leaving the code field loads options")
	typeText(t, a, "Test")

	press(t, a, keySave)

	require.Equal(t, "/home", a.Location())
	require.True(t, api.Has("NEW"))
	created := api.Calls("Create")[0].Config
	assert.Equal(t, "Test", created.Name)
	assert.Equal(t, approval.Callback{CallType: approval.CallTypeSync}, created.Check)

	view := a.View()
	assert.Contains(t, view, "NEW")
	assert.Contains(t, view, "新增成功", "success notice survives navigation")
}

func TestApp_CreateValidation(t *testing.T) {
	api := seeded()
	a := newTestApp(t, api, "/detail")

	press(t, a, keySave)

	assert.Equal(t, "/detail", a.Location())
	assert.Empty(t, api.Calls("Create"))
	view := a.View()
	assert.Contains(t, view, "approval_code is required")
	assert.Contains(t, view, "name is required")
	assert.Contains(t, view, "表单校验失败：2 项")
}

func TestApp_DeleteWithConfirmation(t *testing.T) {
	api := seeded()
	a := newTestApp(t, api, "/home")

	typeText(t, a, "d")
	assert.Contains(t, a.View(), "确认删除 A")
	assert.True(t, api.Has("A"))

	typeText(t, a, "y")

	assert.False(t, api.Has("A"))
	view := a.View()
	assert.Contains(t, view, "删除成功")
	assert.Contains(t, view, "Name B")
	assert.NotContains(t, view, "Name A")
}

func TestApp_DeleteCancelled(t *testing.T) {
	api := seeded()
	a := newTestApp(t, api, "/home")

	typeText(t, a, "d")
	typeText(t, a, "n")

	assert.True(t, api.Has("A"))
	assert.Empty(t, api.Calls("Delete"))
	assert.Equal(t, "/home", a.Location(), "n cancels instead of creating")
}

func TestApp_EditFlow(t *testing.T) {
	api := seeded()
	a := newTestApp(t, api, "/home")

	press(t, a, keyEnter)
	require.Equal(t, "/detail?approval_code=A&type=edit", a.Location())
	d := detail(t, a)
	assert.Equal(t, "Name A", d.form.Values().Name)

	typeText(t, a, "X")
	assert.Equal(t, "A", d.form.Values().ApprovalCode, "code is fixed while editing")

	press(t, a, keyDown)
	typeText(t, a, "X")
	assert.Equal(t, "Name AX", d.form.Values().Name)

	press(t, a, keySave)

	assert.Equal(t, "/home", a.Location())
	assert.Empty(t, api.Calls("Create"))
	require.Len(t, api.Calls("Update"), 1)
	assert.Contains(t, a.View(), "更新成功")
}

func TestApp_SearchIsReadOnly(t *testing.T) {
	api := seeded()
	a := newTestApp(t, api, "/home")

	typeText(t, a, "v")
	require.Equal(t, "/detail?approval_code=A&type=search", a.Location())
	d := detail(t, a)

	press(t, a, keyDown)
	typeText(t, a, "zzz")
	press(t, a, keySpace)
	press(t, a, keySave)

	assert.Equal(t, "Name A", d.form.Values().Name)
	assert.Empty(t, api.Calls("Update", "Create"))
	assert.Contains(t, a.View(), "查看配置（只读）")
}

func TestApp_SectionsAndRows(t *testing.T) {
	api := seeded()
	api.Options["NEW"] = []approval.FieldOption{
		{Label: "Amount", Value: "widget1"},
		{Label: "Reason", Value: "widget2"},
	}
	a := newTestApp(t, api, "/detail")
	d := detail(t, a)

	typeText(t, a, "NEW")
	press(t, a, keyDown)
	press(t, a, keyDown)

	// check toggle, then call type
	press(t, a, keySpace)
	assert.True(t, d.form.Values().Check.IsOpen)
	press(t, a, keyDown)
	press(t, a, keyEnter)
	assert.Equal(t, approval.CallTypeAsync, d.form.Values().Check.CallType)
	press(t, a, keyDown)
	typeText(t, a, "https://check")
	assert.Equal(t, "https://check", d.form.Values().Check.URL)

	// execute toggle, then field toggle
	press(t, a, keyDown)
	press(t, a, keyDown)
	press(t, a, keySpace)
	require.True(t, d.form.Values().Field.IsOpen)
	press(t, a, keyAdd)
	require.Len(t, d.form.Values().Field.Data, 1)

	press(t, a, keyDown)
	press(t, a, keyPick)
	assert.Equal(t, "widget1", d.form.Values().Field.Data[0].Code)
	press(t, a, keyPick)
	assert.Equal(t, "widget2", d.form.Values().Field.Data[0].Code)
	assert.Contains(t, a.View(), "NEW/widget2")

	press(t, a, keyDel)
	assert.Empty(t, d.form.Values().Field.Data)

	// close field, open relation: options stay listed and feed relation codes
	press(t, a, keyUp)
	press(t, a, keySpace)
	require.False(t, d.form.Values().Field.IsOpen)
	press(t, a, keyDown)
	press(t, a, keySpace)
	require.True(t, d.form.Values().Relation.IsOpen)
	assert.Contains(t, a.View(), "Amount(widget1)")

	press(t, a, keyAdd)
	require.Len(t, d.form.Values().Relation.Data, 1)
	press(t, a, keyDown)
	press(t, a, keyPick)
	assert.Equal(t, "widget1", d.form.Values().Relation.Data[0].Code)
	press(t, a, keyPick)
	assert.Equal(t, "widget2", d.form.Values().Relation.Data[0].Code)

	press(t, a, keyDown)
	press(t, a, keyPick)
	assert.Empty(t, d.form.Values().Relation.Data[0].APIKey, "api_key is typed, not picked")
}

func TestApp_NotFound(t *testing.T) {
	a := newTestApp(t, seeded(), "/nope")
	assert.Contains(t, a.View(), "404")

	press(t, a, keyEnter)
	assert.Equal(t, "/home", a.Location())
}

func TestApp_StaleResultsDropped(t *testing.T) {
	a := newTestApp(t, seeded(), "/home")
	typeText(t, a, "n")

	_, cmd := a.Update(scopedMsg{mount: a.mount - 1, msg: refreshedMsg{}})
	assert.Nil(t, cmd)
	assert.Equal(t, "/detail", a.Location())
}

func TestApp_Quit(t *testing.T) {
	a := newTestApp(t, seeded(), "/home")
	board := a.screen.Board()

	_, cmd := a.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, board.Closed())
}

func TestNavigator_Take(t *testing.T) {
	n := &navigator{}
	_, ok := n.take()
	assert.False(t, ok)

	n.Navigate("/a")
	n.Navigate("/b")
	loc, ok := n.take()
	assert.True(t, ok)
	assert.Equal(t, "/b", loc)

	_, ok = n.take()
	assert.False(t, ok)
}
