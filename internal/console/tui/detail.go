package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/huangang/larkticket/internal/console/form"
	"github.com/huangang/larkticket/internal/console/notify"
	"github.com/huangang/larkticket/internal/console/router"
	"github.com/huangang/larkticket/pkg/approval"
)

type loadedMsg struct{ err error }

type optionsMsg struct{}

type submittedMsg struct{ err error }

type lineKind int

const (
	kindText lineKind = iota
	kindOpen
	kindCallType
)

// line is one focusable row of the detail screen.
type line struct {
	kind    lineKind
	label   string
	path    string
	value   string
	section form.Section
	row     int
	col     string
	set     func(string) error
}

type detailScreen struct {
	mount   int
	form    *form.Form
	board   *notify.Board
	nav     router.Navigator
	input   textinput.Model
	spinner spinner.Model
	cursor  int
	loading bool
	status  string
}

func newDetailScreen(mount int, f *form.Form, board *notify.Board, nav router.Navigator) *detailScreen {
	ti := textinput.New()
	ti.Prompt = ""
	ti.CharLimit = 256
	ti.Cursor.SetMode(cursor.CursorStatic)

	return &detailScreen{
		mount:   mount,
		form:    f,
		board:   board,
		nav:     nav,
		input:   ti,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		loading: f.Mode() != form.ModeCreate,
	}
}

func (d *detailScreen) Init() tea.Cmd {
	if !d.loading {
		return d.focusLine()
	}
	f := d.form
	return tea.Batch(d.spinner.Tick, scoped(d.mount, func() tea.Msg {
		return loadedMsg{err: f.Load(context.Background())}
	}))
}

func (d *detailScreen) editable(l line) bool {
	return l.set != nil && !d.form.ReadOnly() && !d.loading
}

func (d *detailScreen) lines() []line {
	v := d.form.Values()

	codeLine := line{kind: kindText, label: "审批编码", path: "approval_code", value: v.ApprovalCode, row: -1}
	if d.form.Mode() == form.ModeCreate {
		codeLine.set = d.form.SetApprovalCode
	}
	ls := []line{
		codeLine,
		{kind: kindText, label: "审批名称", path: "name", value: v.Name, row: -1, set: d.form.SetName},
	}

	ls = d.callbackLines(ls, form.SectionCheck, "审核回调", v.Check)
	ls = d.callbackLines(ls, form.SectionExecute, "执行回调", v.Execute)

	ls = append(ls, line{kind: kindOpen, label: "字段回调", section: form.SectionField, value: onOff(v.Field.IsOpen), row: -1})
	if v.Field.IsOpen {
		for i, row := range v.Field.Data {
			i := i
			ls = append(ls,
				line{
					kind: kindText, label: fmt.Sprintf("  字段 %d", i+1), path: fmt.Sprintf("field.data[%d].code", i),
					value: row.Code, section: form.SectionField, row: i, col: "code",
					set: func(s string) error { return d.editField(i, func(r *approval.FieldMapping) { r.Code = s }) },
				},
				line{
					kind: kindText, label: fmt.Sprintf("  字段 %d 回调", i+1), path: fmt.Sprintf("field.data[%d].url", i),
					value: row.URL, section: form.SectionField, row: i, col: "url",
					set: func(s string) error { return d.editField(i, func(r *approval.FieldMapping) { r.URL = s }) },
				},
			)
		}
	}

	ls = append(ls, line{kind: kindOpen, label: "关联字段", section: form.SectionRelation, value: onOff(v.Relation.IsOpen), row: -1})
	if v.Relation.IsOpen {
		for i, row := range v.Relation.Data {
			i := i
			ls = append(ls,
				line{
					kind: kindText, label: fmt.Sprintf("  关联 %d", i+1), path: fmt.Sprintf("relation.data[%d].code", i),
					value: row.Code, section: form.SectionRelation, row: i, col: "code",
					set: func(s string) error { return d.editRelation(i, func(r *approval.RelationMapping) { r.Code = s }) },
				},
				line{
					kind: kindText, label: fmt.Sprintf("  关联 %d api_key", i+1), path: fmt.Sprintf("relation.data[%d].api_key", i),
					value: row.APIKey, section: form.SectionRelation, row: i, col: "api_key",
					set: func(s string) error { return d.editRelation(i, func(r *approval.RelationMapping) { r.APIKey = s }) },
				},
			)
		}
	}
	return ls
}

func (d *detailScreen) callbackLines(ls []line, s form.Section, label string, cb approval.Callback) []line {
	ls = append(ls, line{kind: kindOpen, label: label, section: s, value: onOff(cb.IsOpen), row: -1})
	if !cb.IsOpen {
		return ls
	}
	return append(ls,
		line{kind: kindCallType, label: "  调用方式", path: string(s) + ".call_type", section: s, value: string(cb.CallType), row: -1},
		line{
			kind: kindText, label: "  回调地址", path: string(s) + ".url", section: s, value: cb.URL, row: -1,
			set: func(url string) error { return d.form.SetURL(s, url) },
		},
	)
}

func onOff(open bool) string {
	if open {
		return "开启"
	}
	return "关闭"
}

func (d *detailScreen) editField(i int, fn func(*approval.FieldMapping)) error {
	rows := d.form.Values().Field.Data
	if i < 0 || i >= len(rows) {
		return form.ErrRowOutOfRange
	}
	row := rows[i]
	fn(&row)
	return d.form.SetFieldRow(i, row)
}

func (d *detailScreen) editRelation(i int, fn func(*approval.RelationMapping)) error {
	rows := d.form.Values().Relation.Data
	if i < 0 || i >= len(rows) {
		return form.ErrRowOutOfRange
	}
	row := rows[i]
	fn(&row)
	return d.form.SetRelationRow(i, row)
}

func (d *detailScreen) current() (line, bool) {
	ls := d.lines()
	if len(ls) == 0 {
		return line{}, false
	}
	d.cursor = min(max(d.cursor, 0), len(ls)-1)
	return ls[d.cursor], true
}

// focusLine points the text input at the line under the cursor.
func (d *detailScreen) focusLine() tea.Cmd {
	l, ok := d.current()
	if !ok || l.kind != kindText || !d.editable(l) {
		d.input.Blur()
		return nil
	}
	d.input.SetValue(l.value)
	d.input.CursorEnd()
	return d.input.Focus()
}

func (d *detailScreen) move(delta int) tea.Cmd {
	prev, _ := d.current()
	d.cursor += delta
	cmd := d.focusLine()

	if prev.path == "approval_code" && d.form.Mode() == form.ModeCreate {
		f := d.form
		return tea.Batch(cmd, scoped(d.mount, func() tea.Msg {
			f.BlurApprovalCode(context.Background())
			return optionsMsg{}
		}))
	}
	return cmd
}

func (d *detailScreen) toggle(l line) {
	switch l.kind {
	case kindOpen:
		_ = d.form.SetOpen(l.section, !d.form.IsOpen(l.section))
	case kindCallType:
		next := approval.CallTypeAsync
		if l.value == string(approval.CallTypeAsync) {
			next = approval.CallTypeSync
		}
		_ = d.form.SetCallType(l.section, next)
	}
}

func (d *detailScreen) addRow(l line) tea.Cmd {
	var err error
	switch l.section {
	case form.SectionField:
		err = d.form.AddFieldRow()
	case form.SectionRelation:
		err = d.form.AddRelationRow()
	default:
		return nil
	}
	if err != nil {
		return nil
	}
	return d.focusLine()
}

func (d *detailScreen) removeRow(l line) tea.Cmd {
	if l.row < 0 {
		return nil
	}
	var err error
	switch l.section {
	case form.SectionField:
		err = d.form.RemoveFieldRow(l.row)
	case form.SectionRelation:
		err = d.form.RemoveRelationRow(l.row)
	}
	if err != nil {
		return nil
	}
	return d.focusLine()
}

// cycleOption fills a field or relation code from the options of the approval.
func (d *detailScreen) cycleOption(l line) tea.Cmd {
	options := d.form.Options()
	if len(options) == 0 || !isMappingCode(l) || !d.editable(l) {
		return nil
	}
	next := 0
	for i, o := range options {
		if o.Value == l.value {
			next = (i + 1) % len(options)
			break
		}
	}
	if err := l.set(options[next].Value); err != nil {
		return nil
	}
	return d.focusLine()
}

func isMappingCode(l line) bool {
	return l.col == "code" && (l.section == form.SectionField || l.section == form.SectionRelation)
}

func (d *detailScreen) submit() tea.Cmd {
	if d.form.ReadOnly() || d.loading {
		return nil
	}
	d.status = ""
	f := d.form
	return tea.Batch(d.spinner.Tick, scoped(d.mount, func() tea.Msg {
		return submittedMsg{err: f.Submit(context.Background())}
	}))
}

func (d *detailScreen) Update(msg tea.Msg) (screen, tea.Cmd) {
	switch m := msg.(type) {
	case loadedMsg:
		d.loading = false
		if m.err != nil {
			d.status = "加载失败"
		}
		return d, d.focusLine()
	case optionsMsg:
		return d, nil
	case submittedMsg:
		var verrs approval.ValidationErrors
		if errors.As(m.err, &verrs) {
			d.status = fmt.Sprintf("表单校验失败：%d 项", len(verrs))
		}
		return d, nil
	case spinner.TickMsg:
		if !d.loading && !d.form.Submitting() {
			return d, nil
		}
		var cmd tea.Cmd
		d.spinner, cmd = d.spinner.Update(m)
		return d, cmd
	case tea.KeyMsg:
		return d.handleKey(m)
	}
	return d, nil
}

func (d *detailScreen) handleKey(k tea.KeyMsg) (screen, tea.Cmd) {
	switch k.String() {
	case "esc":
		d.nav.Navigate(router.HomeLocation())
		return d, nil
	case "up", "shift+tab":
		return d, d.move(-1)
	case "down", "tab":
		return d, d.move(1)
	case "ctrl+s":
		return d, d.submit()
	}

	l, ok := d.current()
	if !ok || d.loading {
		return d, nil
	}

	switch k.String() {
	case "ctrl+n":
		return d, d.addRow(l)
	case "ctrl+x":
		return d, d.removeRow(l)
	case "ctrl+o":
		return d, d.cycleOption(l)
	case "enter":
		if l.kind == kindText {
			return d, d.move(1)
		}
		d.toggle(l)
		return d, d.focusLine()
	case " ", "space":
		if l.kind != kindText {
			d.toggle(l)
			return d, d.focusLine()
		}
	}

	if l.kind != kindText || !d.editable(l) {
		return d, nil
	}
	var cmd tea.Cmd
	d.input, cmd = d.input.Update(k)
	if err := l.set(d.input.Value()); err != nil {
		return d, nil
	}
	return d, cmd
}

func (d *detailScreen) title() string {
	switch d.form.Mode() {
	case form.ModeEdit:
		return "编辑配置"
	case form.ModeSearch:
		return "查看配置（只读）"
	default:
		return "新增配置"
	}
}

func (d *detailScreen) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(d.title()))
	b.WriteString("\n\n")

	if d.loading {
		b.WriteString(d.spinner.View() + " 加载中...")
		return b.String()
	}

	errs := d.form.Errors()
	ls := d.lines()
	for i, l := range ls {
		marker := "  "
		if i == d.cursor {
			marker = cursorStyle.Render("> ")
		}
		value := l.value
		if i == d.cursor && d.input.Focused() {
			value = d.input.View()
		}
		b.WriteString(marker + labelStyle.Render(l.label) + value)
		if l.section == form.SectionField && l.col == "code" {
			b.WriteString(dimStyle.Render("  " + d.form.FieldURI(l.row)))
		}
		if msg := errs.For(l.path); msg != "" {
			b.WriteString("  " + errorStyle.Render(msg))
		}
		b.WriteString("\n")
	}

	if d.form.IsOpen(form.SectionField) || d.form.IsOpen(form.SectionRelation) {
		if options := d.form.Options(); len(options) > 0 {
			names := make([]string, 0, len(options))
			for _, o := range options {
				names = append(names, fmt.Sprintf("%s(%s)", o.Label, o.Value))
			}
			b.WriteString(dimStyle.Render("可选字段: " + strings.Join(names, ", ")))
			b.WriteString("\n")
		}
	}

	if d.form.Submitting() {
		b.WriteString(d.spinner.View() + " 提交中...\n")
	}
	if d.status != "" {
		b.WriteString(errorStyle.Render(d.status) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (d *detailScreen) Help() string {
	if d.form.ReadOnly() {
		return "↑/↓ 移动 • esc 返回"
	}
	return "↑/↓ 移动 • space 切换 • ctrl+n 添加行 • ctrl+x 删除行 • ctrl+o 选择字段 • ctrl+s 提交 • esc 返回"
}

func (d *detailScreen) Board() *notify.Board { return d.board }
