package ui

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/clipsync/internal/encryption"
	"github.com/desertthunder/clipsync/internal/models"
	"github.com/desertthunder/clipsync/internal/shared"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ListView ViewState = iota
	DetailView
	PassphraseView
	ConfirmDeleteView
)

// Source is the part of the API client the browser needs.
type Source interface {
	ListItems(ctx context.Context, since int64, limit int) ([]models.ClipboardItemView, error)
	DeleteItem(ctx context.Context, id string) error
}

// Clipboard receives copied content.
type Clipboard interface {
	WriteAll(text string) error
}

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	view     ViewState
	source   Source
	clip     Clipboard
	crypto   *encryption.Manager
	limit    int
	width    int
	height   int
	list     list.Model
	items    []models.ClipboardItemView
	selected *models.ClipboardItemView
	content  string
	openErr  error
	input    textinput.Model
	status   string
	err      error
	help     help.Model
	keys     keyMap
	now      func() time.Time
}

// NewModel creates a browser over source. crypto decrypts items and may start without a passphrase.
func NewModel(ctx context.Context, source Source, clip Clipboard, crypto *encryption.Manager, limit int) *Model {
	input := textinput.New()
	input.Placeholder = "passphrase"
	input.EchoMode = textinput.EchoPassword
	input.EchoCharacter = '•'

	m := &Model{
		ctx:    ctx,
		view:   ListView,
		source: source,
		clip:   clip,
		crypto: crypto,
		limit:  cmp.Or(limit, 100),
		input:  input,
		help:   help.New(),
		keys:   newKeyMap(),
		now:    time.Now,
	}
	m.list = m.newList(nil)
	return m
}

// Init fetches the history from the server.
func (m *Model) Init() tea.Cmd {
	return m.fetchItems()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width-4, msg.Height-6)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case ListView:
			return m.handleListKeys(msg)
		case DetailView:
			return m.handleDetailKeys(msg)
		case PassphraseView:
			return m.handlePassphraseKeys(msg)
		case ConfirmDeleteView:
			return m.handleConfirmKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgItemsFetched:
		data := msg.data.(fetched)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.err = nil
		m.items = slices.SortedFunc(slices.Values(data.items), func(a, b models.ClipboardItemView) int {
			return cmp.Compare(b.Seq, a.Seq)
		})
		m.list = m.newList(m.items)
		m.status = fmt.Sprintf("%d items", len(m.items))

	case MsgItemDeleted:
		data := msg.data.(deleted)
		if data.err != nil {
			m.status = styles.err.Render(fmt.Sprintf("Delete failed: %v", data.err))
			return m, nil
		}
		m.selected = nil
		m.view = ListView
		m.status = styles.ok.Render("Deleted " + data.id)
		return m, m.fetchItems()

	case MsgCopied:
		if err, _ := msg.data.(error); err != nil {
			m.status = styles.err.Render(fmt.Sprintf("Copy failed: %v", err))
		} else {
			m.status = styles.ok.Render("✓ Copied to clipboard")
		}
	}
	return m, nil
}

func (m *Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.list.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.refresh):
		m.status = "Refreshing..."
		return m, m.fetchItems()
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.current(); ok {
			return m, m.open(item)
		}
		return m, nil
	case key.Matches(msg, m.keys.del):
		if item, ok := m.current(); ok {
			m.selected = &item
			m.view = ConfirmDeleteView
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = ListView
		m.selected = nil
	case key.Matches(msg, m.keys.copy):
		return m, m.copySelected()
	case key.Matches(msg, m.keys.del):
		m.view = ConfirmDeleteView
	case key.Matches(msg, m.keys.unlock):
		return m, m.prompt()
	}
	return m, nil
}

func (m *Model) handlePassphraseKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.input.Blur()
		m.view = ListView
		m.selected = nil
		return m, nil
	case tea.KeyEnter:
		return m, m.unlock(m.input.Value())
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		return m, m.deleteItem(m.selected.ID)
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.quit):
		if m.content != "" || m.openErr != nil {
			m.view = DetailView
		} else {
			m.view = ListView
			m.selected = nil
		}
	}
	return m, nil
}

func (m *Model) current() (models.ClipboardItemView, bool) {
	selected, ok := m.list.SelectedItem().(clipItem)
	if !ok {
		return models.ClipboardItemView{}, false
	}
	return selected.item, true
}

// open shows item, asking for the passphrase first when it is encrypted and no key is set.
func (m *Model) open(item models.ClipboardItemView) tea.Cmd {
	m.selected = &item
	m.content, m.openErr = "", nil
	m.status = ""

	if item.IsEncrypted && !m.crypto.Enabled() {
		return m.prompt()
	}
	m.decryptSelected()
	m.view = DetailView
	return nil
}

func (m *Model) decryptSelected() {
	m.content, m.openErr = m.crypto.DecryptItem(*m.selected)
}

func (m *Model) prompt() tea.Cmd {
	m.view = PassphraseView
	m.input.Reset()
	m.status = ""
	return m.input.Focus()
}

// unlock derives the key from passphrase and retries the selected item.
// A passphrase that does not open the item is discarded.
func (m *Model) unlock(passphrase string) tea.Cmd {
	if err := m.crypto.SetPassphrase(passphrase); err != nil {
		m.status = styles.err.Render(err.Error())
		return nil
	}

	if m.selected != nil {
		m.decryptSelected()
		if errors.Is(m.openErr, shared.ErrDecryptionFailed) {
			m.crypto.Disable()
			m.input.Reset()
			m.status = styles.err.Render("Wrong passphrase")
			return nil
		}
	}

	m.input.Blur()
	m.view = DetailView
	if m.selected == nil {
		m.view = ListView
	}
	m.status = styles.ok.Render("Unlocked")
	return nil
}

func (m *Model) copySelected() tea.Cmd {
	switch {
	case m.selected == nil:
		return nil
	case m.openErr != nil:
		m.status = styles.warn.Render("Nothing to copy: content is locked")
		return nil
	case m.selected.Type != models.TypeText:
		m.status = styles.warn.Render("Only text items can be copied")
		return nil
	}

	text := m.content
	return func() tea.Msg {
		return copiedMsg(m.clip.WriteAll(text))
	}
}

func (m *Model) fetchItems() tea.Cmd {
	return func() tea.Msg {
		items, err := m.source.ListItems(m.ctx, 0, m.limit)
		return itemsFetchedMsg(items, err)
	}
}

func (m *Model) deleteItem(id string) tea.Cmd {
	return func() tea.Msg {
		return itemDeletedMsg(id, m.source.DeleteItem(m.ctx, id))
	}
}

func (m *Model) newList(views []models.ClipboardItemView) list.Model {
	now := m.now()
	items := make([]list.Item, len(views))
	for i, v := range views {
		items[i] = clipItem{item: v, now: now}
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Clipboard History"
	l.SetShowHelp(false)
	if m.width > 0 {
		l.SetSize(m.width-4, m.height-6)
	}
	return l
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress r to retry, q to quit", m.err))
	}

	switch m.view {
	case ListView:
		return m.renderList()
	case DetailView:
		return m.renderDetail()
	case PassphraseView:
		return m.renderPassphrase()
	case ConfirmDeleteView:
		return m.renderConfirm()
	default:
		return ""
	}
}

func (m *Model) renderList() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.del, m.keys.refresh, m.keys.quit}
	return fmt.Sprintf("%s\n%s\n%s", m.list.View(), m.status, m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderDetail() string {
	item := m.selected
	title := styles.title.Render(fmt.Sprintf("#%d %s", item.Seq, item.Type))
	info := fmt.Sprintf("Device: %s\nCreated: %s\nSize: %s\nEncrypted: %v",
		item.DeviceID, item.CreatedAt.Local().Format(time.DateTime), shared.FormatBytes(item.SizeBytes), item.IsEncrypted)

	var body string
	switch {
	case m.openErr != nil:
		body = styles.warn.Render(fmt.Sprintf("Cannot decrypt: %v\nPress p to enter a different passphrase", m.openErr))
	case item.Type != models.TypeText:
		body = styles.help.Render(fmt.Sprintf("%s content (%s), not shown", item.Type, item.Mime))
	default:
		body = styles.content.Render(m.content)
	}

	helpKeys := []key.Binding{m.keys.copy, m.keys.del, m.keys.unlock, m.keys.back, m.keys.quit}
	return fmt.Sprintf("%s\n%s\n\n%s\n%s\n\n%s", title, info, body, m.status, m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderPassphrase() string {
	title := styles.title.Render("Enter passphrase")
	note := styles.help.Render("Items are decrypted locally. The passphrase is never sent to the server.")
	return fmt.Sprintf("%s\n%s\n\n%s\n%s\n\n%s", title, note, m.input.View(), m.status, styles.help.Render("enter unlock • esc back"))
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render(fmt.Sprintf("Delete item #%d?", m.selected.Seq))
	info := fmt.Sprintf("%s from %s, %s", m.selected.Type, m.selected.DeviceID, shared.FormatBytes(m.selected.SizeBytes))
	helpKeys := []key.Binding{m.keys.yes, m.keys.no}
	return fmt.Sprintf("%s\n%s\n\n%s", title, info, m.help.ShortHelpView(helpKeys))
}
