package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/clipsync/internal/models"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgItemsFetched MsgKind = iota
	MsgItemDeleted
	MsgCopied
)

type fetched struct {
	items []models.ClipboardItemView
	err   error
}

type deleted struct {
	id  string
	err error
}

// itemsFetchedMsg is the constructor for [MsgItemsFetched]
func itemsFetchedMsg(items []models.ClipboardItemView, err error) Msg {
	return Msg{kind: MsgItemsFetched, data: fetched{items, err}}
}

// itemDeletedMsg is the constructor for [MsgItemDeleted]
func itemDeletedMsg(id string, err error) Msg {
	return Msg{kind: MsgItemDeleted, data: deleted{id, err}}
}

// copiedMsg is the constructor for [MsgCopied]
func copiedMsg(err error) Msg {
	return Msg{kind: MsgCopied, data: err}
}
