package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/reel/internal/models"
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
	MsgPopularFetched MsgKind = iota
	MsgStoreChanged
	MsgWarning
)

type popularFetched struct {
	page *models.Page
	err  error
}

// popularFetchedMsg is the constructor for [MsgPopularFetched]
func popularFetchedMsg(page *models.Page, err error) Msg {
	return Msg{kind: MsgPopularFetched, data: popularFetched{page, err}}
}

// storeChangedMsg is the constructor for [MsgStoreChanged]
func storeChangedMsg() Msg {
	return Msg{kind: MsgStoreChanged}
}

// warningMsg is the constructor for [MsgWarning]
func warningMsg(err error) Msg {
	return Msg{kind: MsgWarning, data: err}
}
