// Package ui implements an interactive clipboard history browser using bubbletea's Elm architecture.
//
// The TUI has four views:
//  1. [ListView] : Browse recent items with type, size, device and age
//  2. [DetailView] : Read the decrypted content of one item
//  3. [PassphraseView] : Enter the passphrase that unlocks encrypted items
//  4. [ConfirmDeleteView] : Confirm deleting an item from the server
//
// The (view) [Model] implements the standard Init/Update/View pattern, receiving results of server calls via the Msg union type.
// Decryption happens locally with an [encryption.Manager]; the server never sees the passphrase.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, c, d, y/n, r, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
