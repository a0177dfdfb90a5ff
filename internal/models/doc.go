// Package models defines the domain entities of the clipboard sync service.
//
// Persistent entities:
//   - [User] : Account that owns devices and clipboard history
//   - [Session] : Signed in session used by the CLI and TUI
//   - [Device] : Registered desktop agent with its API key
//   - [ClipboardItem] : One immutable clipboard entry ordered by a global seq
//   - [ClipboardFile] : Out of row content for large items
//   - [WsToken] : Short lived realtime connection token
//   - [PendingRegistration] : Registration token awaiting an agent
//
// Entities keep their fields private and expose getters and setters. The Repository[T] interface defines the
// CRUD operations shared by the storage layer.
package models
