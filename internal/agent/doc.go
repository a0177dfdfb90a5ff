// Package agent runs on a desktop and keeps its clipboard in sync with the server.
//
// A [Monitor] polls the system clipboard, a [DropWatcher] picks up files placed in a drop folder,
// and a [SyncManager] pushes both to the server while applying items pushed by the user's other
// devices. Content is sealed with [encryption.Manager] before it leaves the machine.
//
// When the server cannot be reached, pushes go to a [Queue] persisted as JSON and are retried
// with exponential backoff.
package agent
