// Package repositories implements SQLite persistence for all domain entities.
//
// Key Implementations:
//   - [UserRepository] : User accounts with email lookups, soft and hard deletes
//   - [SessionRepository] : Signed in sessions
//   - [DeviceRepository] : Devices by internal id, external device id or API key
//   - [ClipboardRepository] : Clipboard items with seq based reads and out of row content
//   - [WsTokenRepository] : Realtime connection tokens
//   - [RegistrationRepository] : Pending device registrations
//
// The [NextSequence] function atomically increments per-table counters kept in dedicated sequence tables.
// Clipboard items claim their seq inside the insert transaction, so a seq is never handed out twice.
package repositories
