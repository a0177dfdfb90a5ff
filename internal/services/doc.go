// Package services holds clipsync's server-side operations and the [Client] that calls them over HTTP.
//
// # Clipboard
//
// [ClipboardService] stores items pushed by devices and serves incremental polls. Every stored item
// gets the next value of a global seq counter; a device asks for everything after the last seq it
// saw and receives items in seq order. Content is deduplicated by hash per user: a repeated hash
// returns the existing item instead of storing a second one. Content is opaque to the server; it is
// normally ciphertext produced by the agent's encryption manager.
//
// A poll with a wait duration becomes a long poll. The service subscribes to the user's change
// events before querying, so an item stored between the query and the wait still wakes it.
//
// # Devices and registration
//
// Agents authenticate with API keys (cpb_...) through [DesktopAuthService]. A device gets a key in
// one of three ways:
//   - the user generates one for a verified device ([DeviceService.GenerateAPIKey])
//   - the agent registers with a pending registration token ([RegistrationService.Register])
//   - the agent completes registration of a device the user already added ([RegistrationService.CompleteExisting])
//
// Registration tokens look like dev_{prefix}_{unix}, where prefix is the start of the agent's
// device id ({platform}-{hostname}-{unix}-{hex}).
//
// # Errors
//
// Services return errors wrapping the sentinels in the shared package. The HTTP layer maps them
// to status codes and [Client] maps status codes back:
//   - [shared.ErrInvalidInput]: 400
//   - [shared.ErrUnauthorized]: 401
//   - [shared.ErrForbidden], [shared.ErrDeviceNotVerified]: 403
//   - [shared.ErrNotFound]: 404
//   - [shared.ErrRateLimited]: 429
package services
