// Package tasks runs periodic server maintenance with real-time progress reporting.
//
// # Maintenance
//
// [Maintenance.Run] performs the cleanup steps concurrently with an errgroup:
//
//  1. Clipboard items older than the retention period, with their blobs
//  2. Expired websocket tokens
//  3. Expired pending device registrations
//  4. Expired sessions
//
// It then calls [Maintenance.MigrateStorage], which moves file content at or above object_min_bytes out of
// the database and into the blob store. Uploads run on a worker pool paced by a token bucket limiter;
// each migrated row keeps only the blob URL and the compression type.
//
// # Progress Reporting
//
// Operations send [ProgressUpdate] values on an optional channel. Sends never block: a full channel
// drops the update.
//
// # Scheduling
//
// [Scheduler] runs maintenance once at start and then on every interval until its context ends.
package tasks
