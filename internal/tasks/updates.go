package tasks

import (
	"fmt"

	"github.com/desertthunder/clipsync/internal/shared"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	CleanupItems Phase = iota
	CleanupWsTokens
	CleanupRegistrations
	CleanupSessions
	MigrateStorage
)

func (p Phase) String() string {
	switch p {
	case CleanupItems:
		return "cleanup_items"
	case CleanupWsTokens:
		return "cleanup_ws_tokens"
	case CleanupRegistrations:
		return "cleanup_registrations"
	case CleanupSessions:
		return "cleanup_sessions"
	case MigrateStorage:
		return "migrate_storage"
	default:
		return ""
	}
}

func cleanupUpdate(phase Phase, step, total int, removed int64) ProgressUpdate {
	return ProgressUpdate{
		Phase:   phase,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("%s: removed %d", phase, removed),
		Data:    removed,
	}
}

func cleanupFailedUpdate(phase Phase, step, total int, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   phase,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("%s failed: %v", phase, err),
	}
}

func migrationStartUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   MigrateStorage,
		Step:    0,
		Total:   total,
		Message: fmt.Sprintf("Moving %d files to blob storage...", total),
	}
}

func migratedUpdate(step, total int, res FileMigrationResult) ProgressUpdate {
	if res.Error != nil {
		return ProgressUpdate{
			Phase:   MigrateStorage,
			Step:    step,
			Total:   total,
			Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, res.ItemID, res.Error),
			Data:    res,
		}
	}
	return ProgressUpdate{
		Phase:   MigrateStorage,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%s)", step, total, res.ItemID, shared.FormatBytes(res.Bytes)),
		Data:    res,
	}
}
