// Package scheduler runs the periodic maintenance of the post office.
//
// EventBridge rules invoke the maintenance Lambda with a MaintenancePayload;
// the Task selects which MaintenanceService method runs.
package scheduler

import "time"

// TaskType identifies a maintenance task.
type TaskType string

const (
	TaskCleanupStaleBundles        TaskType = "cleanup_stale_bundles"
	TaskPurgeIdempotencyRecords    TaskType = "purge_idempotency_records"
	TaskPurgeDequeuedNotifications TaskType = "purge_dequeued_notifications"
)

// MaintenancePayload is the event body sent to the maintenance Lambda:
//
//	{
//	  "task": "cleanup_stale_bundles",
//	  "reference_time": "2026-02-06T03:00:00Z"  // optional
//	}
type MaintenancePayload struct {
	Task TaskType `json:"task"`
	// ReferenceTime overrides "now" for manual runs and backfills.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}
