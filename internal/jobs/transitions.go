package jobs

import "github.com/mantonx/vcompress/internal/database"

// transitions lists the statuses each status may move to. Terminal statuses
// have no entry.
var transitions = map[database.JobStatus][]database.JobStatus{
	database.JobStatusPending: {
		database.JobStatusRunning,
		database.JobStatusCancelled,
	},
	database.JobStatusRunning: {
		database.JobStatusCompleted,
		database.JobStatusSkipped,
		database.JobStatusFailed,
		database.JobStatusCancelled,
	},
}

// CanTransition reports whether a job in status from may move to to.
func CanTransition(from, to database.JobStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
