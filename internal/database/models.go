package database

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// JobStatus enum for jobs.status
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusSkipped   JobStatus = "skipped"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether no further transition is possible.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusSkipped, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusRunning || s.IsTerminal()
}

func (s JobStatus) Value() (driver.Value, error) {
	return string(s), nil
}

func (s *JobStatus) Scan(value interface{}) error {
	if value == nil {
		*s = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*s = JobStatus(v)
	case []byte:
		*s = JobStatus(v)
	default:
		return fmt.Errorf("cannot scan %T into JobStatus", value)
	}
	return nil
}

// JobSource records what submitted a job.
type JobSource string

const (
	JobSourceAPI   JobSource = "api"
	JobSourceWatch JobSource = "watch"
	JobSourceCLI   JobSource = "cli"
)

// Job is one persisted compression request and its outcome.
type Job struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Status     JobStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	Source     JobSource `gorm:"type:varchar(16);not null;default:api" json:"source"`
	InputPath  string    `gorm:"type:varchar(1024);not null" json:"input_path"`
	OutputPath string    `gorm:"type:varchar(1024);not null" json:"output_path"`

	// Export configuration
	VideoSize string  `gorm:"type:varchar(16);not null" json:"video_size"`
	FileType  string  `gorm:"type:varchar(8);not null" json:"file_type"`
	FrameRate float64 `gorm:"not null" json:"frame_rate"`

	// Progress in [0,1], persisted in 5 percent steps.
	Progress float64 `gorm:"not null;default:0" json:"progress"`

	// ResultPath is the file the job produced; the input path for skipped
	// jobs.
	ResultPath string `gorm:"type:varchar(1024)" json:"result_path,omitempty"`
	OutputSize int64  `json:"output_size,omitempty"`
	Error      string `gorm:"type:text" json:"error,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName returns the table name for GORM
func (Job) TableName() string {
	return "jobs"
}
