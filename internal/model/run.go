package model

import "time"

// RunStatus represents the state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
	RunStatusAborted  RunStatus = "aborted" // dry run or declined confirmation
)

// Run is one execution of the enrichment pipeline.
type Run struct {
	ID          string     `json:"id" bson:"_id"`
	Status      RunStatus  `json:"status" bson:"status"`
	StartedAt   time.Time  `json:"started_at" bson:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	Result      *RunResult `json:"result,omitempty" bson:"result,omitempty"`
	Error       string     `json:"error,omitempty" bson:"error,omitempty"`
}

// RunResult holds the counts recorded when a run finishes.
type RunResult struct {
	Wells     int            `json:"wells" bson:"wells"`
	Intervals int            `json:"intervals" bson:"intervals"`
	Filtered  int            `json:"filtered" bson:"filtered"`
	Written   int64          `json:"written" bson:"written"`
	Warnings  map[string]int `json:"warnings,omitempty" bson:"warnings,omitempty"`
}
