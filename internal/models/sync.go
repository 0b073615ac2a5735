package models

import "time"

// UpsertResult is the outcome of persisting a single issue
type UpsertResult struct {
	Key string `json:"key"`
	Err error  `json:"-"`
}

// OK reports whether the issue was written
func (r UpsertResult) OK() bool {
	return r.Err == nil
}

// PersistReport represents the outcome of one persisted batch
type PersistReport struct {
	Attempted int            `json:"attempted"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Results   []UpsertResult `json:"results"`
}

// Failures returns the results that were not written
func (r *PersistReport) Failures() []UpsertResult {
	var failed []UpsertResult
	for _, res := range r.Results {
		if !res.OK() {
			failed = append(failed, res)
		}
	}
	return failed
}

// SyncReport represents the outcome of a full sync run
type SyncReport struct {
	ProjectKey string         `json:"project_key"`
	Limit      int            `json:"limit"`
	Fetched    int            `json:"fetched"`
	Partial    bool           `json:"partial"`
	Persist    *PersistReport `json:"persist,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	Duration   time.Duration  `json:"duration"`
}
