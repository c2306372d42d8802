package models

import "time"

// Session is the watch-mode state of one monitored tab
type Session struct {
	TabID             string       `json:"tabId" badgerhold:"key"`
	Active            bool         `json:"active"`
	ProfileID         string       `json:"profileId"`
	WebhookURL        string       `json:"webhookUrl"`
	SheetName         string       `json:"sheetName"`
	Filters           FilterConfig `json:"filters"`
	ScrollCount       int          `json:"scrollCount"`
	RefreshIntervalMs int64        `json:"refreshIntervalMs"`
	MaxBatches        int          `json:"maxBatches"`
	CurrentBatchCount int          `json:"currentBatchCount"`
	CycleStartTime    time.Time    `json:"cycleStartTime"`
	LastResultAt      time.Time    `json:"lastResultAt,omitempty"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
}

// RefreshInterval returns the cycle time cap
func (s *Session) RefreshInterval() time.Duration {
	return time.Duration(s.RefreshIntervalMs) * time.Millisecond
}

// ResetCycle zeroes the batch counter and restarts the cycle clock
func (s *Session) ResetCycle(now time.Time) {
	s.CurrentBatchCount = 0
	s.CycleStartTime = now
	s.UpdatedAt = now
}

// ShouldReload reports whether the cycle hit its time or batch limit
func (s *Session) ShouldReload(now time.Time) bool {
	return now.Sub(s.CycleStartTime) >= s.RefreshInterval() || s.CurrentBatchCount >= s.MaxBatches
}

// BatchCommand builds the RUN_BATCH command for this session
func (s *Session) BatchCommand(batchID string) BatchCommand {
	filters := s.Filters
	filters.ScrollCount = s.ScrollCount
	return BatchCommand{
		BatchID:     batchID,
		TabID:       s.TabID,
		Filters:     filters,
		ScrollCount: s.ScrollCount,
	}
}
