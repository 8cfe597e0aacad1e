package checkpoint

import (
	"context"
	"fmt"
	"time"
)

// NewCheckpoint creates a new pending checkpoint for a batch
func NewCheckpoint(batchID string) *BatchCheckpoint {
	now := time.Now()
	return &BatchCheckpoint{
		BatchID:       batchID,
		State:         StatePending,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
}

// IsDone reports whether the batch reached a completed state. Interrupted InProgress
// batches are not done and are re-run on resume.
func (c *BatchCheckpoint) IsDone() bool {
	return c != nil && (c.State == StateCompleted || c.State == StateCompletedWithErrors)
}

// CanRetry determines if a checkpoint should be retried based on attempt count
func (c *BatchCheckpoint) CanRetry(maxAttempts int) bool {
	return maxAttempts <= 0 || c.AttemptCount < maxAttempts
}

// Finish records the outcome of a batch run and saves it.
func (m *Manager) Finish(ctx context.Context, checkpoint *BatchCheckpoint, state State) error {
	checkpoint.State = state
	return m.Save(ctx, checkpoint)
}

// Summary provides a human-readable summary of the checkpoint
func (c *BatchCheckpoint) Summary() string {
	summary := fmt.Sprintf("Batch: %s\n", c.BatchID)
	summary += fmt.Sprintf("State: %s\n", c.State)
	summary += fmt.Sprintf("Last Updated: %s\n", c.LastUpdatedAt.Format(time.RFC3339))
	summary += fmt.Sprintf("Attempts: %d\n", c.AttemptCount)
	summary += fmt.Sprintf("Records: %d, API calls: %d, enrichment errors: %d\n", c.Records, c.APICalls, c.EnrichmentErrors)
	if c.LastError != "" {
		summary += fmt.Sprintf("Last Error: %s\n", c.LastError)
	}
	return summary
}

// FindStalled returns InProgress checkpoints that haven't been updated recently
func (m *Manager) FindStalled(ctx context.Context, stalledDuration time.Duration) ([]*BatchCheckpoint, error) {
	checkpoints, err := m.List(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-stalledDuration)
	var stalled []*BatchCheckpoint
	for _, checkpoint := range checkpoints {
		if checkpoint.State == StateInProgress && checkpoint.LastUpdatedAt.Before(cutoff) {
			stalled = append(stalled, checkpoint)
		}
	}
	return stalled, nil
}

// Statistics counts checkpoints per state.
type Statistics struct {
	Total            int           `json:"total"`
	ByState          map[State]int `json:"by_state"`
	Records          int           `json:"records"`
	APICalls         int           `json:"api_calls"`
	EnrichmentErrors int           `json:"enrichment_errors"`
}

// GetStatistics returns statistics about checkpoints
func (m *Manager) GetStatistics(ctx context.Context) (*Statistics, error) {
	checkpoints, err := m.List(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{
		Total:   len(checkpoints),
		ByState: make(map[State]int),
	}
	for _, checkpoint := range checkpoints {
		stats.ByState[checkpoint.State]++
		stats.Records += checkpoint.Records
		stats.APICalls += checkpoint.APICalls
		stats.EnrichmentErrors += checkpoint.EnrichmentErrors
	}
	return stats, nil
}
