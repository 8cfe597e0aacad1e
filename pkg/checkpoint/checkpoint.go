package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/soundprediction/casegraph/pkg/utils"
)

// ErrInvalidBatchID is returned when a batch ID contains invalid characters
var ErrInvalidBatchID = errors.New("invalid batch ID: contains path traversal or invalid characters")

// State is the lifecycle state of one batch file.
type State string

const (
	StatePending             State = "pending"
	StateInProgress          State = "in_progress"
	StateCompleted           State = "completed"
	StateCompletedWithErrors State = "completed_with_errors"
	// StateFailed means the batch could not be processed at all, e.g. unreadable input.
	StateFailed State = "failed"
)

// BatchCheckpoint records the progress of one batch.
type BatchCheckpoint struct {
	BatchID string `json:"batch_id"`
	State   State  `json:"state"`

	CreatedAt     time.Time `json:"created_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
	AttemptCount  int       `json:"attempt_count"`
	LastError     string    `json:"last_error,omitempty"`

	Input            string `json:"input,omitempty"`
	Output           string `json:"output,omitempty"`
	Records          int    `json:"records"`
	APICalls         int    `json:"api_calls"`
	EnrichmentErrors int    `json:"enrichment_errors"`
	Ingested         bool   `json:"ingested"`
}

// Manager persists one JSON checkpoint file per batch.
type Manager struct {
	checkpointDir string
}

// NewManager creates checkpointDir if needed; an empty dir means
// os.TempDir()/casegraph-checkpoints.
func NewManager(checkpointDir string) (*Manager, error) {
	if checkpointDir == "" {
		checkpointDir = filepath.Join(os.TempDir(), "casegraph-checkpoints")
	}

	if err := os.MkdirAll(checkpointDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	return &Manager{
		checkpointDir: checkpointDir,
	}, nil
}

// validateBatchID rejects IDs containing path separators, traversal sequences or null bytes.
func validateBatchID(batchID string) error {
	if batchID == "" {
		return ErrInvalidBatchID
	}
	if strings.Contains(batchID, "..") || strings.ContainsAny(batchID, `/\`) || strings.ContainsRune(batchID, '\x00') {
		return ErrInvalidBatchID
	}
	return nil
}

// Path returns the checkpoint file of batchID, always inside Dir.
func (m *Manager) Path(batchID string) (string, error) {
	if err := validateBatchID(batchID); err != nil {
		return "", err
	}
	p := filepath.Join(m.checkpointDir, "checkpoint_"+batchID+".json")
	if rel, err := filepath.Rel(m.checkpointDir, p); err != nil || strings.HasPrefix(rel, "..") {
		return "", ErrInvalidBatchID
	}
	return p, nil
}

// Save stamps LastUpdatedAt and replaces the file atomically.
func (m *Manager) Save(ctx context.Context, cp *BatchCheckpoint) error {
	p, err := m.Path(cp.BatchID)
	if err != nil {
		return err
	}
	cp.LastUpdatedAt = time.Now()
	if err := utils.WriteJSONAtomic(p, cp); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.BatchID, err)
	}
	return nil
}

func readCheckpoint(path string) (*BatchCheckpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cp := &BatchCheckpoint{}
	if err := json.Unmarshal(data, cp); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return cp, nil
}

// Load returns nil, nil when the batch has no checkpoint yet.
func (m *Manager) Load(ctx context.Context, batchID string) (*BatchCheckpoint, error) {
	p, err := m.Path(batchID)
	if err != nil {
		return nil, err
	}
	cp, err := readCheckpoint(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return cp, err
}

func (m *Manager) Delete(ctx context.Context, batchID string) error {
	p, err := m.Path(batchID)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete checkpoint %s: %w", batchID, err)
	}
	return nil
}

// List returns every readable checkpoint ordered by batch ID; corrupt files
// are skipped.
func (m *Manager) List(ctx context.Context) ([]*BatchCheckpoint, error) {
	if _, err := os.Stat(m.checkpointDir); err != nil {
		return nil, fmt.Errorf("read checkpoint directory: %w", err)
	}
	paths, err := filepath.Glob(filepath.Join(m.checkpointDir, "checkpoint_*.json"))
	if err != nil {
		return nil, err
	}

	out := make([]*BatchCheckpoint, 0, len(paths))
	for _, p := range paths {
		if cp, err := readCheckpoint(p); err == nil {
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BatchID < out[j].BatchID })
	return out, nil
}

// Begin marks the batch InProgress and counts the attempt, creating the checkpoint if
// needed.
func (m *Manager) Begin(ctx context.Context, batchID, input, output string) (*BatchCheckpoint, error) {
	checkpoint, err := m.Load(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if checkpoint == nil {
		checkpoint = NewCheckpoint(batchID)
	}
	checkpoint.State = StateInProgress
	checkpoint.AttemptCount++
	checkpoint.Input = input
	checkpoint.Output = output
	checkpoint.LastError = ""
	checkpoint.Ingested = false
	return checkpoint, m.Save(ctx, checkpoint)
}

// RecordError marks the batch failed with err.
func (m *Manager) RecordError(ctx context.Context, batchID string, err error) error {
	checkpoint, loadErr := m.Load(ctx, batchID)
	if loadErr != nil {
		return loadErr
	}
	if checkpoint == nil {
		checkpoint = NewCheckpoint(batchID)
		checkpoint.AttemptCount = 1
	}
	checkpoint.State = StateFailed
	checkpoint.LastError = err.Error()
	return m.Save(ctx, checkpoint)
}

func (m *Manager) Dir() string {
	return m.checkpointDir
}

// CleanOld deletes checkpoints not updated within maxAge and reports how
// many went.
func (m *Manager) CleanOld(ctx context.Context, maxAge time.Duration) (int, error) {
	all, err := m.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, cp := range all {
		if cp.LastUpdatedAt.After(cutoff) {
			continue
		}
		if m.Delete(ctx, cp.BatchID) == nil {
			removed++
		}
	}
	return removed, nil
}
