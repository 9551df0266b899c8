package ports

import (
	"context"

	"gomatch/domain/core"
	"gomatch/domain/matching"
)

// RunRepositoryPort persists completed matching runs for later retrieval.
// Runs are immutable once saved.
type RunRepositoryPort interface {
	// Save stores a run artifact with its pairs, balance rows and test result
	Save(ctx context.Context, run *matching.RunArtifact) error

	// GetByID retrieves a run; ErrRunNotFound when absent
	GetByID(ctx context.Context, id core.RunID) (*matching.RunArtifact, error)

	// ListRecent returns run summaries, newest first
	ListRecent(ctx context.Context, limit int) ([]RunSummary, error)
}

// RunSummary is the list view of a stored run
type RunSummary struct {
	RunID        core.RunID     `json:"run_id"`
	TreatedCount int            `json:"treated_count"`
	ControlCount int            `json:"control_count"`
	PairCount    int            `json:"pair_count"`
	PValue       *float64       `json:"p_value,omitempty"`
	CreatedAt    core.Timestamp `json:"created_at"`
}
