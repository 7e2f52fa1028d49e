package dbosruntime

import (
	"context"
	"database/sql"
	"fmt"
)

// RunStatus is a row from the DBOS workflow status table.
type RunStatus struct {
	RunID     string `json:"run_id"`
	Status    string `json:"status"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// GetRunStatus reads a workflow's status straight from the DBOS system
// tables. The second return value is false when no run exists for the ID.
func (r *Runtime) GetRunStatus(ctx context.Context, runID string) (*RunStatus, bool, error) {
	query := `
		SELECT workflow_uuid, status, name, created_at, updated_at
		FROM dbos.workflow_status
		WHERE workflow_uuid = $1
	`

	var status RunStatus
	err := r.db.QueryRowContext(ctx, query, runID).Scan(
		&status.RunID,
		&status.Status,
		&status.Name,
		&status.CreatedAt,
		&status.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query run status: %w", err)
	}
	return &status, true, nil
}
