package persist

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/opus-nx/swarm/pkg/models"
)

// CreateHypothesisExperiment inserts a new experiment row. Replays of
// the same id are no-ops so the retry layer stays safe.
func (s *Store) CreateHypothesisExperiment(ctx context.Context, exp *models.HypothesisExperiment) error {
	metadata, err := json.Marshal(orEmptyMap(exp.Metadata))
	if err != nil {
		return fmt.Errorf("marshal experiment metadata: %w", err)
	}

	var comparison any
	if exp.ComparisonResult != nil {
		comparison, err = json.Marshal(exp.ComparisonResult)
		if err != nil {
			return fmt.Errorf("marshal comparison_result: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO hypothesis_experiments (
			id, session_id, hypothesis_node_id, alternative_summary,
			status, comparison_result, retention_decision,
			preferred_run_id, rerun_run_id, promoted_by, metadata,
			created_at, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING`,
		exp.ID, exp.SessionID, nullString(exp.NodeID), nullString(exp.AlternativeSummary),
		string(exp.Status), comparison, nullString(string(exp.RetentionDecision)),
		nullString(exp.PreferredRunID), nullString(exp.RerunRunID),
		nullString(exp.PromotedBy), metadata, exp.CreatedAt, exp.UpdatedAt,
	)
	if err != nil {
		return s.mapError(err)
	}
	return nil
}

// UpdateHypothesisExperiment applies a partial update; nil fields are
// untouched. last_updated always advances.
func (s *Store) UpdateHypothesisExperiment(ctx context.Context, id string, update ExperimentUpdate) error {
	sets := []string{"last_updated = now()"}
	var args []any
	idx := 1

	add := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, idx))
		args = append(args, value)
		idx++
	}

	if update.Status != nil {
		add("status", string(*update.Status))
	}
	if update.ComparisonResult != nil {
		raw, err := json.Marshal(update.ComparisonResult)
		if err != nil {
			return fmt.Errorf("marshal comparison_result: %w", err)
		}
		add("comparison_result", raw)
	}
	if update.RetentionDecision != nil {
		add("retention_decision", string(*update.RetentionDecision))
	}
	if update.PreferredRunID != nil {
		add("preferred_run_id", nullString(*update.PreferredRunID))
	}
	if update.RerunRunID != nil {
		add("rerun_run_id", nullString(*update.RerunRunID))
	}
	if update.Metadata != nil {
		raw, err := json.Marshal(update.Metadata)
		if err != nil {
			return fmt.Errorf("marshal experiment metadata: %w", err)
		}
		add("metadata", raw)
	}

	query := fmt.Sprintf(
		"UPDATE hypothesis_experiments SET %s WHERE id = $%d",
		strings.Join(sets, ", "), idx)
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return s.mapError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetHypothesisExperiment loads one experiment row.
func (s *Store) GetHypothesisExperiment(ctx context.Context, id string) (*models.HypothesisExperiment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, hypothesis_node_id, alternative_summary,
		       status, comparison_result, retention_decision,
		       preferred_run_id, rerun_run_id, promoted_by, metadata,
		       created_at, last_updated
		FROM hypothesis_experiments
		WHERE id = $1`, id)

	exp, err := scanExperiment(row)
	if err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, s.mapError(err)
	}
	return exp, nil
}

// ListSessionHypothesisExperiments returns a session's experiments,
// most recently updated first.
func (s *Store) ListSessionHypothesisExperiments(ctx context.Context, sessionID string, opts ListOpts) ([]*models.HypothesisExperiment, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, session_id, hypothesis_node_id, alternative_summary,
		       status, comparison_result, retention_decision,
		       preferred_run_id, rerun_run_id, promoted_by, metadata,
		       created_at, last_updated
		FROM hypothesis_experiments
		WHERE session_id = $1`
	args := []any{sessionID}
	if opts.Status != "" {
		query += " AND status = $2"
		args = append(args, opts.Status)
	}
	query += fmt.Sprintf(" ORDER BY last_updated DESC LIMIT %d", limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.mapError(err)
	}
	defer rows.Close()

	var experiments []*models.HypothesisExperiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, err
		}
		experiments = append(experiments, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, s.mapError(err)
	}
	return experiments, nil
}

// CreateHypothesisExperimentAction appends an audit entry.
func (s *Store) CreateHypothesisExperimentAction(ctx context.Context, action *models.ExperimentAction) error {
	details, err := json.Marshal(orEmptyMap(action.Details))
	if err != nil {
		return fmt.Errorf("marshal action details: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO hypothesis_experiment_actions (
			id, experiment_id, session_id, action, performed_by, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		action.ID, action.ExperimentID, action.SessionID, action.Action,
		nullString(action.PerformedBy), details, action.CreatedAt,
	)
	if err != nil {
		return s.mapError(err)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanExperiment(row scanner) (*models.HypothesisExperiment, error) {
	var (
		exp               models.HypothesisExperiment
		nodeID            stdsql.NullString
		summary           stdsql.NullString
		status            string
		comparison        []byte
		retentionDecision stdsql.NullString
		preferredRunID    stdsql.NullString
		rerunRunID        stdsql.NullString
		promotedBy        stdsql.NullString
		metadata          []byte
	)

	err := row.Scan(
		&exp.ID, &exp.SessionID, &nodeID, &summary, &status,
		&comparison, &retentionDecision, &preferredRunID, &rerunRunID,
		&promotedBy, &metadata, &exp.CreatedAt, &exp.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	exp.NodeID = nodeID.String
	exp.AlternativeSummary = summary.String
	exp.Status = models.ExperimentStatus(status)
	exp.RetentionDecision = models.RetentionDecision(retentionDecision.String)
	exp.PreferredRunID = preferredRunID.String
	exp.RerunRunID = rerunRunID.String
	exp.PromotedBy = promotedBy.String

	if len(comparison) > 0 {
		if err := json.Unmarshal(comparison, &exp.ComparisonResult); err != nil {
			return nil, fmt.Errorf("unmarshal comparison_result: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &exp.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal experiment metadata: %w", err)
		}
	}

	return &exp, nil
}
