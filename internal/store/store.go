// Package store provides optional PostgreSQL persistence of scan results.
// The analysis core never touches it; the CLI wires it in when configured.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/api/schemas"
)

// DBPool abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store persists scan envelopes to PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

const sqlInsertScan = `
        INSERT INTO scans (id, started_at, files_analyzed, files_failed, issue_count, duration_ms)
        VALUES ($1, $2, $3, $4, $5, $6)`

// PersistScan writes the scan row and bulk-inserts its issues in one
// transaction.
func (s *Store) PersistScan(ctx context.Context, result *schemas.ScanResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback on an already committed transaction returns ErrTxClosed,
		// which is not worth logging.
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if _, err := tx.Exec(ctx, sqlInsertScan,
		result.ScanID,
		result.StartedAt.UTC(),
		result.Metrics.FilesAnalyzed,
		result.Metrics.FilesFailed,
		result.Metrics.IssueCount,
		result.Metrics.Duration.Milliseconds(),
	); err != nil {
		return fmt.Errorf("failed to insert scan: %w", err)
	}

	if err := s.persistIssues(ctx, tx, result); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) persistIssues(ctx context.Context, tx pgx.Tx, result *schemas.ScanResult) error {
	var rows [][]any
	for _, report := range result.Reports {
		for _, issue := range report.Issues {
			taintPath, err := json.Marshal(issue.TaintPath)
			if err != nil {
				return fmt.Errorf("failed to marshal taint path: %w", err)
			}
			if len(taintPath) == 0 || string(taintPath) == "null" {
				taintPath = json.RawMessage("[]")
			}
			rows = append(rows, []any{
				issue.ID,
				result.ScanID,
				issue.Location.File,
				string(issue.Category),
				string(issue.Severity),
				issue.Message,
				issue.Location.StartLine,
				issue.Snippet,
				issue.Remediation,
				issue.Detector,
				taintPath,
			})
		}
	}
	if len(rows) == 0 {
		return nil
	}

	copied, err := tx.CopyFrom(ctx,
		pgx.Identifier{"security_issues"},
		[]string{"id", "scan_id", "file", "category", "severity", "message", "line", "snippet", "remediation", "detector", "taint_path"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy issues: %w", err)
	}
	if copied != int64(len(rows)) {
		return fmt.Errorf("expected to copy %d issues, copied %d", len(rows), copied)
	}
	s.log.Debug("Persisted issues", zap.Int64("count", copied))
	return nil
}
