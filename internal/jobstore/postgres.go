package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/tablecraft/export-worker/internal/platform/log"
)

// Postgres is the relational JobStore implementation: atomic claim via
// SELECT ... FOR UPDATE SKIP LOCKED inside a transaction, mirroring
// ClaimNextRunnable's select-then-update shape but over plain database/sql.
type Postgres struct {
	db         *sql.DB
	logger     *zap.Logger
	maxRetries int
	retryDelay time.Duration
}

// PostgresConfig configures connection pooling and the transport retry
// wrapper every JobStore method runs its query through.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
}

// NewPostgres opens a connection pool, runs embedded migrations, and
// returns a ready Store.
func NewPostgres(ctx context.Context, cfg PostgresConfig, logger *zap.Logger) (*Postgres, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}
	lifetime := cfg.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = 5 * time.Minute
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}

	p := &Postgres{db: db, logger: logger, maxRetries: maxRetries, retryDelay: retryDelay}

	if err := p.withRetry(ctx, func() error { return db.PingContext(ctx) }); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return p, nil
}

// withRetry wraps a transient-failure-prone call with up to maxRetries
// extra attempts at exponential delay from the configured base, per §5's
// "all calls go through a retry wrapper" resource policy.
func (p *Postgres) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := p.retryDelay
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if err := fn(); err != nil {
			if errors.Is(err, ErrNotFound) {
				// Not a transient connection failure; a row that's no longer
				// in the expected state (e.g. a racing Complete/stale-sweep)
				// won't become eligible by waiting, so don't burn the retry
				// budget's delay on it.
				return err
			}
			lastErr = err
			if attempt == p.maxRetries {
				break
			}
			p.logger.Warn("transient_db retry", log.Int("attempt", attempt+1), log.Err(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			continue
		}
		return nil
	}
	return fmt.Errorf("transient_db: exhausted %d retries: %w", p.maxRetries, lastErr)
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.withRetry(ctx, func() error { return p.db.PingContext(ctx) })
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) Claim(ctx context.Context, family Family, workerID string) (*Job, error) {
	var claimed *Job
	err := p.withRetry(ctx, func() error {
		tx, err := p.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		now := time.Now()
		row := tx.QueryRowContext(ctx, `
			SELECT id, owner_id, target_id, family, kind, state, priority, retry_count,
			       available_at, coalesce(worker_id, ''), started_at, updated_at, completed_at,
			       created_at, coalesce(storage_path, ''), coalesce(artifact_url, ''),
			       coalesce(error_message, ''), metadata
			FROM jobs
			WHERE family = $1 AND state = $2 AND available_at <= $3
			ORDER BY priority DESC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		`, family, StatePending, now)

		job, scanErr := scanJob(row)
		if errors.Is(scanErr, sql.ErrNoRows) {
			claimed = nil
			return tx.Commit()
		}
		if scanErr != nil {
			return scanErr
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE jobs SET state = $1, worker_id = $2, started_at = $3, updated_at = $3
			WHERE id = $4
		`, StateProcessing, workerID, now, job.ID); err != nil {
			return err
		}

		job.State = StateProcessing
		job.WorkerID = workerID
		job.StartedAt = &now
		job.UpdatedAt = now
		claimed = job
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	if claimed == nil {
		return nil, ErrEmpty
	}
	return claimed, nil
}

func scanJob(row *sql.Row) (*Job, error) {
	var j Job
	var metadata []byte
	if err := row.Scan(
		&j.ID, &j.OwnerID, &j.TargetID, &j.Family, &j.Kind, &j.State, &j.Priority, &j.RetryCount,
		&j.AvailableAt, &j.WorkerID, &j.StartedAt, &j.UpdatedAt, &j.CompletedAt,
		&j.CreatedAt, &j.StoragePath, &j.ArtifactURL, &j.ErrorMessage, &metadata,
	); err != nil {
		return nil, err
	}
	j.Metadata = json.RawMessage(metadata)
	return &j, nil
}

func (p *Postgres) SetProcessingFields(ctx context.Context, id string, storagePath string) error {
	return p.withRetry(ctx, func() error {
		res, err := p.db.ExecContext(ctx, `
			UPDATE jobs SET storage_path = $1, updated_at = now()
			WHERE id = $2 AND state = $3
		`, storagePath, id, StateProcessing)
		return checkAffected(res, err)
	})
}

func (p *Postgres) Complete(ctx context.Context, id string, storagePath, artifactURL string) error {
	return p.withRetry(ctx, func() error {
		res, err := p.db.ExecContext(ctx, `
			UPDATE jobs SET state = $1, storage_path = $2, artifact_url = $3,
			       completed_at = now(), updated_at = now()
			WHERE id = $4 AND state = $5
		`, StateCompleted, storagePath, artifactURL, id, StateProcessing)
		return checkAffected(res, err)
	})
}

func (p *Postgres) FailTerminal(ctx context.Context, id string, userMessage string) error {
	return p.withRetry(ctx, func() error {
		res, err := p.db.ExecContext(ctx, `
			UPDATE jobs SET state = $1, error_message = $2, completed_at = now(), updated_at = now()
			WHERE id = $3
		`, StateFailed, userMessage, id)
		return checkAffected(res, err)
	})
}

func (p *Postgres) ResetWithBackoff(ctx context.Context, id string, delay time.Duration, internalMessage string) error {
	return p.withRetry(ctx, func() error {
		res, err := p.db.ExecContext(ctx, `
			UPDATE jobs SET state = $1, retry_count = retry_count + 1,
			       available_at = now() + $2::interval, worker_id = NULL,
			       started_at = NULL, error_message = $3, updated_at = now()
			WHERE id = $4 AND state = $5
		`, StatePending, fmt.Sprintf("%d seconds", int64(delay.Seconds())), internalMessage, id, StateProcessing)
		return checkAffected(res, err)
	})
}

func (p *Postgres) ResetImmediate(ctx context.Context, id string) error {
	return p.withRetry(ctx, func() error {
		res, err := p.db.ExecContext(ctx, `
			UPDATE jobs SET state = $1, available_at = now(), worker_id = NULL,
			       started_at = NULL, updated_at = now()
			WHERE id = $2 AND state = $3
		`, StatePending, id, StateProcessing)
		return checkAffected(res, err)
	})
}

func (p *Postgres) FindStale(ctx context.Context, threshold time.Duration) ([]string, error) {
	var ids []string
	err := p.withRetry(ctx, func() error {
		ids = nil
		rows, err := p.db.QueryContext(ctx, `
			SELECT id FROM jobs WHERE state = $1 AND started_at < now() - $2::interval
		`, StateProcessing, fmt.Sprintf("%d seconds", int64(threshold.Seconds())))
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	return ids, err
}

func (p *Postgres) ResetAllStale(ctx context.Context, threshold time.Duration) (int, error) {
	var count int
	err := p.withRetry(ctx, func() error {
		res, err := p.db.ExecContext(ctx, `
			UPDATE jobs SET state = $1, available_at = now(), worker_id = NULL, started_at = NULL, updated_at = now()
			WHERE state = $2 AND started_at < now() - $3::interval
		`, StatePending, StateProcessing, fmt.Sprintf("%d seconds", int64(threshold.Seconds())))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		count = int(n)
		return err
	})
	return count, err
}

func (p *Postgres) QueueDepth(ctx context.Context, family Family) (int64, error) {
	var n int64
	err := p.withRetry(ctx, func() error {
		return p.db.QueryRowContext(ctx, `
			SELECT count(*) FROM jobs WHERE family = $1 AND state = $2 AND available_at <= now()
		`, family, StatePending).Scan(&n)
	})
	return n, err
}

func (p *Postgres) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := p.withRetry(ctx, func() error {
		row := p.db.QueryRowContext(ctx, `
			SELECT
				count(*) FILTER (WHERE state = 'pending'),
				count(*) FILTER (WHERE state = 'processing'),
				count(*) FILTER (WHERE state = 'completed' AND completed_at > now() - interval '24 hours'),
				count(*) FILTER (WHERE state = 'failed' AND completed_at > now() - interval '24 hours'),
				coalesce(avg(extract(epoch FROM completed_at - started_at)) FILTER (WHERE state = 'completed' AND completed_at > now() - interval '24 hours'), 0),
				coalesce(max(extract(epoch FROM now() - created_at)) FILTER (WHERE state = 'pending'), 0)
			FROM jobs
		`)
		return row.Scan(&s.Pending, &s.Processing, &s.Completed24h, &s.Failed24h, &s.AvgProcessingSeconds, &s.OldestPendingSeconds)
	})
	return s, err
}

func (p *Postgres) Peek(ctx context.Context, state State, n int) ([]Job, error) {
	if n <= 0 {
		n = 20
	}
	var jobs []Job
	err := p.withRetry(ctx, func() error {
		jobs = nil
		rows, err := p.db.QueryContext(ctx, `
			SELECT id, owner_id, target_id, family, kind, state, priority, retry_count,
			       available_at, coalesce(worker_id, ''), started_at, updated_at, completed_at,
			       created_at, coalesce(storage_path, ''), coalesce(artifact_url, ''),
			       coalesce(error_message, ''), metadata
			FROM jobs WHERE state = $1 ORDER BY created_at DESC LIMIT $2
		`, state, n)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var j Job
			var metadata []byte
			if err := rows.Scan(
				&j.ID, &j.OwnerID, &j.TargetID, &j.Family, &j.Kind, &j.State, &j.Priority, &j.RetryCount,
				&j.AvailableAt, &j.WorkerID, &j.StartedAt, &j.UpdatedAt, &j.CompletedAt,
				&j.CreatedAt, &j.StoragePath, &j.ArtifactURL, &j.ErrorMessage, &metadata,
			); err != nil {
				return err
			}
			j.Metadata = metadata
			jobs = append(jobs, j)
		}
		return rows.Err()
	})
	return jobs, err
}

func (p *Postgres) FindOldCompleted(ctx context.Context, before time.Time) ([]CompletedRef, error) {
	var refs []CompletedRef
	err := p.withRetry(ctx, func() error {
		refs = nil
		rows, err := p.db.QueryContext(ctx, `
			SELECT id, storage_path FROM jobs WHERE state = $1 AND created_at < $2
		`, StateCompleted, before)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r CompletedRef
			if err := rows.Scan(&r.ID, &r.StoragePath); err != nil {
				return err
			}
			refs = append(refs, r)
		}
		return rows.Err()
	})
	return refs, err
}

func (p *Postgres) DeleteOldCompleted(ctx context.Context, before time.Time) (int, error) {
	var count int
	err := p.withRetry(ctx, func() error {
		res, err := p.db.ExecContext(ctx, `
			DELETE FROM jobs WHERE state = $1 AND created_at < $2
		`, StateCompleted, before)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		count = int(n)
		return err
	})
	return count, err
}

func (p *Postgres) CountRecentForOwner(ctx context.Context, ownerID string, window time.Duration) (int64, error) {
	var n int64
	err := p.withRetry(ctx, func() error {
		return p.db.QueryRowContext(ctx, `
			SELECT count(*) FROM jobs WHERE owner_id = $1 AND created_at > now() - $2::interval
		`, ownerID, fmt.Sprintf("%d seconds", int64(window.Seconds()))).Scan(&n)
	})
	return n, err
}

func (p *Postgres) CountActiveForOwner(ctx context.Context, ownerID string) (int64, error) {
	var n int64
	err := p.withRetry(ctx, func() error {
		return p.db.QueryRowContext(ctx, `
			SELECT count(*) FROM jobs WHERE owner_id = $1 AND state IN ($2, $3)
		`, ownerID, StatePending, StateProcessing).Scan(&n)
	})
	return n, err
}

func checkAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Store = (*Postgres)(nil)
