package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/fieldscope/mediaworks/internal/domain"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists artifact jobs (source of truth for the state machine).
// Concurrency control is the primary-key constraint on asset_id, not
// application-level locking.
type Store struct {
	pool *pgxpool.Pool
	db   querier
}

func New(pool *pgxpool.Pool) *Store { return &Store{pool: pool, db: pool} }

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// WithTx runs fn against a store bound to a single transaction. Nested calls
// are not supported.
func (s *Store) WithTx(ctx context.Context, fn func(*Store) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&Store{pool: s.pool, db: tx}); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(ctx), "commit tx")
}

// CreateJobParams describes the row written on first submission. A non-nil
// AudioOutputKey enables the audio track.
type CreateJobParams struct {
	AssetID        uuid.UUID
	OutputKey      string
	AudioOutputKey *string
	CreatedBy      uuid.UUID
}

// InsertIfAbsent creates a Preparing row and reports whether it actually
// inserted. The conflict target decides the winner under concurrent
// submissions for the same asset.
func (s *Store) InsertIfAbsent(ctx context.Context, p CreateJobParams) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		insert into artifact_jobs
			(asset_id, status, output_key, audio_status, audio_output_key, created_by, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
		on conflict (asset_id) do nothing`,
		p.AssetID, domain.StatusPreparing, p.OutputKey,
		audioStatusFor(p.AudioOutputKey), p.AudioOutputKey,
		p.CreatedBy, time.Now().UTC(),
	)
	if err != nil {
		return false, errors.Wrap(err, "insert job")
	}
	return tag.RowsAffected() == 1, nil
}

// ForceReset puts the job back into Preparing regardless of its current
// state, creating the row if it does not exist. The audio track is only
// reset when the new submission requests audio analysis.
func (s *Store) ForceReset(ctx context.Context, p CreateJobParams) error {
	_, err := s.db.Exec(ctx, `
		insert into artifact_jobs
			(asset_id, status, output_key, audio_status, audio_output_key, created_by, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
		on conflict (asset_id) do update set
			status            = excluded.status,
			output_key        = excluded.output_key,
			audio_status      = coalesce(excluded.audio_status, artifact_jobs.audio_status),
			audio_output_key  = coalesce(excluded.audio_output_key, artifact_jobs.audio_output_key),
			error_message     = null,
			audio_error_message = case
				when excluded.audio_status is not null then null
				else artifact_jobs.audio_error_message
			end,
			completed_at      = null`,
		p.AssetID, domain.StatusPreparing, p.OutputKey,
		audioStatusFor(p.AudioOutputKey), p.AudioOutputKey,
		p.CreatedBy, time.Now().UTC(),
	)
	return errors.Wrap(err, "force reset job")
}

// Submit runs the submission write as one transactional unit: insert if
// absent, plus a force reset when the row already existed and force was
// requested. The returned flag tells the caller whether to send a request
// message once the write has committed.
func (s *Store) Submit(ctx context.Context, p CreateJobParams, force bool) (bool, error) {
	var send bool
	err := s.WithTx(ctx, func(tx *Store) error {
		created, err := tx.InsertIfAbsent(ctx, p)
		if err != nil {
			return err
		}
		if !created && force {
			if err := tx.ForceReset(ctx, p); err != nil {
				return err
			}
		}
		send = created || force
		return nil
	})
	if err != nil {
		return false, err
	}
	return send, nil
}

// MarkReady records a successful primary completion. Re-applying a terminal
// state is a no-op as far as callers are concerned; redelivered completions
// must not fail.
func (s *Store) MarkReady(ctx context.Context, assetID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		update artifact_jobs
		set status = $2, error_message = null, completed_at = $3
		where asset_id = $1`,
		assetID, domain.StatusReady, time.Now().UTC(),
	)
	return errors.Wrap(err, "mark job ready")
}

func (s *Store) MarkErrored(ctx context.Context, assetID uuid.UUID, message string) error {
	_, err := s.db.Exec(ctx, `
		update artifact_jobs
		set status = $2, error_message = $3, completed_at = $4
		where asset_id = $1`,
		assetID, domain.StatusErrored, message, time.Now().UTC(),
	)
	return errors.Wrap(err, "mark job errored")
}

func (s *Store) MarkAudioReady(ctx context.Context, assetID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		update artifact_jobs
		set audio_status = $2, audio_error_message = null
		where asset_id = $1`,
		assetID, domain.StatusReady,
	)
	return errors.Wrap(err, "mark audio ready")
}

func (s *Store) MarkAudioErrored(ctx context.Context, assetID uuid.UUID, message string) error {
	_, err := s.db.Exec(ctx, `
		update artifact_jobs
		set audio_status = $2, audio_error_message = $3
		where asset_id = $1`,
		assetID, domain.StatusErrored, message,
	)
	return errors.Wrap(err, "mark audio errored")
}

func (s *Store) Fetch(ctx context.Context, assetID uuid.UUID) (*domain.Job, error) {
	row := s.db.QueryRow(ctx, `
		select asset_id, status, output_key, audio_status, audio_output_key,
		       error_message, audio_error_message, created_by, created_at, completed_at
		from artifact_jobs
		where asset_id = $1`,
		assetID,
	)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "fetch job")
	}
	return job, nil
}

// ListByObservation returns jobs for every media file linked to the
// observation, ordered by asset id for stable output.
func (s *Store) ListByObservation(ctx context.Context, observationID uuid.UUID) ([]domain.Job, error) {
	rows, err := s.db.Query(ctx, `
		select j.asset_id, j.status, j.output_key, j.audio_status, j.audio_output_key,
		       j.error_message, j.audio_error_message, j.created_by, j.created_at, j.completed_at
		from artifact_jobs j
		join observation_media om on om.file_id = j.asset_id
		where om.observation_id = $1
		order by j.asset_id`,
		observationID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "list jobs")
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan job")
		}
		jobs = append(jobs, *job)
	}
	return jobs, errors.Wrap(rows.Err(), "list jobs")
}

// MediaFileKey returns the storage key of the source video for an asset.
func (s *Store) MediaFileKey(ctx context.Context, assetID uuid.UUID) (string, error) {
	var key string
	err := s.db.QueryRow(ctx,
		`select storage_key from media_files where id = $1`, assetID,
	).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "fetch media file key")
	}
	return key, nil
}

// AssociationExists reports whether the asset is actually reachable from the
// observation. Callers treat false the same as a missing asset.
func (s *Store) AssociationExists(ctx context.Context, observationID, assetID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		select exists (
			select 1 from observation_media
			where observation_id = $1 and file_id = $2
		)`,
		observationID, assetID,
	).Scan(&exists)
	return exists, errors.Wrap(err, "check association")
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var j domain.Job
	err := row.Scan(
		&j.AssetID, &j.Status, &j.OutputKey, &j.AudioStatus, &j.AudioOutputKey,
		&j.ErrorMessage, &j.AudioErrorMessage, &j.CreatedBy, &j.CreatedAt, &j.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func audioStatusFor(audioOutputKey *string) *domain.AssetStatus {
	if audioOutputKey == nil {
		return nil
	}
	st := domain.StatusPreparing
	return &st
}
