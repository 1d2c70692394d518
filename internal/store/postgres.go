package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const maxUpdateAttempts = 8

type Postgres struct {
	db  *pgxpool.Pool
	log *slog.Logger
}

func NewPostgres(db *pgxpool.Pool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{db: db, log: logger}
}

func (p *Postgres) Load(ctx context.Context, playerID string) ([]byte, error) {
	id, err := validPlayer(playerID)
	if err != nil {
		return nil, err
	}
	var data []byte
	err = p.db.QueryRow(ctx, `
		SELECT data
		FROM forge.saves
		WHERE player_id = $1
	`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load save: %w", err)
	}
	return data, nil
}

func (p *Postgres) Save(ctx context.Context, playerID string, data []byte) error {
	id, err := validPlayer(playerID)
	if err != nil {
		return err
	}
	if _, err := p.db.Exec(ctx, upsertSave, id, data); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

const upsertSave = `
	INSERT INTO forge.saves (player_id, data)
	VALUES ($1, $2::jsonb)
	ON CONFLICT (player_id) DO UPDATE
	SET data = EXCLUDED.data,
		revision = forge.saves.revision + 1,
		updated_at = now()
`

// Update locks the row for the duration of fn and retries serialization
// failures with backoff.
func (p *Postgres) Update(ctx context.Context, playerID string, fn UpdateFunc) error {
	id, err := validPlayer(playerID)
	if err != nil {
		return err
	}

	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		tx, err := p.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return fmt.Errorf("begin update: %w", err)
		}
		err = func() error {
			defer tx.Rollback(ctx)

			var current []byte
			err := tx.QueryRow(ctx, `
				SELECT data
				FROM forge.saves
				WHERE player_id = $1
				FOR UPDATE
			`, id).Scan(&current)
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return err
			}
			next, err := fn(current)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, upsertSave, id, next); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err == nil {
			return nil
		}
		if !isSerializationError(err) {
			return err
		}
		p.log.Debug("save update conflict", "player_id", id, "attempt", attempt+1)
		if attempt == maxUpdateAttempts-1 {
			return ErrConflict
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return ErrConflict
}

func (p *Postgres) Players(ctx context.Context) ([]string, error) {
	rows, err := p.db.Query(ctx, `
		SELECT player_id
		FROM forge.saves
		ORDER BY player_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	return ids, nil
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
