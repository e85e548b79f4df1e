package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pogoaccountserver/backend/apperrors"
	"github.com/pogoaccountserver/backend/metrics"
)

// PGStore is the pgxpool-backed AccountStore. Every query is parameterized;
// no caller-supplied string is ever concatenated into SQL text.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wraps an already-configured pool. Callers build the pool
// (and its DSN) themselves so connection lifetime is owned by main.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	metrics.StoreError(op)
	return apperrors.Wrap(fmt.Sprintf("store: %s", op), err)
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	var inUseBy *string
	var lastUse, lastReturned, lastBurned *int64
	err := row.Scan(&a.Username, &a.Password, &a.Level, &inUseBy, &lastUse, &lastReturned, &lastBurned)
	if err != nil {
		return Account{}, err
	}
	if inUseBy != nil {
		a.InUseBy = *inUseBy
	}
	if lastUse != nil {
		a.LastUse = *lastUse
	}
	if lastReturned != nil {
		a.LastReturned = *lastReturned
	}
	if lastBurned != nil {
		a.LastBurned = *lastBurned
	}
	return a, nil
}

const accountColumns = "username, password, level, in_use_by, last_use, last_returned, last_burned"

func (s *PGStore) UpsertMany(ctx context.Context, pairs []CredentialPair) error {
	if len(pairs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range pairs {
		batch.Queue(
			`INSERT INTO accounts (username, password, level)
			 VALUES ($1, $2, 0)
			 ON CONFLICT (username) DO UPDATE SET password = EXCLUDED.password`,
			p.Username, p.Password,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range pairs {
		if _, err := br.Exec(); err != nil {
			return wrapErr("upsert_many", err)
		}
	}
	return nil
}

func (s *PGStore) PickFree(ctx context.Context, minLevel int, cooldownCutoff int64) (Account, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE level >= $1
		  AND in_use_by IS NULL
		  AND COALESCE(last_returned, 0) < $2
		  AND COALESCE(last_burned, 0) < $2
		ORDER BY COALESCE(last_use, 0) ASC, username ASC
		LIMIT 1`,
		minLevel, cooldownCutoff,
	)

	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, false, nil
	}
	if err != nil {
		return Account{}, false, wrapErr("pick_free", err)
	}
	return a, true, nil
}

func (s *PGStore) FindByUsername(ctx context.Context, username string) (Account, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, false, nil
	}
	if err != nil {
		return Account{}, false, wrapErr("find_by_username", err)
	}
	return a, true, nil
}

func (s *PGStore) CurrentFor(ctx context.Context, device string) (Account, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE in_use_by = $1 LIMIT 1`, device)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, false, nil
	}
	if err != nil {
		return Account{}, false, wrapErr("current_for", err)
	}
	return a, true, nil
}

func (s *PGStore) ReleaseAllFor(ctx context.Context, device string, now int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET in_use_by = NULL, last_returned = $2
		WHERE in_use_by = $1`,
		device, now,
	)
	return wrapErr("release_all_for", err)
}

func (s *PGStore) Assign(ctx context.Context, username, device string, now int64, stampLastUse bool) error {
	var err error
	if stampLastUse {
		_, err = s.pool.Exec(ctx, `
			UPDATE accounts SET in_use_by = $1, last_use = $2 WHERE username = $3`,
			device, now, username,
		)
	} else {
		_, err = s.pool.Exec(ctx, `
			UPDATE accounts SET in_use_by = $1 WHERE username = $2`,
			device, username,
		)
	}
	return wrapErr("assign", err)
}

func (s *PGStore) SetLevel(ctx context.Context, username string, level int) error {
	_, err := s.pool.Exec(ctx, `UPDATE accounts SET level = $1 WHERE username = $2`, level, username)
	return wrapErr("set_level", err)
}

func (s *PGStore) SetBurned(ctx context.Context, username string, ts int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE accounts SET last_burned = $1 WHERE username = $2`, ts, username)
	return wrapErr("set_burned", err)
}

func (s *PGStore) LatestUseIn(ctx context.Context, device string, extraUsernames []string) (int64, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(last_use), 0)
		FROM accounts
		WHERE in_use_by = $1 OR username = ANY($2)`,
		device, extraUsernames,
	)
	var latest int64
	if err := row.Scan(&latest); err != nil {
		return 0, wrapErr("latest_use_in", err)
	}
	return latest, nil
}

func (s *PGStore) CountCooldown(ctx context.Context, cutoff int64) (int64, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM accounts
		WHERE GREATEST(COALESCE(last_returned, 0), COALESCE(last_burned, 0)) >= $1`,
		cutoff,
	)
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, wrapErr("count_cooldown", err)
	}
	return n, nil
}

func (s *PGStore) CountInUse(ctx context.Context) (int64, error) {
	row := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE in_use_by IS NOT NULL`)
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, wrapErr("count_in_use", err)
	}
	return n, nil
}

func (s *PGStore) CountAll(ctx context.Context) (int64, error) {
	row := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`)
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, wrapErr("count_all", err)
	}
	return n, nil
}

// ForceRelease runs in a transaction because the released rows must be
// read with their pre-release in_use_by still populated (for logging
// which device lost the lease) before that column is cleared.
func (s *PGStore) ForceRelease(ctx context.Context, olderThan int64, now int64) ([]Account, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, wrapErr("force_release begin", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE in_use_by IS NOT NULL AND COALESCE(last_returned, 0) < $1
		FOR UPDATE`,
		olderThan,
	)
	if err != nil {
		return nil, wrapErr("force_release select", err)
	}

	var released []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			rows.Close()
			return nil, wrapErr("force_release scan", err)
		}
		released = append(released, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, wrapErr("force_release rows", err)
	}

	if len(released) > 0 {
		usernames := make([]string, len(released))
		for i, a := range released {
			usernames[i] = a.Username
		}
		if _, err := tx.Exec(ctx, `
			UPDATE accounts SET in_use_by = NULL, last_returned = $1
			WHERE username = ANY($2)`,
			now, usernames,
		); err != nil {
			return nil, wrapErr("force_release update", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrapErr("force_release commit", err)
	}

	return released, nil
}
