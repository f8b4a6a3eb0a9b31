package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/existflow/ironnotes/internal/protocol"
)

// PostgresStore is a Store backed by PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects to dbURL and runs migrations
func OpenPostgres(dbURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}

func (p *PostgresStore) CreateUser(ctx context.Context, u Account) (string, error) {
	var userID string
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO users (username, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id`,
		u.Username, u.Email, u.PasswordHash,
	).Scan(&userID)
	if err != nil {
		if strings.Contains(err.Error(), "unique") {
			return "", ErrExists
		}
		return "", err
	}
	return userID, nil
}

func (p *PostgresStore) UserByName(ctx context.Context, username string) (Account, error) {
	return p.scanUser(p.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, created_at FROM users WHERE username = $1`, username))
}

func (p *PostgresStore) UserByID(ctx context.Context, id string) (Account, error) {
	return p.scanUser(p.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, created_at FROM users WHERE id = $1`, id))
}

func (p *PostgresStore) scanUser(row *sql.Row) (Account, error) {
	var u Account
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	return u, err
}

func (p *PostgresStore) CreateSession(ctx context.Context, s Session) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO sessions (user_id, token, expires_at)
		VALUES ($1, $2, $3)`,
		s.UserID, s.Token, s.ExpiresAt,
	)
	return err
}

func (p *PostgresStore) Session(ctx context.Context, token string) (Session, error) {
	var s Session
	err := p.db.QueryRowContext(ctx, `
		SELECT id, user_id, token, expires_at, created_at FROM sessions WHERE token = $1`, token,
	).Scan(&s.ID, &s.UserID, &s.Token, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	return s, err
}

func (p *PostgresStore) DeleteSession(ctx context.Context, token string) error {
	_, err := p.db.ExecContext(ctx, "DELETE FROM sessions WHERE token = $1", token)
	return err
}

// Update locks the user's revision row for the length of the transaction,
// which serializes concurrent batches of one user.
func (p *PostgresStore) Update(ctx context.Context, userID string, fn func(tx EntityTx) error) error {
	sqlTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if _, err := sqlTx.ExecContext(ctx,
		"INSERT INTO user_revisions (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING", userID); err != nil {
		sqlTx.Rollback()
		return err
	}

	tx := &postgresTx{tx: sqlTx, userID: userID}
	if err := sqlTx.QueryRowContext(ctx,
		"SELECT revision FROM user_revisions WHERE user_id = $1 FOR UPDATE", userID).Scan(&tx.revision); err != nil {
		sqlTx.Rollback()
		return err
	}
	start := tx.revision

	if err := fn(tx); err != nil {
		sqlTx.Rollback()
		return err
	}

	if tx.revision != start {
		if _, err := sqlTx.ExecContext(ctx,
			"UPDATE user_revisions SET revision = $2 WHERE user_id = $1", userID, tx.revision); err != nil {
			sqlTx.Rollback()
			return err
		}
	}
	return sqlTx.Commit()
}

type postgresTx struct {
	tx       *sql.Tx
	userID   string
	revision int64
}

const entitySelect = `
SELECT id, type, name, notes, last_modified, deleted, completed, list_id, parent_id,
       prior_sibling_id, idx, revision
FROM entities`

func scanRecord(rows interface{ Scan(...any) error }) (Record, error) {
	var r Record
	err := rows.Scan(&r.ID, &r.Type, &r.Name, &r.Notes, &r.LastModified, &r.Deleted, &r.Completed,
		&r.ListID, &r.ParentID, &r.PriorSiblingID, &r.Index, &r.Revision)
	return r, err
}

func (t *postgresTx) Get(ctx context.Context, id string) (Record, error) {
	r, err := scanRecord(t.tx.QueryRowContext(ctx, entitySelect+" WHERE user_id = $1 AND id = $2", t.userID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return r, err
}

func (t *postgresTx) Put(ctx context.Context, r Record) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO entities (user_id, id, type, name, notes, last_modified, deleted, completed,
		                      list_id, parent_id, prior_sibling_id, idx, revision)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (user_id, id) DO UPDATE SET
		    type = EXCLUDED.type, name = EXCLUDED.name, notes = EXCLUDED.notes,
		    last_modified = EXCLUDED.last_modified, deleted = EXCLUDED.deleted,
		    completed = EXCLUDED.completed, list_id = EXCLUDED.list_id,
		    parent_id = EXCLUDED.parent_id, prior_sibling_id = EXCLUDED.prior_sibling_id,
		    idx = EXCLUDED.idx, revision = EXCLUDED.revision`,
		t.userID, r.ID, r.Type, r.Name, r.Notes, r.LastModified, r.Deleted, r.Completed,
		r.ListID, r.ParentID, r.PriorSiblingID, r.Index, r.Revision)
	return err
}

func (t *postgresTx) query(ctx context.Context, where string, args ...any) ([]Record, error) {
	rows, err := t.tx.QueryContext(ctx, entitySelect+" "+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *postgresTx) Since(ctx context.Context, revision int64) ([]Record, error) {
	return t.query(ctx, "WHERE user_id = $1 AND revision > $2 ORDER BY revision ASC", t.userID, revision)
}

func (t *postgresTx) TasksIn(ctx context.Context, listID string) ([]Record, error) {
	return t.query(ctx, "WHERE user_id = $1 AND type = $2 AND list_id = $3 ORDER BY revision ASC",
		t.userID, protocol.TypeTask, listID)
}

func (t *postgresTx) Revision() int64 { return t.revision }

func (t *postgresTx) NextRevision() int64 {
	t.revision++
	return t.revision
}
