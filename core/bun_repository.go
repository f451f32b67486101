package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type userModel struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           int64     `bun:"id,pk,autoincrement"`
	Username     string    `bun:"username,notnull"`
	PasswordHash string    `bun:"password_hash,notnull"`
	FullName     string    `bun:"full_name,notnull"`
	Role         string    `bun:"role,notnull"`
	Active       bool      `bun:"is_active,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
}

func (m userModel) record() *UserRecord {
	return &UserRecord{
		ID:           m.ID,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		FullName:     m.FullName,
		Role:         Role(m.Role),
		Active:       m.Active,
		CreatedAt:    m.CreatedAt,
	}
}

type accessLogModel struct {
	bun.BaseModel `bun:"table:access_log,alias:al"`

	ID                int64     `bun:"id,pk,autoincrement"`
	UserID            *int64    `bun:"user_id"`
	ActionType        string    `bun:"action_type,notnull"`
	ActionDescription string    `bun:"action_description,notnull"`
	CreatedAt         time.Time `bun:"created_at,notnull"`
}

var sqliteSchema = []string{
	`PRAGMA foreign_keys = ON`,
	`CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	full_name     TEXT NOT NULL DEFAULT '',
	role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin','user')),
	is_active     BOOLEAN NOT NULL DEFAULT 1,
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_username_idx ON users (username)`,
	`CREATE TABLE IF NOT EXISTS access_log (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id            INTEGER REFERENCES users(id) ON DELETE SET NULL,
	action_type        TEXT NOT NULL,
	action_description TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
}

// BunUserRepository implements UserStore on an embedded sqlite database.
type BunUserRepository struct {
	db *bun.DB
}

// OpenBunUserRepository opens (or creates) the sqlite database at path and
// ensures the schema. Use ":memory:" for a throwaway database.
func OpenBunUserRepository(ctx context.Context, path string) (*BunUserRepository, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: sqlite has a single writer and :memory: databases are per connection.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}
	return &BunUserRepository{db: db}, nil
}

func (r *BunUserRepository) FindActiveByUsername(ctx context.Context, username string) (*UserRecord, error) {
	var m userModel
	err := r.db.NewSelect().
		Model(&m).
		Where("u.username = ?", NormalizeUsername(username)).
		Where("u.is_active = ?", true).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active user: %w", err)
	}
	return m.record(), nil
}

func (r *BunUserRepository) Insert(ctx context.Context, username, passwordHash, fullName string, role Role) (bool, error) {
	m := &userModel{
		Username:     NormalizeUsername(username),
		PasswordHash: passwordHash,
		FullName:     fullName,
		Role:         string(role),
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := r.db.NewInsert().Model(m).Exec(ctx); err != nil {
		var se *sqlite.Error
		if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return false, nil
		}
		return false, fmt.Errorf("insert user: %w", err)
	}
	return true, nil
}

func (r *BunUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	exists, err := r.db.NewSelect().
		Model((*userModel)(nil)).
		Where("u.username = ?", NormalizeUsername(username)).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return exists, nil
}

func (r *BunUserRepository) AppendAccessLog(ctx context.Context, userID *int64, action, description string) error {
	m := &accessLogModel{
		UserID:            userID,
		ActionType:        action,
		ActionDescription: description,
		CreatedAt:         time.Now().UTC(),
	}
	if _, err := r.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return fmt.Errorf("append access log: %w", err)
	}
	return nil
}

// AccessLog returns the newest entries first.
func (r *BunUserRepository) AccessLog(ctx context.Context, limit int) ([]AccessEvent, error) {
	var rows []accessLogModel
	err := r.db.NewSelect().
		Model(&rows).
		OrderExpr("al.id DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list access log: %w", err)
	}
	out := make([]AccessEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, AccessEvent{
			UserID:      row.UserID,
			Action:      row.ActionType,
			Description: row.ActionDescription,
			At:          row.CreatedAt,
		})
	}
	return out, nil
}

func (r *BunUserRepository) UpdatePasswordHash(ctx context.Context, id int64, passwordHash string) error {
	res, err := r.db.NewUpdate().
		Model((*userModel)(nil)).
		Set("password_hash = ?", passwordHash).
		Where("id = ?", id).
		Exec(ctx)
	return affectedOne(res, err, "update password hash")
}

func (r *BunUserRepository) HasAdmin(ctx context.Context) (bool, error) {
	exists, err := r.db.NewSelect().
		Model((*userModel)(nil)).
		Where("u.role = ?", string(RoleAdmin)).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check admin: %w", err)
	}
	return exists, nil
}

func (r *BunUserRepository) Get(ctx context.Context, id int64) (*UserRecord, error) {
	var m userModel
	err := r.db.NewSelect().Model(&m).Where("u.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return m.record(), nil
}

func (r *BunUserRepository) List(ctx context.Context, page, perPage int) ([]Principal, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	var rows []userModel
	total, err := r.db.NewSelect().
		Model(&rows).
		OrderExpr("u.id ASC").
		Limit(perPage).
		Offset((page - 1) * perPage).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	items := make([]Principal, 0, len(rows))
	for _, m := range rows {
		items = append(items, m.record().Principal())
	}
	return items, total, nil
}

func (r *BunUserRepository) SetRole(ctx context.Context, id int64, role Role) error {
	res, err := r.db.NewUpdate().
		Model((*userModel)(nil)).
		Set("role = ?", string(role)).
		Where("id = ?", id).
		Exec(ctx)
	return affectedOne(res, err, "set role")
}

func (r *BunUserRepository) SetActive(ctx context.Context, id int64, active bool) error {
	res, err := r.db.NewUpdate().
		Model((*userModel)(nil)).
		Set("is_active = ?", active).
		Where("id = ?", id).
		Exec(ctx)
	return affectedOne(res, err, "set active")
}

func (r *BunUserRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.NewDelete().
		Model((*userModel)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return affectedOne(res, err, "delete user")
}

func (r *BunUserRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *BunUserRepository) Close() error {
	return r.db.Close()
}

func affectedOne(res sql.Result, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}
