package core

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRecord represents a row of the users table, password hash included.
type UserRecord struct {
	ID           int64
	Username     string
	PasswordHash string
	FullName     string
	Role         Role
	Active       bool
	CreatedAt    time.Time
}

// Principal strips the password hash.
func (u UserRecord) Principal() Principal {
	return Principal{
		ID:        u.ID,
		Username:  u.Username,
		FullName:  u.FullName,
		Role:      u.Role,
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
	}
}

// Access log action types.
const (
	ActionLogin    = "LOGIN"
	ActionRegister = "REGISTER"
)

// ErrUserNotFound is returned by admin mutations targeting a missing id.
var ErrUserNotFound = errors.New("user not found")

// CredentialStore is what the authenticator needs from persistence.
type CredentialStore interface {
	// FindActiveByUsername matches case-insensitively and returns nil, nil when
	// no active record exists.
	FindActiveByUsername(ctx context.Context, username string) (*UserRecord, error)
	// Insert returns false, nil when the username is already taken.
	Insert(ctx context.Context, username, passwordHash, fullName string, role Role) (bool, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	AppendAccessLog(ctx context.Context, userID *int64, action, description string) error
}

// PasswordUpdater is implemented by stores that can replace a stored hash.
type PasswordUpdater interface {
	UpdatePasswordHash(ctx context.Context, id int64, passwordHash string) error
}

// UserAdminStore backs the admin panel.
type UserAdminStore interface {
	HasAdmin(ctx context.Context) (bool, error)
	Get(ctx context.Context, id int64) (*UserRecord, error)
	List(ctx context.Context, page, perPage int) ([]Principal, int, error)
	SetRole(ctx context.Context, id int64, role Role) error
	SetActive(ctx context.Context, id int64, active bool) error
	Delete(ctx context.Context, id int64) error
	Ping(ctx context.Context) error
}

// AccessLogReader lists persisted access_log rows, newest first.
type AccessLogReader interface {
	AccessLog(ctx context.Context, limit int) ([]AccessEvent, error)
}

// UserStore is the full persistence surface of a backend.
type UserStore interface {
	CredentialStore
	PasswordUpdater
	UserAdminStore
	AccessLogReader
	Close() error
}

// PgUserRepository implements UserStore using pgxpool.
type PgUserRepository struct {
	db *pgxpool.Pool
}

func NewPgUserRepository(db *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{db: db}
}

const pgUserColumns = `id, username, password_hash, full_name, role, is_active, created_at`

func scanPgUser(row pgx.Row) (*UserRecord, error) {
	var u UserRecord
	var role string
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FullName, &role, &u.Active, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Role = Role(role)
	return &u, nil
}

func (r *PgUserRepository) FindActiveByUsername(ctx context.Context, username string) (*UserRecord, error) {
	q := `SELECT ` + pgUserColumns + ` FROM users WHERE username = $1 AND is_active LIMIT 1`
	u, err := scanPgUser(r.db.QueryRow(ctx, q, NormalizeUsername(username)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func (r *PgUserRepository) Insert(ctx context.Context, username, passwordHash, fullName string, role Role) (bool, error) {
	const q = `INSERT INTO users (username, password_hash, full_name, role) VALUES ($1,$2,$3,$4)`
	if _, err := r.db.Exec(ctx, q, NormalizeUsername(username), passwordHash, fullName, string(role)); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *PgUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`
	var exists bool
	if err := r.db.QueryRow(ctx, q, NormalizeUsername(username)).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PgUserRepository) AppendAccessLog(ctx context.Context, userID *int64, action, description string) error {
	const q = `INSERT INTO access_log (user_id, action_type, action_description) VALUES ($1,$2,$3)`
	_, err := r.db.Exec(ctx, q, userID, action, description)
	return err
}

func (r *PgUserRepository) AccessLog(ctx context.Context, limit int) ([]AccessEvent, error) {
	const q = `
SELECT al.user_id, COALESCE(u.username, ''), al.action_type, al.action_description, al.created_at
FROM access_log al
LEFT JOIN users u ON u.id = al.user_id
ORDER BY al.id DESC
LIMIT $1`
	rows, err := r.db.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]AccessEvent, 0, limit)
	for rows.Next() {
		var ev AccessEvent
		if err := rows.Scan(&ev.UserID, &ev.Username, &ev.Action, &ev.Description, &ev.At); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *PgUserRepository) UpdatePasswordHash(ctx context.Context, id int64, passwordHash string) error {
	return r.execOne(ctx, `UPDATE users SET password_hash=$1 WHERE id=$2`, passwordHash, id)
}

func (r *PgUserRepository) HasAdmin(ctx context.Context) (bool, error) {
	const q = `SELECT 1 FROM users WHERE role='admin' LIMIT 1`
	var one int
	if err := r.db.QueryRow(ctx, q).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *PgUserRepository) Get(ctx context.Context, id int64) (*UserRecord, error) {
	u, err := scanPgUser(r.db.QueryRow(ctx, `SELECT `+pgUserColumns+` FROM users WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// List returns paginated users without password hash.
func (r *PgUserRepository) List(ctx context.Context, page, perPage int) ([]Principal, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	const countQ = `SELECT COUNT(*) FROM users`
	var total int
	if err := r.db.QueryRow(ctx, countQ).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, username, full_name, role, is_active, created_at FROM users ORDER BY id LIMIT $1 OFFSET $2`, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := make([]Principal, 0, perPage)
	for rows.Next() {
		var p Principal
		var role string
		if err := rows.Scan(&p.ID, &p.Username, &p.FullName, &role, &p.Active, &p.CreatedAt); err != nil {
			return nil, 0, err
		}
		p.Role = Role(role)
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *PgUserRepository) SetRole(ctx context.Context, id int64, role Role) error {
	return r.execOne(ctx, `UPDATE users SET role=$1 WHERE id=$2`, string(role), id)
}

func (r *PgUserRepository) SetActive(ctx context.Context, id int64, active bool) error {
	return r.execOne(ctx, `UPDATE users SET is_active=$1 WHERE id=$2`, active, id)
}

func (r *PgUserRepository) Delete(ctx context.Context, id int64) error {
	return r.execOne(ctx, `DELETE FROM users WHERE id=$1`, id)
}

func (r *PgUserRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func (r *PgUserRepository) Close() error {
	r.db.Close()
	return nil
}

func (r *PgUserRepository) execOne(ctx context.Context, q string, args ...any) error {
	tag, err := r.db.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
