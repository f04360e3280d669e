package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"caissepro/backend/internal/domain"
	"caissepro/backend/internal/store"
	"caissepro/backend/internal/xid"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

type Store struct {
	db   *sql.DB
	q    querier
	inTx bool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, q: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB exposes the pool for migrations.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) WithinTx(ctx context.Context, fn store.TxFunc) error {
	if s.inTx {
		return fn(ctx, s)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, &Store{db: s.db, q: tx, inTx: true}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) NextSequence(ctx context.Context, scope string) (int64, error) {
	var value int64
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO sequence_counters (scope, value)
		VALUES ($1, 1)
		ON CONFLICT (scope)
		DO UPDATE SET value = sequence_counters.value + 1
		RETURNING value
	`, scope).Scan(&value)
	return value, err
}

const userColumns = `id, username, email, password_hash, role, status, last_login_at, created_at, updated_at`

func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	var lastLogin sql.NullTime
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.Status, &lastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	if lastLogin.Valid {
		at := lastLogin.Time.UTC()
		u.LastLoginAt = &at
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, user.ID, user.Username, user.Email, user.PasswordHash, user.Role, user.Status, nullTime(user.LastLoginAt), user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err, "a user with this email already exists")
	}
	created := user
	return &created, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return scanUser(s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return scanUser(s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, strings.TrimSpace(email)))
}

func (s *Store) ListUsers(ctx context.Context, role domain.Role) ([]domain.User, error) {
	var w where
	if role != "" {
		w.add("role = $%d", role)
	}
	rows, err := s.q.QueryContext(ctx, `SELECT `+userColumns+` FROM users`+w.clause()+` ORDER BY created_at DESC`, w.args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanUser)
}

func (s *Store) UpdateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE users
		SET username = $2, email = $3, password_hash = $4, role = $5, status = $6, last_login_at = $7, updated_at = $8
		WHERE id = $1
	`, user.ID, user.Username, user.Email, user.PasswordHash, user.Role, user.Status, nullTime(user.LastLoginAt), user.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err, "a user with this email already exists")
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	updated := user
	return &updated, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return mapWriteError(err, "user has recorded sales")
	}
	return requireAffected(res)
}

const auditColumns = `id, user_id, table_name, action, details, ip_address, device_info, created_at`

func scanAudit(row rowScanner) (*domain.AuditLog, error) {
	var entry domain.AuditLog
	var details []byte
	if err := row.Scan(&entry.ID, &entry.UserID, &entry.Table, &entry.Action, &details, &entry.IPAddress, &entry.DeviceInfo, &entry.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	if len(details) > 0 {
		entry.Details = details
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	return &entry, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	details := "{}"
	if len(entry.Details) > 0 {
		details = string(entry.Details)
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO audit_logs (`+auditColumns+`)
		VALUES ($1,$2,$3,$4,$5::jsonb,$6,$7,$8)
	`, entry.ID, entry.UserID, entry.Table, entry.Action, details, entry.IPAddress, entry.DeviceInfo, entry.CreatedAt)
	return err
}

func (s *Store) GetAuditLog(ctx context.Context, id string) (*domain.AuditLog, error) {
	return scanAudit(s.q.QueryRowContext(ctx, `SELECT `+auditColumns+` FROM audit_logs WHERE id = $1`, id))
}

func (s *Store) ListAuditLogs(ctx context.Context, filter store.AuditFilter) ([]domain.AuditLog, error) {
	var w where
	if filter.UserID != "" {
		w.add("user_id = $%d", filter.UserID)
	}
	if filter.Table != "" {
		w.add("table_name = $%d", filter.Table)
	}
	if filter.Action != "" {
		w.add("action = $%d", filter.Action)
	}
	w.period("created_at", filter.From, filter.To)

	query := `SELECT ` + auditColumns + ` FROM audit_logs` + w.clause() + ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		w.args = append(w.args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(w.args))
	}
	rows, err := s.q.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAudit)
}

func (s *Store) DeleteAuditLogsBefore(ctx context.Context, before time.Time) (int, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, before)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}

// where accumulates AND-ed conditions with positional arguments.
type where struct {
	conds []string
	args  []any
}

// add appends a condition; format carries one %d for the placeholder index.
func (w *where) add(format string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(format, len(w.args)))
}

func (w *where) raw(cond string) {
	w.conds = append(w.conds, cond)
}

func (w *where) view(v store.View) {
	switch v {
	case store.ViewActive:
		w.raw("lifecycle = 'ACTIVE'")
	case store.ViewDeleted:
		w.raw("lifecycle = 'DELETED'")
	}
}

func (w *where) period(column string, from, to *time.Time) {
	if from != nil {
		w.add(column+" >= $%d", *from)
	}
	if to != nil {
		w.add(column+" <= $%d", *to)
	}
}

func (w *where) clause() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func collect[T any](rows *sql.Rows, scan func(rowScanner) (*T, error)) ([]T, error) {
	defer rows.Close()

	items := make([]T, 0, 32)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func mapWriteError(err error, conflictMsg string) error {
	if isUniqueViolation(err) || isForeignKeyViolation(err) {
		return fmt.Errorf("%w: %s", store.ErrConflict, conflictMsg)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullString(val *string) any {
	if val == nil || *val == "" {
		return nil
	}
	return *val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func stringPtr(val sql.NullString) *string {
	if !val.Valid {
		return nil
	}
	s := val.String
	return &s
}
