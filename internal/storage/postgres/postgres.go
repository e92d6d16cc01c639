// Package postgres is the PostgreSQL implementation of the store ports.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"recargas/internal/core"
)

const (
	syncPending = "pending"
	syncSynced  = "synced"
	syncError   = "error"

	uniqueViolation = "23505"
)

type Storage struct {
	db *pgxpool.Pool
}

func NewStorage(db *pgxpool.Pool) *Storage {
	return &Storage{db: db}
}

// Open migrates the schema and connects a pool to dsn.
func Open(ctx context.Context, dsn string) (*Storage, error) {
	if err := Migrate(dsn); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewStorage(pool), nil
}

func (s *Storage) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

func (s *Storage) Close() error {
	s.db.Close()
	return nil
}

// timestamps are stored without zone, always in UTC.
func utc(t time.Time) time.Time { return t.UTC() }

const rechargeColumns = `id, user_id, data, kwh, custo, isento, odometro, observacoes, local`

func scanRecharge(row pgx.Row) (core.Recharge, error) {
	var r core.Recharge
	if err := row.Scan(&r.ID, &r.UserID, &r.Date, &r.KWh, &r.Cost, &r.Exempt, &r.Odometer, &r.Notes, &r.Location); err != nil {
		return core.Recharge{}, err
	}
	r.Date = utc(r.Date)
	return r, nil
}

// CreateRecharge inserts one recharge in its own transaction.
func (s *Storage) CreateRecharge(ctx context.Context, r core.Recharge) (int64, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO recharges (user_id, data, kwh, custo, isento, odometro, observacoes, local, sync_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		r.UserID, utc(r.Date), r.KWh, r.Cost, r.Exempt, r.Odometer, r.Notes, r.Location, syncPending).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert recharge: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit recharge: %w", err)
	}
	slog.DebugContext(ctx, "Recharge saved to Postgres", "id", id, "user_id", r.UserID)
	return id, nil
}

func (s *Storage) GetRecharge(ctx context.Context, userID, id int64) (core.Recharge, error) {
	r, err := scanRecharge(s.db.QueryRow(ctx,
		`SELECT `+rechargeColumns+` FROM recharges WHERE id = $1 AND user_id = $2`, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Recharge{}, core.ErrNotFound
	}
	if err != nil {
		return core.Recharge{}, fmt.Errorf("get recharge %d: %w", id, err)
	}
	return r, nil
}

func (s *Storage) UpdateRecharge(ctx context.Context, r core.Recharge) error {
	if err := r.Validate(); err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE recharges
		SET data = $1, kwh = $2, custo = $3, isento = $4, odometro = $5, observacoes = $6, local = $7,
		    sync_status = $8, updated_at = NOW()
		WHERE id = $9 AND user_id = $10`,
		utc(r.Date), r.KWh, r.Cost, r.Exempt, r.Odometer, r.Notes, r.Location, syncPending, r.ID, r.UserID)
	if err != nil {
		return fmt.Errorf("update recharge %d: %w", r.ID, err)
	}
	return expectOne(tag)
}

func (s *Storage) DeleteRecharge(ctx context.Context, userID, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM recharges WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete recharge %d: %w", id, err)
	}
	return expectOne(tag)
}

func (s *Storage) DeleteAllRecharges(ctx context.Context, userID int64) (int, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM recharges WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete recharges of user %d: %w", userID, err)
	}
	return int(tag.RowsAffected()), nil
}

func expectOne(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// filterClause renders f with numbered placeholders.
func filterClause(userID int64, f core.RechargeFilter) (string, []any) {
	args := []any{userID}
	conds := []string{"user_id = $1"}
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Location != "" {
		add("local ILIKE $%d", likePattern(f.Location))
	}
	if f.Notes != "" {
		add("observacoes ILIKE $%d", likePattern(f.Notes))
	}
	if f.Exempt != nil {
		add("isento = $%d", *f.Exempt)
	}
	if !f.From.IsZero() {
		add("data >= $%d", utc(f.From))
	}
	if !f.Until.IsZero() {
		add("data <= $%d", utc(f.Until))
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func likePattern(needle string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(needle) + "%"
}

func (s *Storage) ListRecharges(ctx context.Context, userID int64, f core.RechargeFilter, limit, offset int) ([]core.Recharge, error) {
	where, args := filterClause(userID, f)
	query := `SELECT ` + rechargeColumns + ` FROM recharges` + where + ` ORDER BY data DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
		args = append(args, limit, offset)
	}
	return s.queryRecharges(ctx, query, args...)
}

func (s *Storage) CountRecharges(ctx context.Context, userID int64, f core.RechargeFilter) (int, error) {
	where, args := filterClause(userID, f)
	var n int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM recharges`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count recharges: %w", err)
	}
	return n, nil
}

func (s *Storage) History(ctx context.Context, userID int64) ([]core.Recharge, error) {
	return s.queryRecharges(ctx,
		`SELECT `+rechargeColumns+` FROM recharges WHERE user_id = $1 ORDER BY data ASC, id ASC`, userID)
}

func (s *Storage) PendingSync(ctx context.Context, limit int) ([]core.Recharge, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryRecharges(ctx,
		`SELECT `+rechargeColumns+` FROM recharges WHERE sync_status = $1 ORDER BY id ASC LIMIT $2`,
		syncPending, limit)
}

func (s *Storage) MarkSynced(ctx context.Context, id int64) error {
	return s.setSyncStatus(ctx, id, syncSynced)
}

func (s *Storage) MarkSyncError(ctx context.Context, id int64) error {
	return s.setSyncStatus(ctx, id, syncError)
}

func (s *Storage) setSyncStatus(ctx context.Context, id int64, status string) error {
	tag, err := s.db.Exec(ctx, `UPDATE recharges SET sync_status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("mark recharge %d %s: %w", id, status, err)
	}
	return expectOne(tag)
}

func (s *Storage) queryRecharges(ctx context.Context, query string, args ...any) ([]core.Recharge, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recharges: %w", err)
	}
	defer rows.Close()

	var out []core.Recharge
	for rows.Next() {
		r, err := scanRecharge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recharge: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// === Settings ===

func (s *Storage) GetSettings(ctx context.Context, userID int64) (*core.ComparisonConfig, error) {
	cfg := core.ComparisonConfig{UserID: userID}
	err := s.db.QueryRow(ctx,
		`SELECT preco_gasolina, consumo_km_l FROM settings WHERE user_id = $1`, userID).
		Scan(&cfg.FuelPrice, &cfg.FuelEconomy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get settings of user %d: %w", userID, err)
	}
	return &cfg, nil
}

func (s *Storage) SaveSettings(ctx context.Context, cfg core.ComparisonConfig) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO settings (user_id, preco_gasolina, consumo_km_l, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			preco_gasolina = EXCLUDED.preco_gasolina,
			consumo_km_l = EXCLUDED.consumo_km_l,
			updated_at = NOW()`,
		cfg.UserID, cfg.FuelPrice, cfg.FuelEconomy)
	if err != nil {
		return fmt.Errorf("save settings of user %d: %w", cfg.UserID, err)
	}
	return nil
}

// === Users ===

const userColumns = `id, username, email, first_name, password_hash, is_staff, created_at, last_login`

func scanUser(row pgx.Row, extra ...any) (core.User, error) {
	var (
		u         core.User
		lastLogin *time.Time
	)
	dest := append([]any{&u.ID, &u.Username, &u.Email, &u.FirstName, &u.PasswordHash, &u.IsStaff, &u.CreatedAt, &lastLogin}, extra...)
	if err := row.Scan(dest...); err != nil {
		return core.User{}, err
	}
	u.CreatedAt = utc(u.CreatedAt)
	if lastLogin != nil {
		u.LastLogin = utc(*lastLogin)
	}
	return u, nil
}

func (s *Storage) CreateUser(ctx context.Context, u core.User) (int64, error) {
	if err := u.Validate(); err != nil {
		return 0, err
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO users (username, email, first_name, password_hash, is_staff, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		u.Username, u.Email, u.FirstName, u.PasswordHash, u.IsStaff, utc(u.CreatedAt)).Scan(&id)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return 0, core.ErrDuplicate
	}
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

func (s *Storage) GetUser(ctx context.Context, id int64) (core.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *Storage) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (s *Storage) getUser(ctx context.Context, query string, arg any) (core.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.User{}, core.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *Storage) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, utc(at), id)
	if err != nil {
		return fmt.Errorf("touch last login of user %d: %w", id, err)
	}
	return expectOne(tag)
}

func (s *Storage) ListUsers(ctx context.Context) ([]core.UserSummary, error) {
	rows, err := s.db.Query(ctx, `
		SELECT u.id, u.username, u.email, u.first_name, u.password_hash, u.is_staff, u.created_at, u.last_login,
		       COUNT(r.id)
		FROM users u
		LEFT JOIN recharges r ON r.user_id = u.id
		GROUP BY u.id
		ORDER BY LOWER(u.username)`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []core.UserSummary
	for rows.Next() {
		var count int
		u, err := scanUser(rows, &count)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, core.UserSummary{User: u, Recharges: count})
	}
	return out, rows.Err()
}

// === Contact messages ===

func (s *Storage) SaveContact(ctx context.Context, m core.ContactMessage) (int64, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}
	if m.SentAt.IsZero() {
		m.SentAt = time.Now()
	}
	if m.Status == "" {
		m.Status = core.ContactStatusSent
	}
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO contact_messages (nome, email, mensagem, data_envio, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		m.Name, m.Email, m.Message, utc(m.SentAt), m.Status).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert contact message: %w", err)
	}
	return id, nil
}

func (s *Storage) ListContacts(ctx context.Context, limit int) ([]core.ContactMessage, error) {
	query := `SELECT id, nome, email, mensagem, data_envio, status FROM contact_messages ORDER BY data_envio DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list contact messages: %w", err)
	}
	defer rows.Close()

	var out []core.ContactMessage
	for rows.Next() {
		var m core.ContactMessage
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.Message, &m.SentAt, &m.Status); err != nil {
			return nil, fmt.Errorf("scan contact message: %w", err)
		}
		m.SentAt = utc(m.SentAt)
		out = append(out, m)
	}
	return out, rows.Err()
}
