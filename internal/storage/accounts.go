package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"recargas/internal/core"
)

func (r *SQLiteRepository) GetSettings(ctx context.Context, userID int64) (*core.ComparisonConfig, error) {
	cfg := core.ComparisonConfig{UserID: userID}
	err := r.db.QueryRowContext(ctx,
		`SELECT preco_gasolina, consumo_km_l FROM settings WHERE user_id = ?`, userID).
		Scan(&cfg.FuelPrice, &cfg.FuelEconomy)
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get settings of user %d: %w", userID, err)
	}
	return &cfg, nil
}

func (r *SQLiteRepository) SaveSettings(ctx context.Context, cfg core.ComparisonConfig) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (user_id, preco_gasolina, consumo_km_l, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			preco_gasolina = excluded.preco_gasolina,
			consumo_km_l = excluded.consumo_km_l,
			updated_at = excluded.updated_at`,
		cfg.UserID, cfg.FuelPrice, cfg.FuelEconomy, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("save settings of user %d: %w", cfg.UserID, err)
	}
	return nil
}

const userColumns = `id, username, email, first_name, password_hash, is_staff, created_at, last_login`

func scanUser(s rowScanner, extra ...any) (core.User, error) {
	var (
		u         core.User
		staff     int
		created   string
		lastLogin sql.NullString
	)
	dest := append([]any{&u.ID, &u.Username, &u.Email, &u.FirstName, &u.PasswordHash, &staff, &created, &lastLogin}, extra...)
	if err := s.Scan(dest...); err != nil {
		return core.User{}, err
	}
	var err error
	if u.CreatedAt, err = parseTime(created); err != nil {
		return core.User{}, err
	}
	if u.LastLogin, err = parseNullTime(lastLogin); err != nil {
		return core.User{}, err
	}
	u.IsStaff = staff != 0
	return u, nil
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (int64, error) {
	if err := u.Validate(); err != nil {
		return 0, err
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users (username, email, first_name, password_hash, is_staff, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.Username, u.Email, u.FirstName, u.PasswordHash, boolToInt(u.IsStaff), formatTime(u.CreatedAt))
	if isUniqueViolation(err) {
		return 0, core.ErrDuplicate
	}
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read user id: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id int64) (core.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (r *SQLiteRepository) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

func (r *SQLiteRepository) getUser(ctx context.Context, query string, arg any) (core.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if notFound(err) {
		return core.User{}, core.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *SQLiteRepository) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET last_login = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("touch last login of user %d: %w", id, err)
	}
	return expectOne(res)
}

func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]core.UserSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
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

func (r *SQLiteRepository) SaveContact(ctx context.Context, m core.ContactMessage) (int64, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}
	if m.SentAt.IsZero() {
		m.SentAt = time.Now()
	}
	if m.Status == "" {
		m.Status = core.ContactStatusSent
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO contact_messages (nome, email, mensagem, data_envio, status) VALUES (?, ?, ?, ?, ?)`,
		m.Name, m.Email, m.Message, formatTime(m.SentAt), m.Status)
	if err != nil {
		return 0, fmt.Errorf("insert contact message: %w", err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) ListContacts(ctx context.Context, limit int) ([]core.ContactMessage, error) {
	query := `SELECT id, nome, email, mensagem, data_envio, status FROM contact_messages ORDER BY data_envio DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list contact messages: %w", err)
	}
	defer rows.Close()

	var out []core.ContactMessage
	for rows.Next() {
		var (
			m    core.ContactMessage
			sent string
		)
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.Message, &sent, &m.Status); err != nil {
			return nil, fmt.Errorf("scan contact message: %w", err)
		}
		if m.SentAt, err = parseTime(sent); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
