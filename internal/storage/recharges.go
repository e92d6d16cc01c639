package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"recargas/internal/core"
)

const rechargeColumns = `id, user_id, data, kwh, custo, isento, odometro, observacoes, local`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecharge(s rowScanner) (core.Recharge, error) {
	var (
		r      core.Recharge
		date   string
		exempt int
	)
	if err := s.Scan(&r.ID, &r.UserID, &date, &r.KWh, &r.Cost, &exempt, &r.Odometer, &r.Notes, &r.Location); err != nil {
		return core.Recharge{}, err
	}
	t, err := parseTime(date)
	if err != nil {
		return core.Recharge{}, err
	}
	r.Date = t
	r.Exempt = exempt != 0
	return r, nil
}

// CreateRecharge inserts one recharge in its own transaction.
func (r *SQLiteRepository) CreateRecharge(ctx context.Context, rec core.Recharge) (int64, error) {
	if err := rec.Validate(); err != nil {
		return 0, err
	}
	now := formatTime(time.Now())

	var id int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO recharges (user_id, data, kwh, custo, isento, odometro, observacoes, local, sync_status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.UserID, formatTime(rec.Date), rec.KWh, rec.Cost, boolToInt(rec.Exempt), rec.Odometer,
			rec.Notes, rec.Location, syncPending, now, now)
		if err != nil {
			return fmt.Errorf("insert recharge: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("read recharge id: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	slog.DebugContext(ctx, "Recharge saved to SQLite", "id", id, "user_id", rec.UserID, "kwh", rec.KWh)
	return id, nil
}

func (r *SQLiteRepository) GetRecharge(ctx context.Context, userID, id int64) (core.Recharge, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+rechargeColumns+` FROM recharges WHERE id = ? AND user_id = ?`, id, userID)
	rec, err := scanRecharge(row)
	if notFound(err) {
		return core.Recharge{}, core.ErrNotFound
	}
	if err != nil {
		return core.Recharge{}, fmt.Errorf("get recharge %d: %w", id, err)
	}
	return rec, nil
}

func (r *SQLiteRepository) UpdateRecharge(ctx context.Context, rec core.Recharge) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE recharges
		SET data = ?, kwh = ?, custo = ?, isento = ?, odometro = ?, observacoes = ?, local = ?,
		    sync_status = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		formatTime(rec.Date), rec.KWh, rec.Cost, boolToInt(rec.Exempt), rec.Odometer, rec.Notes, rec.Location,
		syncPending, formatTime(time.Now()), rec.ID, rec.UserID)
	if err != nil {
		return fmt.Errorf("update recharge %d: %w", rec.ID, err)
	}
	return expectOne(res)
}

func (r *SQLiteRepository) DeleteRecharge(ctx context.Context, userID, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM recharges WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete recharge %d: %w", id, err)
	}
	return expectOne(res)
}

func (r *SQLiteRepository) DeleteAllRecharges(ctx context.Context, userID int64) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM recharges WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete recharges of user %d: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted recharges: %w", err)
	}
	return int(n), nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// filterClause renders f as a WHERE clause for the given user.
func filterClause(userID int64, f core.RechargeFilter) (string, []any) {
	conds := []string{"user_id = ?"}
	args := []any{userID}

	if f.Location != "" {
		conds = append(conds, `LOWER(local) LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(f.Location))
	}
	if f.Notes != "" {
		conds = append(conds, `LOWER(observacoes) LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(f.Notes))
	}
	if f.Exempt != nil {
		conds = append(conds, "isento = ?")
		args = append(args, boolToInt(*f.Exempt))
	}
	if !f.From.IsZero() {
		conds = append(conds, "data >= ?")
		args = append(args, formatTime(f.From))
	}
	if !f.Until.IsZero() {
		conds = append(conds, "data <= ?")
		args = append(args, formatTime(f.Until))
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *SQLiteRepository) ListRecharges(ctx context.Context, userID int64, f core.RechargeFilter, limit, offset int) ([]core.Recharge, error) {
	where, args := filterClause(userID, f)
	query := `SELECT ` + rechargeColumns + ` FROM recharges` + where + ` ORDER BY data DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}
	return r.queryRecharges(ctx, query, args...)
}

func (r *SQLiteRepository) CountRecharges(ctx context.Context, userID int64, f core.RechargeFilter) (int, error) {
	where, args := filterClause(userID, f)
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recharges`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count recharges: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) History(ctx context.Context, userID int64) ([]core.Recharge, error) {
	return r.queryRecharges(ctx,
		`SELECT `+rechargeColumns+` FROM recharges WHERE user_id = ? ORDER BY data ASC, id ASC`, userID)
}

func (r *SQLiteRepository) PendingSync(ctx context.Context, limit int) ([]core.Recharge, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryRecharges(ctx,
		`SELECT `+rechargeColumns+` FROM recharges WHERE sync_status = ? ORDER BY id ASC LIMIT ?`,
		syncPending, limit)
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64) error {
	return r.setSyncStatus(ctx, id, syncSynced)
}

func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64) error {
	if err := r.setSyncStatus(ctx, id, syncError); err != nil {
		return err
	}
	slog.WarnContext(ctx, "Recharge marked with sync error", "id", id)
	return nil
}

func (r *SQLiteRepository) setSyncStatus(ctx context.Context, id int64, status string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE recharges SET sync_status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("mark recharge %d %s: %w", id, status, err)
	}
	return expectOne(res)
}

func (r *SQLiteRepository) queryRecharges(ctx context.Context, query string, args ...any) ([]core.Recharge, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recharges: %w", err)
	}
	defer rows.Close()

	var out []core.Recharge
	for rows.Next() {
		rec, err := scanRecharge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recharge: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recharges: %w", err)
	}
	return out, nil
}
