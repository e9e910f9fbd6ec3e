package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/daedalus410/RFID-attendance-system/internal/model"
	"github.com/daedalus410/RFID-attendance-system/internal/store"
)

// Repository runs the user and attendance SQL through the lease pool. Every
// query uses ordered $n placeholders, which bind identically on postgres and
// sqlite, so there is one SQL text per operation.
type Repository struct {
	pool *store.Pool
}

// NewRepository creates a repo on the shared pool.
func NewRepository(pool *store.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, name, password_hash, rfid_uid, created_at`

// UserByName finds a user by case-insensitive name.
func (r *Repository) UserByName(ctx context.Context, name string) (model.User, error) {
	var user model.User
	err := r.pool.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE LOWER(name) = LOWER($1)`, name)
		var scanErr error
		user, scanErr = scanUser(row)
		return scanErr
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, fmt.Errorf("user %q: %w", name, model.ErrNotFound)
		}
		return model.User{}, err
	}
	return user, nil
}

// UserByRFID finds the user enrolled with the given tag UID.
func (r *Repository) UserByRFID(ctx context.Context, uid string) (model.User, error) {
	var user model.User
	err := r.pool.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE rfid_uid = $1`, uid)
		var scanErr error
		user, scanErr = scanUser(row)
		return scanErr
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, fmt.Errorf("rfid uid %q: %w", uid, model.ErrNotFound)
		}
		return model.User{}, err
	}
	return user, nil
}

// CreateUser inserts a user and returns it with the assigned id.
func (r *Repository) CreateUser(ctx context.Context, name, passwordHash string) (model.User, error) {
	user := model.User{Name: name, PasswordHash: passwordHash, CreatedAt: time.Now().UTC()}
	err := r.pool.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx,
			`INSERT INTO users (name, password_hash, created_at) VALUES ($1, $2, $3) RETURNING id`,
			user.Name, user.PasswordHash, user.CreatedAt).Scan(&user.ID)
	})
	if err != nil {
		return model.User{}, err
	}
	return user, nil
}

// SetUserRFID assigns or replaces a user's tag UID.
func (r *Repository) SetUserRFID(ctx context.Context, userID int64, uid string) error {
	return r.pool.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx,
			`UPDATE users SET rfid_uid = $1 WHERE id = $2`, uid, userID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("user id %d: %w", userID, model.ErrNotFound)
		}
		return nil
	})
}

// InsertRecord appends one attendance row inside a transaction and returns
// it with the assigned id.
func (r *Repository) InsertRecord(ctx context.Context, userID int64, at time.Time) (model.AttendanceRecord, error) {
	rec := model.AttendanceRecord{UserID: userID, Timestamp: at}
	err := r.pool.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			`INSERT INTO attendance (user_id, timestamp) VALUES ($1, $2) RETURNING id`,
			userID, at).Scan(&rec.ID)
	})
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	return rec, nil
}

// RecentRecords returns the newest records joined with the user name,
// timestamp descending. Ties break on id so the order is total.
func (r *Repository) RecentRecords(ctx context.Context, limit int) ([]model.AttendanceRecord, error) {
	var records []model.AttendanceRecord
	err := r.pool.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `
			SELECT a.id, a.user_id, u.name, a.timestamp
			FROM attendance a
			JOIN users u ON u.id = a.user_id
			ORDER BY a.timestamp DESC, a.id DESC
			LIMIT $1
		`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var rec model.AttendanceRecord
			if err := rows.Scan(&rec.ID, &rec.UserID, &rec.UserName, &rec.Timestamp); err != nil {
				return err
			}
			records = append(records, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func scanUser(row *sql.Row) (model.User, error) {
	var user model.User
	var uid sql.NullString
	if err := row.Scan(&user.ID, &user.Name, &user.PasswordHash, &uid, &user.CreatedAt); err != nil {
		return model.User{}, err
	}
	if uid.Valid {
		user.RFIDUID = &uid.String
	}
	return user, nil
}
