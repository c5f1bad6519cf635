package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Simplici0/filaprint/internal/db"
)

// DefaultElectricityRate is the rate, in currency per kWh, given to new users
// and restored when a profile update leaves the rate blank.
const DefaultElectricityRate = 0.12

// MinUsernameLength mirrors the database-facing validation on registration.
const MinUsernameLength = 3

type Role string

const (
	RoleAdmin Role = "Admin"
	RoleMaker Role = "Maker"
)

var ErrNotFound = errors.New("user not found")

type User struct {
	ID              int64     `json:"id"`
	Username        string    `json:"username"`
	PasswordHash    string    `json:"-"`
	Role            Role      `json:"role"`
	Location        string    `json:"location"`
	ElectricityRate float64   `json:"electricity_rate"`
	Currency        string    `json:"currency"`
	CreatedAt       time.Time `json:"created_at"`
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

const selectColumns = `id, username, password_hash, role, location, electricity_rate, currency, created_at`

func scan(row interface{ Scan(...any) error }) (User, error) {
	var (
		u         User
		role      string
		createdAt string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.Location, &u.ElectricityRate, &u.Currency, &createdAt); err != nil {
		return User{}, err
	}
	u.Role = Role(role)

	t, err := db.ParseTime(createdAt)
	if err != nil {
		return User{}, err
	}
	u.CreatedAt = t
	return u, nil
}

// Create inserts a user with the default rate and currency.
func Create(ctx context.Context, q db.Querier, username, passwordHash string, role Role, now time.Time) (User, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, role, electricity_rate, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, username, passwordHash, string(role), DefaultElectricityRate, db.FormatTime(now))
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return User{}, fmt.Errorf("read user id: %w", err)
	}
	return Get(ctx, q, id)
}

func Get(ctx context.Context, q db.Querier, id int64) (User, error) {
	u, err := scan(q.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

func GetByUsername(ctx context.Context, q db.Querier, username string) (User, error) {
	u, err := scan(q.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM users WHERE username = ?`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("query user by username: %w", err)
	}
	return u, nil
}

// UsernameTaken reports whether another user (not exceptID) has username.
func UsernameTaken(ctx context.Context, q db.Querier, username string, exceptID int64) (bool, error) {
	var taken bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE username = ? AND id <> ?)
	`, username, exceptID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return taken, nil
}

func Count(ctx context.Context, q db.Querier) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// List returns every user, newest first.
func List(ctx context.Context, q db.Querier) ([]User, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+selectColumns+` FROM users ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		u, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// Profile is the editable part of a user.
type Profile struct {
	Username        string
	Location        string
	ElectricityRate float64
}

func UpdateProfile(ctx context.Context, q db.Querier, id int64, p Profile) error {
	res, err := q.ExecContext(ctx, `
		UPDATE users
		SET username = ?, location = ?, electricity_rate = ?
		WHERE id = ?
	`, p.Username, p.Location, p.ElectricityRate, id)
	if err != nil {
		return fmt.Errorf("update user profile: %w", err)
	}
	return requireAffected(res)
}

func UpdatePassword(ctx context.Context, q db.Querier, id int64, passwordHash string) error {
	res, err := q.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, id)
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	return requireAffected(res)
}

// ElectricityRate returns the rate used to price a user's print energy.
// A stored 0 is returned as 0 and means free power; only a blank rate on
// the settings form falls back to DefaultElectricityRate.
func ElectricityRate(ctx context.Context, q db.Querier, id int64) (float64, error) {
	var rate float64
	err := q.QueryRowContext(ctx, `SELECT electricity_rate FROM users WHERE id = ?`, id).Scan(&rate)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query electricity rate: %w", err)
	}
	return rate, nil
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
