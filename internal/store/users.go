package store

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID        int64
	Username  string
	Nickname  string
	CreatedAt time.Time
}

// IDString is the user id in the form used by tokens and identities.
func (u User) IDString() string { return strconv.FormatInt(u.ID, 10) }

func normUsername(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// CreateUser inserts a new user with a hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, password, nickname string) (User, error) {
	username = normUsername(username)
	if username == "" || password == "" {
		return User{}, errors.New("missing username or password")
	}
	if nickname = strings.TrimSpace(nickname); nickname == "" {
		nickname = username
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, errors.Wrap(err, "hash password")
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users(username, password_hash, nickname) VALUES(?,?,?)",
		username, string(hash), nickname)
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
			return User{}, ErrUsernameTaken
		}
		return User{}, errors.Wrap(err, "insert user")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return User{}, errors.Wrap(err, "insert user id")
	}
	return s.GetUser(ctx, id)
}

func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, nickname, created_at FROM users WHERE id=?", id).
		Scan(&u.ID, &u.Username, &u.Nickname, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, errors.Wrap(err, "get user")
	}
	return u, nil
}

// VerifyUser checks username + password match.
func (s *SQLiteStore) VerifyUser(ctx context.Context, username, password string) (User, error) {
	var (
		u    User
		hash string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, nickname, created_at, password_hash FROM users WHERE username=?",
		normUsername(username)).
		Scan(&u.ID, &u.Username, &u.Nickname, &u.CreatedAt, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, errors.Wrap(err, "verify user")
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}
