package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/daedalus410/RFID-attendance-system/internal/model"
)

// UserSource is the slice of the user table login needs. The attendance
// repository implements it.
type UserSource interface {
	UserByName(ctx context.Context, name string) (model.User, error)
}

// Service authenticates users and hands out session tokens.
type Service struct {
	users  UserSource
	tokens *Tokens
	log    *slog.Logger
}

// NewService wires the login flow.
func NewService(users UserSource, tokens *Tokens, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{users: users, tokens: tokens, log: log}
}

// LoginResult carries the issued token and the authenticated user.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      model.User
}

// Login verifies name+password and issues a session token. Unknown name and
// wrong password return the identical InvalidCredentials error; the unknown
// path still burns a bcrypt comparison so the two are not distinguishable by
// timing either. Store failures pass through untouched for the HTTP layer to
// map to 503.
func (s *Service) Login(ctx context.Context, name, password string) (LoginResult, error) {
	user, err := s.users.UserByName(ctx, name)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			compareDummy(password)
			return LoginResult{}, model.NewInvalidCredentials()
		}
		return LoginResult{}, err
	}

	if !VerifyPassword(user.PasswordHash, password) {
		return LoginResult{}, model.NewInvalidCredentials()
	}

	token, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return LoginResult{}, err
	}

	s.log.Info("login", "user_id", user.ID)
	return LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}
