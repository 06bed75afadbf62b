package sqlxrepos

import (
	"context"
	"database/sql"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/session"
	"github.com/trezcool/escola/core/user"
)

var nowFunc = time.Now // mockable

var errInvalidCredentials = &core.RemoteError{
	StatusCode: http.StatusBadRequest,
	Code:       "invalid_credentials",
	Message:    "Invalid login credentials",
}

type account struct {
	ID           string `db:"id"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
}

// Authenticator keeps the accounts and their sessions in the auth_accounts and auth_sessions tables.
type Authenticator struct {
	db         *sqlx.DB
	sessionTTL time.Duration
}

var (
	_ session.Authenticator = (*Authenticator)(nil)
	_ user.Registrar        = (*Authenticator)(nil)
)

func NewAuthenticator(db *sqlx.DB, sessionTTL time.Duration) *Authenticator {
	return &Authenticator{db: db, sessionTTL: sessionTTL}
}

func (a *Authenticator) SignInWithCredentials(ctx context.Context, email, password string) (session.Principal, error) {
	if _, err := mail.ParseAddress(email); err != nil || strings.ContainsAny(email, "<> ") {
		return session.Principal{}, &core.RemoteError{
			StatusCode: http.StatusBadRequest,
			Code:       "email_address_invalid",
			Message:    "Unable to validate email address: invalid format",
		}
	}

	var acc account
	err := a.db.GetContext(ctx, &acc, a.db.Rebind("SELECT id, email, password_hash FROM auth_accounts WHERE email = ?"), email)
	if err == sql.ErrNoRows {
		return session.Principal{}, errInvalidCredentials
	}
	if err != nil {
		return session.Principal{}, errors.Wrap(err, "getting account")
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)) != nil {
		return session.Principal{}, errInvalidCredentials
	}

	now := nowFunc().UTC()
	p := session.Principal{
		ID:           acc.ID,
		Email:        acc.Email,
		AccessToken:  uuid.New().String(),
		RefreshToken: uuid.New().String(),
		ExpiresAt:    now.Add(a.sessionTTL),
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return session.Principal{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx, tx.Rebind(`
INSERT INTO auth_sessions (id, account_id, access_token, refresh_token, expires_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`),
		uuid.New().String(), p.ID, p.AccessToken, p.RefreshToken, p.ExpiresAt, now, now,
	); err != nil {
		return session.Principal{}, errors.Wrap(err, "creating session")
	}
	if _, err = tx.ExecContext(ctx, tx.Rebind("UPDATE auth_accounts SET last_sign_in_at = ? WHERE id = ?"), now, p.ID); err != nil {
		return session.Principal{}, errors.Wrap(err, "updating account")
	}
	if err = tx.Commit(); err != nil {
		return session.Principal{}, errors.Wrap(err, "committing sign in")
	}
	return p, nil
}

func (a *Authenticator) SignOut(ctx context.Context, p session.Principal) error {
	if _, err := a.db.ExecContext(ctx, a.db.Rebind("DELETE FROM auth_sessions WHERE access_token = ?"), p.AccessToken); err != nil {
		return errors.Wrap(err, "deleting session")
	}
	return nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "hashing password")
	}
	return string(hash), nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (a *Authenticator) CreateAccount(ctx context.Context, email, password string) (string, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	now := nowFunc().UTC()
	_, err = a.db.ExecContext(ctx, a.db.Rebind(`
INSERT INTO auth_accounts (id, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`),
		id, core.CleanString(email, true /* lower */), hash, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", user.ErrEmailExists
		}
		return "", errors.Wrap(err, "inserting account")
	}
	return id, nil
}

// SetPassword changes the password of an account and ends its sessions.
func (a *Authenticator) SetPassword(ctx context.Context, accountID, password string) error {
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, tx.Rebind("UPDATE auth_accounts SET password_hash = ?, updated_at = ? WHERE id = ?"),
		hash, nowFunc().UTC(), accountID)
	if err != nil {
		return errors.Wrap(err, "updating password")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.ErrNotFound
	}
	if _, err = tx.ExecContext(ctx, tx.Rebind("DELETE FROM auth_sessions WHERE account_id = ?"), accountID); err != nil {
		return errors.Wrap(err, "deleting sessions")
	}
	return errors.Wrap(tx.Commit(), "committing password")
}

func (a *Authenticator) DeleteAccount(ctx context.Context, accountID string) error {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx, tx.Rebind("DELETE FROM auth_sessions WHERE account_id = ?"), accountID); err != nil {
		return errors.Wrap(err, "deleting sessions")
	}
	if _, err = tx.ExecContext(ctx, tx.Rebind("DELETE FROM auth_accounts WHERE id = ?"), accountID); err != nil {
		return errors.Wrap(err, "deleting account")
	}
	return errors.Wrap(tx.Commit(), "committing account deletion")
}
