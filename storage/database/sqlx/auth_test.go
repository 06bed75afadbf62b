package sqlxrepos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/session"
	"github.com/trezcool/escola/core/user"
	"github.com/trezcool/escola/tests"
)

func countSessions(t *testing.T, auth *Authenticator, accountID string) int {
	var n int
	if err := auth.db.Get(&n, auth.db.Rebind("SELECT COUNT(*) FROM auth_sessions WHERE account_id = ?"), accountID); err != nil {
		t.Fatalf("countSessions() failed: %v", err)
	}
	return n
}

func TestAuthenticator_SignIn(t *testing.T) {
	db := testutil.PrepareDB(t)
	auth := NewAuthenticator(db, time.Hour)
	ctx := context.Background()

	id, err := auth.CreateAccount(ctx, "Bob@Test.cd", "Secret123")
	require.NoError(t, err)

	_, err = auth.CreateAccount(ctx, "bob@test.cd", "Other123")
	assert.Equal(t, user.ErrEmailExists, err)

	tests := []struct {
		name     string
		email    string
		pwd      string
		wantKind session.Kind
		wantErr  bool
	}{
		{name: "invalid email", email: "bob", pwd: "Secret123", wantErr: true, wantKind: session.InvalidEmailFormat},
		{name: "unknown email", email: "nobody@test.cd", pwd: "Secret123", wantErr: true, wantKind: session.InvalidCredentials},
		{name: "wrong password", email: "bob@test.cd", pwd: "secret123", wantErr: true, wantKind: session.InvalidCredentials},
		{name: "valid", email: "bob@test.cd", pwd: "Secret123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := auth.SignInWithCredentials(ctx, tt.email, tt.pwd)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SignInWithCredentials() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				rErr, ok := err.(*core.RemoteError)
				require.True(t, ok, "want *core.RemoteError, got %T", err)
				assert.Equal(t, 400, rErr.StatusCode)
				return
			}
			assert.Equal(t, id, p.ID)
			assert.Equal(t, "bob@test.cd", p.Email)
			assert.NotEmpty(t, p.AccessToken)
			assert.NotEmpty(t, p.RefreshToken)
			assert.WithinDuration(t, time.Now().Add(time.Hour), p.ExpiresAt, time.Minute)
		})
	}

	assert.Equal(t, 1, countSessions(t, auth, id))
}

func TestAuthenticator_SignInErrorsClassify(t *testing.T) {
	db := testutil.PrepareDB(t)
	auth := NewAuthenticator(db, time.Hour)
	remote := session.NewRemote(auth, nil)

	s := session.New(remote, testutil.NopLogger{})
	snap := s.SignIn(context.Background(), "not-an-email", "whatever")
	require.NotNil(t, snap.LastError)
	assert.Equal(t, session.InvalidEmailFormat, snap.LastError.Kind)

	snap = s.SignIn(context.Background(), "nobody@test.cd", "whatever")
	require.NotNil(t, snap.LastError)
	assert.Equal(t, session.InvalidCredentials, snap.LastError.Kind)
}

func TestAuthenticator_SignOutSetPasswordDelete(t *testing.T) {
	db := testutil.PrepareDB(t)
	auth := NewAuthenticator(db, time.Hour)
	ctx := context.Background()

	id, err := auth.CreateAccount(ctx, "bob@test.cd", "Secret123")
	require.NoError(t, err)

	p1, err := auth.SignInWithCredentials(ctx, "bob@test.cd", "Secret123")
	require.NoError(t, err)
	_, err = auth.SignInWithCredentials(ctx, "bob@test.cd", "Secret123")
	require.NoError(t, err)
	assert.Equal(t, 2, countSessions(t, auth, id))

	require.NoError(t, auth.SignOut(ctx, p1))
	assert.Equal(t, 1, countSessions(t, auth, id))

	// a new password ends the other sessions
	require.NoError(t, auth.SetPassword(ctx, id, "NewSecret456"))
	assert.Equal(t, 0, countSessions(t, auth, id))
	_, err = auth.SignInWithCredentials(ctx, "bob@test.cd", "Secret123")
	assert.Error(t, err)
	_, err = auth.SignInWithCredentials(ctx, "bob@test.cd", "NewSecret456")
	assert.NoError(t, err)

	assert.Equal(t, user.ErrNotFound, auth.SetPassword(ctx, "missing", "NewSecret456"))

	require.NoError(t, auth.DeleteAccount(ctx, id))
	assert.Equal(t, 0, countSessions(t, auth, id))
	_, err = auth.SignInWithCredentials(ctx, "bob@test.cd", "NewSecret456")
	assert.Error(t, err)
}
