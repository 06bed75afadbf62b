package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/attendance"
	"github.com/trezcool/escola/core/audit"
	"github.com/trezcool/escola/core/cache"
	"github.com/trezcool/escola/core/class"
	"github.com/trezcool/escola/core/notification"
	"github.com/trezcool/escola/core/school"
	"github.com/trezcool/escola/core/session"
	"github.com/trezcool/escola/core/settings"
	"github.com/trezcool/escola/core/stats"
	"github.com/trezcool/escola/core/student"
	"github.com/trezcool/escola/core/teacher"
	"github.com/trezcool/escola/core/user"
	"github.com/trezcool/escola/fs"
	"github.com/trezcool/escola/storage/database/sqlx"
	"github.com/trezcool/escola/tests"
)

const testPassword = "Mwinda-2024"

var errMissingToken = ErrorResponse{Error: "missing or malformed jwt"}

func TestMain(m *testing.M) {
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, testutil.NewConfig(), testutil.NopLogger{})
	os.Exit(m.Run())
}

type testApp struct {
	server   *Server
	db       *sqlx.DB
	conf     *core.Config
	mail     *testutil.MailRecorder
	sessions *session.Registry
	usrSvc   *user.Service
	auditSvc *audit.Service
}

func setup(t *testing.T) *testApp {
	t.Helper()

	// set up DB & backends
	db := testutil.PrepareDB(t)
	conf := testutil.NewConfig()
	store := sqlxrepos.NewStore(db)
	accounts := sqlxrepos.NewAuthenticator(db, conf.Server.JWTExpirationDelta)
	logger := testutil.NopLogger{}
	validate, translator := testutil.ValidatorWithTranslator()

	// set up services
	c := cache.New(cache.WithTTL(conf.Cache.TTL))
	mail := &testutil.MailRecorder{}
	usrSvc := user.NewService(conf, store, accounts, c, mail)
	studentSvc := student.NewService(store, c)
	teacherSvc := teacher.NewService(store, c, usrSvc)
	auditSvc := audit.NewService(store)

	remote := session.NewRemote(accounts, usrSvc)
	sessions := session.NewRegistry(cache.New(cache.WithTTL(conf.Server.JWTExpirationDelta)), func() *session.Session {
		return session.New(remote, logger, session.WithLookupAttempts(conf.Session.LookupAttempts), session.WithLookupDelay(0))
	})

	// set up server
	s := NewServer(Options{
		Conf:            conf,
		Logger:          logger,
		Validate:        validate,
		Translator:      translator,
		DisableReqLogs:  true,
		Sessions:        sessions,
		UserSvc:         usrSvc,
		SchoolSvc:       school.NewService(store, c),
		TeacherSvc:      teacherSvc,
		ClassSvc:        class.NewService(store, c, studentSvc, teacherSvc),
		StudentSvc:      studentSvc,
		AttendanceSvc:   attendance.NewService(store, c, studentSvc),
		NotificationSvc: notification.NewService(store),
		SettingsSvc:     settings.NewService(store, c),
		StatsSvc:        stats.NewService(store, c),
		AuditSvc:        auditSvc,
	})
	t.Cleanup(func() { _ = s.Close() })

	return &testApp{
		server:   s,
		db:       db,
		conf:     conf,
		mail:     mail,
		sessions: sessions,
		usrSvc:   usrSvc,
		auditSvc: auditSvc,
	}
}

// createUser registers an account (password testPassword) along with its identity record.
func (app *testApp) createUser(t *testing.T, fullName, email, role, schoolID string) user.User {
	t.Helper()
	usr, err := app.usrSvc.Create(context.Background(), user.NewUser{
		FullName: fullName,
		Email:    email,
		Role:     role,
		SchoolID: null.NewString(schoolID, schoolID != ""),
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func (app *testApp) deactivate(t *testing.T, usr user.User) {
	t.Helper()
	active := false
	data := user.UpdateUser{Active: &active}
	require.NoError(t, data.Validate(usr, testutil.Validator()))
	_, err := app.usrSvc.Update(context.Background(), usr.ID, data)
	require.NoError(t, err)
}

// login signs usr in and returns its token.
func (app *testApp) login(t *testing.T, usr user.User) string {
	t.Helper()
	req, rec := newRequest(http.MethodPost, "/v1/auth/login", marshallObj(t, LoginRequest{Email: usr.Email, Password: testPassword}))
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res.Token
}

func (app *testApp) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	app.server.ServeHTTP(rec, req)
	return rec
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func (app *testApp) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := app.do(method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func unmarshall(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest), rec.Body.String())
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
