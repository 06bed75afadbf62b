package testutil

import (
	"context"
	"fmt"
	"net/mail"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/user"
	"github.com/trezcool/escola/storage/database"
)

// NopLogger discards everything.
type NopLogger struct{}

var _ core.Logger = NopLogger{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
func (NopLogger) Fatal(string, ...interface{}) {}

// NewConfig returns a configuration for tests, backed by an in-memory SQLite database.
func NewConfig() *core.Config {
	return &core.Config{
		Debug:            true,
		TestMode:         true,
		Env:              "TEST",
		Build:            "test",
		AppName:          "Escola",
		SecretKey:        "test-secret",
		FrontendBaseURL:  "http://localhost:3000",
		DefaultFromEmail: mail.Address{Name: "Escola", Address: "noreply@test.cd"},
		Server: core.ServerConfig{
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 10 * time.Minute,
			PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		},
		Database: core.DatabaseConfig{
			Engine: database.SQLite,
			Name:   ":memory:",
		},
		Remote: core.RemoteConfig{
			Backend: core.BackendDatabase,
			Timeout: time.Second,
		},
		Cache:   core.CacheConfig{TTL: time.Minute},
		Session: core.SessionConfig{LookupAttempts: 3, LookupDelay: 0},
	}
}

// Validator returns a validator with the core and user validations registered.
func Validator() *validator.Validate {
	validate, _ := ValidatorWithTranslator()
	return validate
}

// ValidatorWithTranslator returns a validator with the core and user validations registered,
// along with the english translator of its errors.
func ValidatorWithTranslator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

// PrepareDB opens a migrated in-memory database, closed at the end of the test.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.Open(NewConfig())
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	if err = database.Migrate(db); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func insert(t *testing.T, db *sqlx.DB, table string, vals map[string]interface{}) {
	t.Helper()
	now := time.Now().UTC()
	if _, ok := vals["id"]; !ok {
		vals["id"] = uuid.New().String()
	}
	if _, ok := vals["created_at"]; !ok {
		vals["created_at"] = now
	}
	if _, ok := vals["updated_at"]; !ok {
		vals["updated_at"] = now
	}

	cols, params := "", ""
	for col := range vals {
		if cols != "" {
			cols += ", "
			params += ", "
		}
		cols += col
		params += ":" + col
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, cols, params)
	if _, err := db.NamedExecContext(context.Background(), q, vals); err != nil {
		t.Fatalf("insert(%s) failed: %v", table, err)
	}
}

// CreateSchool stores a school and returns its ID.
func CreateSchool(t *testing.T, db *sqlx.DB, name string) string {
	t.Helper()
	id := uuid.New().String()
	insert(t, db, "schools", map[string]interface{}{"id": id, "name": name})
	return id
}

// CreateUser stores an identity record (without account).
func CreateUser(t *testing.T, db *sqlx.DB, fullName, email, role, schoolID string, active bool, createdAt ...time.Time) user.User {
	t.Helper()
	tstamp := time.Now().UTC().Truncate(time.Microsecond)
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC().Truncate(time.Microsecond)
	}
	usr := user.User{
		ID:        uuid.New().String(),
		FullName:  fullName,
		Email:     email,
		Role:      role,
		SchoolID:  null.NewString(schoolID, schoolID != ""),
		Active:    active,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	insert(t, db, user.Table, map[string]interface{}{
		"id":         usr.ID,
		"full_name":  usr.FullName,
		"email":      usr.Email,
		"role":       usr.Role,
		"school_id":  usr.SchoolID,
		"active":     usr.Active,
		"created_at": usr.CreatedAt,
		"updated_at": usr.UpdatedAt,
	})
	return usr
}

// CreateTeacher stores a teacher row for usr and returns its ID.
func CreateTeacher(t *testing.T, db *sqlx.DB, usr user.User, schoolID string) string {
	t.Helper()
	id := uuid.New().String()
	insert(t, db, "teachers", map[string]interface{}{"id": id, "user_id": usr.ID, "school_id": schoolID})
	return id
}

// CreateClass stores a class and returns its ID.
func CreateClass(t *testing.T, db *sqlx.DB, name, schoolID string) string {
	t.Helper()
	id := uuid.New().String()
	insert(t, db, "classes", map[string]interface{}{"id": id, "name": name, "school_id": schoolID})
	return id
}

// CreateStudent stores a student and returns its ID.
func CreateStudent(t *testing.T, db *sqlx.DB, name, classID string) string {
	t.Helper()
	id := uuid.New().String()
	insert(t, db, "students", map[string]interface{}{"id": id, "name": name, "class_id": classID})
	return id
}

// MailRecorder is a core.EmailService keeping the rendered messages.
type MailRecorder struct {
	mu   sync.Mutex
	sent []core.EmailMessage
}

var _ core.EmailService = (*MailRecorder)(nil)

func (r *MailRecorder) SendMessages(messages ...*core.EmailMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range messages {
		_ = msg.Render()
		r.sent = append(r.sent, *msg)
	}
}

func (r *MailRecorder) Sent() []core.EmailMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.EmailMessage(nil), r.sent...)
}
