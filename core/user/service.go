package user

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/cache"
)

const Table = "users"

var (
	// errors
	ErrNotFound    = errors.New("user not found")
	ErrEmailExists = errors.New("a user with this email already exists")

	errInvalidResetLink = errors.New("the reset link is invalid or has expired")
)

type (
	// Registrar manages the login credentials (accounts) behind the identity records.
	Registrar interface {
		// CreateAccount registers credentials for email and returns the new account ID.
		// ErrEmailExists if the email is already registered.
		CreateAccount(ctx context.Context, email, password string) (string, error)
		SetPassword(ctx context.Context, accountID, password string) error
		DeleteAccount(ctx context.Context, accountID string) error
	}

	Service struct {
		data            core.DataService
		accounts        Registrar
		cache           *cache.Cache
		mailSvc         core.EmailService
		tokens          tokenGenerator
		frontendBaseURL string
	}
)

func NewService(
	conf *core.Config,
	data core.DataService,
	accounts Registrar,
	c *cache.Cache,
	mailSvc core.EmailService,
) *Service {
	return &Service{
		data:     data,
		accounts: accounts,
		cache:    c,
		mailSvc:  mailSvc,
		tokens: tokenGenerator{
			secretKey: []byte(conf.SecretKey),
			timeout:   conf.Server.PasswordResetTimeoutDelta,
		},
		frontendBaseURL: strings.TrimRight(conf.FrontendBaseURL, "/"),
	}
}

func keyAll() string           { return cache.Key(Table, "all") }
func keyUser(id string) string { return cache.Key(Table, id) }

func (svc *Service) invalidate(ids ...string) {
	svc.cache.Invalidate(keyAll())
	for _, id := range ids {
		svc.cache.Invalidate(keyUser(id))
	}
}

// trapNoRowsErr maps core.ErrNoRows to ErrNotFound
func trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == core.ErrNoRows {
		return ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (svc *Service) checkUniqueness(ctx context.Context, email string, excludedIDs ...string) error {
	q := core.NewQuery(Table, "id").Where(core.Eq("email", email))
	for _, id := range excludedIDs {
		q = q.Where(core.Neq("id", id))
	}
	count, err := svc.data.Count(ctx, q)
	if err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if count > 0 {
		return emailExistsError()
	}
	return nil
}

func emailExistsError() error {
	return core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
}

// LookupIdentityByID reads the identity record of an account, bypassing the cache.
func (svc *Service) LookupIdentityByID(ctx context.Context, id string) (User, error) {
	var usr User
	if err := svc.data.Get(ctx, core.NewQuery(Table).Where(core.Eq("id", id)), &usr); err != nil {
		return User{}, trapNoRowsErr(err, "getting user by ID")
	}
	return usr, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return cache.Fetch(ctx, svc.cache, keyUser(id), func(ctx context.Context) (User, error) {
		return svc.LookupIdentityByID(ctx, id)
	})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	var usr User
	q := core.NewQuery(Table).Where(core.Eq("email", core.CleanString(email, true /* lower */)))
	if err := svc.data.Get(ctx, q, &usr); err != nil {
		return User{}, trapNoRowsErr(err, "getting user by email")
	}
	return usr, nil
}

// QueryAll returns every user, by name.
func (svc *Service) QueryAll(ctx context.Context) ([]User, error) {
	return cache.Fetch(ctx, svc.cache, keyAll(), func(ctx context.Context) ([]User, error) {
		users := make([]User, 0)
		if err := svc.data.Select(ctx, core.NewQuery(Table).OrderBy(core.Asc("full_name")), &users); err != nil {
			return nil, errors.Wrap(err, "querying users")
		}
		return users, nil
	})
}

// Query applies AND operation on available QueryFilter fields.
// QueryFilter.Search does a case-insensitive match on one of User.FullName or User.Email.
func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	if (filter == nil || filter.IsEmpty()) && len(ordering) == 0 {
		return svc.QueryAll(ctx)
	}

	q := core.NewQuery(Table)
	if filter != nil {
		if filter.Search != "" {
			pattern := "%" + filter.Search + "%"
			q = q.Where(core.Or(core.ILike("full_name", pattern), core.ILike("email", pattern)))
		}
		if len(filter.Roles) > 0 {
			q = q.Where(core.InStrings("role", filter.Roles...))
		}
		if filter.SchoolID != "" {
			q = q.Where(core.Eq("school_id", filter.SchoolID))
		}
		if filter.Active != nil {
			q = q.Where(core.Eq("active", *filter.Active))
		}
	}
	if len(ordering) > 0 {
		q = q.OrderBy(ordering...)
	} else {
		q = q.OrderBy(core.Asc("full_name"))
	}

	users := make([]User, 0)
	if err := svc.data.Select(ctx, q, &users); err != nil {
		return nil, errors.Wrap(err, "filtering users")
	}
	return users, nil
}

// Create registers the account credentials then stores the identity record,
// and emails the new user. A temporary password is set when none is provided
// and the email then carries a link to choose one.
func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	if err := svc.checkUniqueness(ctx, nu.Email); err != nil {
		return User{}, err
	}

	pwd := nu.Password
	tempPwd := pwd == ""
	if tempPwd {
		pwd = generateTempPassword()
	}

	id, err := svc.accounts.CreateAccount(ctx, nu.Email, pwd)
	if err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return User{}, emailExistsError()
		}
		return User{}, errors.Wrap(err, "creating account")
	}

	now := nowFunc().UTC()
	vals := core.Values{
		"id":         id,
		"full_name":  nu.FullName,
		"email":      nu.Email,
		"role":       nu.Role,
		"school_id":  nu.SchoolID,
		"active":     true,
		"created_at": now,
		"updated_at": now,
	}
	var usr User
	if err := svc.data.Insert(ctx, Table, vals, &usr); err != nil {
		// do not leave credentials without an identity
		if dErr := svc.accounts.DeleteAccount(ctx, id); dErr != nil {
			err = errors.Wrapf(err, "deleting account: %v", dErr)
		}
		return User{}, errors.Wrap(err, "inserting user")
	}
	svc.invalidate()

	svc.sendWelcomeMail(usr, tempPwd)
	return usr, nil
}

func (svc *Service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	if err := svc.checkUniqueness(ctx, uu.Email, id); err != nil {
		return User{}, err
	}

	vals := core.Values{
		"full_name":  uu.FullName,
		"email":      uu.Email,
		"role":       uu.Role,
		"school_id":  uu.SchoolID,
		"updated_at": nowFunc().UTC(),
	}
	if uu.Active != nil {
		vals["active"] = *uu.Active
	}

	var usr User
	if err := svc.data.Update(ctx, Table, vals, []core.Filter{core.Eq("id", id)}, &usr); err != nil {
		return User{}, trapNoRowsErr(err, "updating user")
	}
	svc.invalidate(id)

	if uu.Password != "" {
		if err := svc.accounts.SetPassword(ctx, id, uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	return usr, nil
}

// SetLastLogin stamps the user's last login with the current time.
func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	vals := core.Values{"last_login": null.TimeFrom(nowFunc().UTC())}
	if err := svc.data.Update(ctx, Table, vals, []core.Filter{core.Eq("id", usr.ID)}, &usr); err != nil {
		return User{}, trapNoRowsErr(err, "setting last login")
	}
	svc.invalidate(usr.ID)
	return usr, nil
}

// Delete deletes the identity records and their accounts.
func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := svc.data.Delete(ctx, Table, []core.Filter{core.InStrings("id", ids...)}); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	svc.invalidate(ids...)

	for _, id := range ids {
		if err := svc.accounts.DeleteAccount(ctx, id); err != nil {
			return errors.Wrap(err, "deleting account")
		}
	}
	return nil
}

// RequestPasswordReset emails a password reset link to the active user owning email.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.Active {
		return ErrNotFound
	}
	svc.sendPasswordResetMail(usr)
	return nil
}

func (svc *Service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	invalidLinkErr := core.NewValidationError(errInvalidResetLink)

	id, err := decodeUID(data.UID)
	if err != nil {
		return invalidLinkErr
	}
	usr, err := svc.LookupIdentityByID(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return invalidLinkErr
		}
		return err
	}
	if err = svc.tokens.verifyToken(usr, data.Token); err != nil {
		return invalidLinkErr
	}

	if err = svc.accounts.SetPassword(ctx, usr.ID, data.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	// a new update time invalidates the token
	vals := core.Values{"updated_at": nowFunc().UTC()}
	if err = svc.data.Update(ctx, Table, vals, []core.Filter{core.Eq("id", usr.ID)}, nil); err != nil {
		return errors.Wrap(err, "updating user")
	}
	svc.invalidate(usr.ID)
	return nil
}

func (svc *Service) passwordResetURL(usr User) string {
	return fmt.Sprintf("%s/password-reset/%s/%s", svc.frontendBaseURL, encodeUID(usr), svc.tokens.makeToken(usr))
}

func (svc *Service) sendWelcomeMail(usr User, withResetLink bool) {
	data := map[string]string{
		"Name":     usr.FullName,
		"Email":    usr.Email,
		"Role":     usr.Role,
		"ResetURL": "",
	}
	if withResetLink {
		data["ResetURL"] = svc.passwordResetURL(usr)
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName, Address: usr.Email}},
		Subject:      "Welcome!",
		TemplateName: "welcome",
		TemplateData: data,
	})
}

func (svc *Service) sendPasswordResetMail(usr User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName, Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: map[string]string{
			"Name":     usr.FullName,
			"ResetURL": svc.passwordResetURL(usr),
		},
	})
}

// generateTempPassword returns a random password satisfying the password policy.
func generateTempPassword() string {
	return "Tmp" + strings.ReplaceAll(uuid.New().String(), "-", "")[:16] + "7x"
}
