package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/user"
)

// addUser updates or creates a user.User, then activates it.
func (cli *commandLine) addUser(name, email, role, schoolID, pwd string) error {
	ctx := context.Background()
	email = core.CleanString(email, true /* lower */)
	school := null.NewString(schoolID, schoolID != "")

	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}

		nu := user.NewUser{
			FullName:        name,
			Email:           email,
			Role:            role,
			SchoolID:        school,
			Password:        pwd,
			PasswordConfirm: pwd,
		}
		if err = nu.Validate(cli.validate); err != nil {
			return err
		}
		usr, err = cli.usrSvc.Create(ctx, nu)
		if err != nil {
			return err
		}
		logger.Info("user created", usr)
		return nil
	}

	active := true
	uu := user.UpdateUser{
		FullName:        name,
		Role:            role,
		SchoolID:        school,
		Active:          &active,
		Password:        pwd,
		PasswordConfirm: pwd,
	}
	if err = uu.Validate(usr, cli.validate); err != nil {
		return err
	}
	if usr, err = cli.usrSvc.Update(ctx, usr.ID, uu); err != nil {
		return err
	}
	logger.Info("user updated", usr)
	return nil
}
