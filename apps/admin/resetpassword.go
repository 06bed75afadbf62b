package main

import (
	"context"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/user"
)

func (cli *commandLine) resetPassword(email, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		return err
	}

	uu := user.UpdateUser{Password: pwd, PasswordConfirm: pwd}
	if err = uu.Validate(usr, cli.validate); err != nil {
		return err
	}
	_, err = cli.usrSvc.Update(ctx, usr.ID, uu)
	return err
}
