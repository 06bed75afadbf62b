package main

import (
	"flag"
	"fmt"
	"sort"
	"strings"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp        = errors.New("help provided")
	errNoDatabase  = errors.New("migrations need the database backend")
	errPwdMismatch = errors.New("passwords do not match")
)

type commandLine struct {
	db         *sqlx.DB // nil on the hosted backend
	usrSvc     *user.Service
	validate   *validator.Validate
	translator ut.Translator
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a migrations command (up, down, status, ...)")
	fmt.Println("  adduser -email EMAIL -name NAME [-role ROLE] [-school SCHOOL_ID] - create or update a user")
	fmt.Println("  resetpassword -email EMAIL - reset user's password")
}

// readPassword prompts for a password and its confirmation.
func readPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		return "", nil
	}

	fmt.Print("Confirm password:")
	confirm, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	if string(confirm) != string(pwd) {
		return "", errPwdMismatch
	}
	return string(pwd), nil
}

// formatError spells out validation errors, one field per line.
func (cli *commandLine) formatError(err error) error {
	var msgs []string
	switch e := errors.Cause(err).(type) {
	case validator.ValidationErrors:
		for _, fErr := range e {
			msgs = append(msgs, fmt.Sprintf("%s: %s", fErr.Field(), fErr.Translate(cli.translator)))
		}
	case *core.ValidationError:
		if e.Fields == nil {
			return err
		}
		for _, fErr := range e.Fields {
			msgs = append(msgs, fmt.Sprintf("%s: %s", fErr.Field, fErr.Error))
		}
	default:
		return err
	}
	sort.Strings(msgs)
	return errors.New(strings.Join(msgs, "\n"))
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserRole := addUserCmd.String("role", user.RoleAdmin, "The user's role: "+strings.Join(user.AllRoles, ", ")+".")
	addUserSchool := addUserCmd.String("school", "", "The ID of the user's school.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addUserEmail == "" || *addUserName == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := readPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.formatError(cli.addUser(*addUserName, *addUserEmail, *addUserRole, *addUserSchool, pwd))

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := readPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.formatError(cli.resetPassword(*resetPasswordEmail, pwd))

	default:
		cli.printUsage()
		return errHelp
	}
}
