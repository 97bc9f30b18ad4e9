package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

type newUserArgs struct {
	name, uname, email, pwd string
	roles                   []string
	isAdmin                 bool
}

// addUser updates or creates a user.User
func (cmd *commandLine) addUser(ctx context.Context, args newUserArgs) error {
	uname := core.CleanString(args.uname, true /* lower */)
	email := core.CleanString(args.email, true /* lower */)

	usr, err := cmd.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{uname, email}})
	if err != nil {
		if err != user.ErrNotFound {
			return errors.Wrap(err, "finding user")
		}
		now := core.NowFunc()
		usr = user.User{
			Username:  uname,
			Email:     email,
			CreatedAt: now,
		}
	}
	if args.name != "" {
		usr.Name = core.CleanString(args.name)
	}
	if usr.Name == "" {
		usr.Name = usr.Username
	}

	switch {
	case args.isAdmin:
		usr.Roles = user.AllRoles
	case len(args.roles) > 0:
		for _, role := range args.roles {
			if !core.ContainsString(user.AllRoles, role) {
				return core.NewValidationError(nil, core.FieldError{Field: "role", Error: "unknown role " + role})
			}
		}
		usr.Roles = args.roles
	}

	usr.IsActive = true
	usr.UpdatedAt = core.NowFunc()
	if err := usr.SetPassword(args.pwd); err != nil {
		return errors.Wrap(err, "setting password")
	}
	_, err = cmd.usrRepo.UpdateOrCreateUser(ctx, usr)
	return errors.Wrap(err, "saving user")
}
