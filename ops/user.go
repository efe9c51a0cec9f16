package ops

import (
	"context"
	"fmt"
	"regexp"

	"github.com/fortressi/provision"
	"github.com/fortressi/provision/host"
)

var userNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}$`)

// CreateUser adds a login-less service account.
type CreateUser struct {
	provision.BaseOperation
	host host.Host

	Name   string
	Home   string
	System bool
}

// NewCreateUser creates a CreateUser for a system account.
func NewCreateUser(h host.Host, name, home string) *CreateUser {
	return &CreateUser{
		BaseOperation: provision.NewBaseOperation("useradd", fmt.Sprintf("Create user %s", name)),
		host:          h,
		Name:          name,
		Home:          home,
		System:        true,
	}
}

func (o *CreateUser) Validate(context.Context) (bool, error) {
	if !userNamePattern.MatchString(o.Name) {
		return false, fmt.Errorf("invalid user name %q", o.Name)
	}
	return true, nil
}

func (o *CreateUser) IsAlreadyDone(ctx context.Context) bool {
	_, err := o.host.Run(ctx, "id", "-u", o.Name)
	return err == nil
}

func (o *CreateUser) Execute(ctx context.Context) (any, error) {
	args := []string{"--shell", "/usr/sbin/nologin"}
	if o.System {
		args = append(args, "--system")
	}
	if o.Home != "" {
		args = append(args, "--home-dir", o.Home, "--no-create-home")
	}
	args = append(args, o.Name)

	if _, err := o.host.Run(ctx, "useradd", args...); err != nil {
		return nil, err
	}
	o.MarkExecuted()
	return map[string]any{"user": o.Name}, nil
}

func (o *CreateUser) Rollback(ctx context.Context) error {
	if !o.Executed() {
		return nil
	}
	o.Logger().Info().Str("user", o.Name).Msg("deleting user")
	if _, err := o.host.Run(ctx, "userdel", o.Name); err != nil {
		return err
	}
	o.ClearExecuted()
	return nil
}
