package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/cgpaboard/cgpaboard/core/account"
)

// provision runs the first-login bootstrap for a username.
func (cli *commandLine) provision(uname string) error {
	ident, acc, err := cli.accSvc.Resolve(context.Background(), uname)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.stdout(), "%s (%s) is ready: guessed %.2f\n", ident.Name, ident.Role, acc.GuessedCGPA)
	return nil
}

// clearTerm clears every semester 5 actual on behalf of an admin.
func (cli *commandLine) clearTerm(adminUname, secret string) error {
	ctx := context.Background()

	var caller *account.Account
	acc, err := cli.accSvc.GetByUsername(ctx, adminUname)
	switch errors.Cause(err) {
	case nil:
		caller = &acc
	case account.ErrNotFound: // no such caller
	default:
		return err
	}

	res, err := cli.accSvc.Reset(ctx, caller, secret)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.stdout(), "cleared %d semester 5 CGPAs\n", res.ClearedCount)
	return nil
}
