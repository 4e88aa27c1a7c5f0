package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/cgpaboard/cgpaboard/core/account"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db     *sql.DB
	accSvc account.ServiceInterface
	out    io.Writer
}

func (cli *commandLine) stdout() io.Writer {
	if cli.out == nil {
		return os.Stdout
	}
	return cli.out
}

func (cli *commandLine) printUsage() {
	w := cli.stdout()
	_, _ = fmt.Fprintln(w, "Usage:")
	_, _ = fmt.Fprintln(w, "  migrate COMMAND [VERSION]  - run database migrations (up, up-by-one, up-to, down, down-to, redo)")
	_, _ = fmt.Fprintln(w, "  provision -username NAME   - create NAME's account ahead of their first login")
	_, _ = fmt.Fprintln(w, "  clearterm -username ADMIN  - clear every semester 5 actual CGPA as ADMIN")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	provisionCmd := flag.NewFlagSet("provision", flag.ContinueOnError)
	provisionUname := provisionCmd.String("username", "", "The username to provision.")

	clearTermCmd := flag.NewFlagSet("clearterm", flag.ContinueOnError)
	clearTermUname := clearTermCmd.String("username", "", "The admin's username. The admin password will be prompted next.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "provision":
		if err := provisionCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *provisionUname == "" {
			provisionCmd.Usage()
			return errHelp
		}
		return cli.provision(*provisionUname)
	case "clearterm":
		if err := clearTermCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *clearTermUname == "" {
			clearTermCmd.Usage()
			return errHelp
		}
		_, _ = fmt.Fprint(cli.stdout(), "Enter admin password:")
		pwd, err := readPasswordFunc(int(syscall.Stdin))
		_, _ = fmt.Fprintln(cli.stdout())
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			clearTermCmd.Usage()
			return errHelp
		}
		return cli.clearTerm(*clearTermUname, string(pwd))
	default:
		cli.printUsage()
		return errHelp
	}
}
