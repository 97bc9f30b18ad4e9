package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"syscall"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/trezcool/academia/core/calendar"
	"github.com/trezcool/academia/core/coursework"
	"github.com/trezcool/academia/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type (
	statusSweeper interface {
		Sweep(ctx context.Context) (coursework.SweepReport, error)
	}

	commandLine struct {
		db      *sql.DB
		usrRepo user.Repository
		usrSvc  *user.Service
		calSvc  *calendar.Service
		sweeper statusSweeper
		out     io.Writer
	}
)

func (cmd *commandLine) app() *cli.App {
	return &cli.App{
		Name:      "admin",
		Usage:     "Academia administration commands",
		Writer:    cmd.out,
		ErrWriter: cmd.out,
		Action: func(c *cli.Context) error {
			_ = cli.ShowAppHelp(c)
			return errHelp
		},
		Commands: []*cli.Command{
			{
				Name:      "migrate",
				Usage:     "Run a goose migration command (up, down, status, ...)",
				ArgsUsage: "COMMAND [ARGS...]",
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						_ = cli.ShowCommandHelp(c, c.Command.Name)
						return errHelp
					}
					return cmd.migrate(c.Args().Slice())
				},
			},
			{
				Name:  "adduser",
				Usage: "Create a user or update its password. The password is prompted.",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Usage: "The user's username"},
					&cli.StringFlag{Name: "email", Usage: "The user's email"},
					&cli.StringFlag{Name: "name", Usage: "The user's full name"},
					&cli.StringSliceFlag{Name: "role", Usage: "A role of the user, repeatable"},
					&cli.BoolFlag{Name: "admin", Usage: "Grant every role"},
				},
				Action: func(c *cli.Context) error {
					if c.String("username") == "" && c.String("email") == "" {
						_ = cli.ShowCommandHelp(c, c.Command.Name)
						return errHelp
					}
					fmt.Fprint(cmd.out, "Enter password:")
					pwd, err := readPasswordFunc(int(syscall.Stdin))
					fmt.Fprintln(cmd.out)
					if err != nil {
						return err
					}
					if len(pwd) == 0 {
						_ = cli.ShowCommandHelp(c, c.Command.Name)
						return errHelp
					}
					return cmd.addUser(c.Context, newUserArgs{
						name:    c.String("name"),
						uname:   c.String("username"),
						email:   c.String("email"),
						pwd:     string(pwd),
						roles:   c.StringSlice("role"),
						isAdmin: c.Bool("admin"),
					})
				},
			},
			{
				Name:  "sweep",
				Usage: "Recompute the status of every open work item once",
				Action: func(c *cli.Context) error {
					return cmd.sweep(c.Context)
				},
			},
			{
				Name:  "import-lectures",
				Usage: "Schedule the lectures of a YAML timetable",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Usage: "Path of the timetable"},
					&cli.StringFlag{Name: "as", Usage: "Username of the scheduling user (the administrator by default)"},
				},
				Action: func(c *cli.Context) error {
					if c.String("file") == "" {
						_ = cli.ShowCommandHelp(c, c.Command.Name)
						return errHelp
					}
					return cmd.importLectures(c.Context, c.String("file"), c.String("as"))
				},
			},
		},
	}
}

func (cmd *commandLine) run(args []string) error {
	return cmd.app().RunContext(context.Background(), args)
}
