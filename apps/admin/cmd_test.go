package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/calendar"
	"github.com/trezcool/academia/core/coursework"
	"github.com/trezcool/academia/core/group"
	"github.com/trezcool/academia/core/user"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
	testutil "github.com/trezcool/academia/tests"
)

var (
	usrRepo user.Repository
	grpRepo group.Repository
)

type fakeSweeper struct {
	report coursework.SweepReport
	err    error
}

func (s fakeSweeper) Sweep(context.Context) (coursework.SweepReport, error) { return s.report, s.err }

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	testutil.FreezeTime(t, time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC))

	// set up DB & repos
	db := inmemdb.Open()
	usrRepo = inmemdb.NewUserRepository(db)
	grpRepo = inmemdb.NewGroupRepository(db)

	validate, _ := testutil.NewValidator()
	logger := new(testutil.Logger)
	usrSvc := user.NewService(usrRepo, validate)
	grpSvc := group.NewService(grpRepo, usrSvc.AdminID, validate, logger)

	// start CLI
	out := new(bytes.Buffer)
	return &commandLine{
		usrRepo: usrRepo,
		usrSvc:  usrSvc,
		calSvc:  calendar.NewService(inmemdb.NewCalendarRepository(db), db, grpSvc, validate, core.NewTestConfig(), logger, nil),
		sweeper: fakeSweeper{report: coursework.SweepReport{Scanned: 4, Changed: 1, Took: time.Second}},
		out:     out,
	}, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, err)
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Contains(t, err.Error(), tt.wantErrStr)
		}
	default:
		assert.NoError(t, err)
	}
}

func Test_commandLine_help(t *testing.T) {
	cli, _ := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	var gotCommand string
	var gotArgs []string
	prev := migrateFunc
	migrateFunc = func(db *sql.DB, command string, args ...string) error {
		gotCommand, gotArgs = command, args
		if command == "lol" {
			return errors.New(`"lol": no such command`)
		}
		return nil
	}
	t.Cleanup(func() { migrateFunc = prev })

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: `"lol": no such command`},
		{name: "up", args: []string{"migrate", "up"}, extra: []string{}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}, extra: []string{"2"}},
		{name: "create", args: []string{"migrate", "create", "lecture_rooms", "sql"}, extra: []string{"lecture_rooms", "sql"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotCommand, gotArgs = "", nil
			err := cli.run(append([]string{"admin"}, tt.args...))
			tt.check(t, err)
			if wantArgs, ok := tt.extra.([]string); ok {
				assert.Equal(t, tt.args[1], gotCommand)
				assert.ElementsMatch(t, wantArgs, gotArgs)
			}
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli, _ := setup(t)

	existing := testutil.CreateUser(t, usrRepo, "User", "awe", "awe@test.cd", "mdr", nil, false)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"adduser", "-username", "lol"}, wantErr: errHelp},
		{name: "unknown role", args: []string{"adduser", "-username", "lol", "-role", "wizard"}, extra: extra{pwd: "lol-pass"}, wantErrStr: "role: unknown role wizard"},
		{name: "create teacher", args: []string{"adduser", "-username", "Ada", "-email", "ada@test.cd", "-role", user.RoleTeacher}, extra: extra{pwd: "ada-pass"}},
		{name: "create admin", args: []string{"adduser", "-username", "root", "-email", "root@test.cd", "-admin"}, extra: extra{pwd: "root-pass"}},
		{name: "reset with email", args: []string{"adduser", "-email", existing.Email}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}

	ctx := context.Background()

	ada, err := usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{"ada"}})
	require.NoError(t, err)
	assert.Equal(t, []string{user.RoleTeacher}, ada.Roles)
	assert.True(t, ada.IsActive)
	assert.NoError(t, ada.CheckPassword("ada-pass"))

	root, err := usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{"root"}})
	require.NoError(t, err)
	assert.True(t, root.IsAdmin())

	refreshed, err := usrRepo.GetUser(ctx, user.GetFilter{ID: existing.ID})
	require.NoError(t, err)
	assert.NoError(t, refreshed.CheckPassword("lmao"))
	assert.True(t, refreshed.IsActive, "adduser reactivates the account")
	assert.Equal(t, "User", refreshed.Name)

	_, err = usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{"lol"}})
	assert.Equal(t, user.ErrNotFound, err)
}

func Test_commandLine_sweep(t *testing.T) {
	cli, out := setup(t)

	require.NoError(t, cli.run([]string{"admin", "sweep"}))
	assert.Equal(t, "scanned 4 items: 1 changed, 0 failed (1s)\n", out.String())

	cli.sweeper = fakeSweeper{err: errors.New("db down")}
	assert.EqualError(t, cli.run([]string{"admin", "sweep"}), "sweeping statuses: db down")
}

func Test_commandLine_importLectures(t *testing.T) {
	cli, out := setup(t)

	testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.cd", "admin-pass", []string{user.RoleAdmin}, true)
	teacher := testutil.CreateUser(t, usrRepo, "Ada", "ada", "ada@test.cd", "ada-pass", []string{user.RoleTeacher}, true)
	other := testutil.CreateUser(t, usrRepo, "Grace", "grace", "grace@test.cd", "grace-pass", []string{user.RoleTeacher}, true)
	grp := testutil.CreateGroup(t, grpRepo, "G1", teacher.ID)

	dir := t.TempDir()
	writeFile := func(name, content string) string {
		fp := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(fp, []byte(content), 0o600))
		return fp
	}
	timetable := writeFile("timetable.yaml", `lectures:
  - group: `+grp.ID+`
    title: Algebra
    location: Room 1
    start: 2024-01-08T09:00:00Z
    end: 2024-01-08T10:30:00Z
    repeat:
      frequency: weekly
      weekdays: [monday, wed]
      count: 6
  - group: `+grp.ID+`
    title: Geometry
    start: 2024-01-10T10:00:00Z
    end: 2024-01-10T11:00:00Z
  - group: `+grp.ID+`
    title: Physics
    start: 2024-01-09T09:00:00Z
    end: 2024-01-09T10:00:00Z
`)
	unknownKey := writeFile("bad.yaml", "lectures:\n  - group: x\n    room: 12\n")

	tests := []cliTest{
		{name: "no file", args: []string{"import-lectures"}, wantErr: errHelp},
		{name: "missing file", args: []string{"import-lectures", "-file", filepath.Join(dir, "nope.yaml")}, wantErrStr: "no such file"},
		{name: "unknown key", args: []string{"import-lectures", "-file", unknownKey}, wantErrStr: "decoding timetable"},
		{name: "unknown user", args: []string{"import-lectures", "-file", timetable, "-as", "lol"}, wantErrStr: "finding scheduling user"},
		{name: "not the instructor", args: []string{"import-lectures", "-file", timetable, "-as", other.Username}, wantErrStr: "3 lecture(s) could not be scheduled"},
		{name: "as admin", args: []string{"import-lectures", "-file", timetable}, wantErrStr: "1 lecture(s) could not be scheduled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}

	// the last run scheduled Algebra and Physics; Geometry overlaps Wednesday's Algebra
	assert.Contains(t, out.String(), `"Geometry": time slot conflicts with lecture "Algebra"`)
	assert.Contains(t, out.String(), "2 scheduled, 1 failed")

	lectures, err := cli.calSvc.GroupLectures(context.Background(), teacher, grp.ID)
	require.NoError(t, err)
	assert.Len(t, lectures, 2)
}
