package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/calendar"
	"github.com/trezcool/academia/core/coursework"
	"github.com/trezcool/academia/core/group"
	"github.com/trezcool/academia/core/user"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
	testutil "github.com/trezcool/academia/tests"
)

const password = "s3cret-pass"

// now is a Wednesday.
var now = time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC)

type testApp struct {
	*echoapi.Server
	conf    *core.Config
	usrRepo user.Repository
	grpRepo group.Repository
	clock   *testutil.Clock

	admin, teacher, student, student2, outsider user.User
	grp                                         group.Group
}

func setup(t *testing.T) *testApp {
	app := &testApp{
		conf:  core.NewTestConfig(),
		clock: testutil.FreezeTime(t, now),
	}

	// set up DB & repos
	db := inmemdb.Open()
	app.usrRepo = inmemdb.NewUserRepository(db)
	app.grpRepo = inmemdb.NewGroupRepository(db)
	calRepo := inmemdb.NewCalendarRepository(db)
	cwRepo := inmemdb.NewCourseworkRepository(db)

	// set up services
	validate, translator := testutil.NewValidator()
	logger := new(testutil.Logger)
	usrSvc := user.NewService(app.usrRepo, validate)
	grpSvc := group.NewService(app.grpRepo, usrSvc.AdminID, validate, logger)
	calSvc := calendar.NewService(calRepo, db, grpSvc, validate, app.conf, logger, core.NopMetrics)
	cwSvc := coursework.NewService(cwRepo, cwRepo, db, grpSvc, validate, logger, core.NopMetrics)

	app.admin = testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@test.cd", password, []string{user.RoleAdmin}, true)
	app.teacher = testutil.CreateUser(t, app.usrRepo, "Ada", "ada", "ada@test.cd", password, []string{user.RoleTeacher}, true)
	app.student = testutil.CreateUser(t, app.usrRepo, "Bob", "bob", "bob@test.cd", password, []string{user.RoleStudent}, true)
	app.student2 = testutil.CreateUser(t, app.usrRepo, "Eve", "eve", "eve@test.cd", password, []string{user.RoleStudent}, true)
	app.outsider = testutil.CreateUser(t, app.usrRepo, "Zed", "zed", "zed@test.cd", password, []string{user.RoleStudent}, true)
	app.grp = testutil.CreateGroup(t, app.grpRepo, "G1", app.teacher.ID, app.student.ID, app.student2.ID)

	// set up server
	app.Server = echoapi.NewServer(echoapi.Deps{
		Conf:           app.conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		UserSvc:        usrSvc,
		GroupSvc:       grpSvc,
		CalendarSvc:    calSvc,
		CourseworkSvc:  cwSvc,
		DisableReqLogs: true,
	})
	return app
}

func (app *testApp) token(t *testing.T, usr user.User) string {
	token, err := echoapi.GenerateToken(echoapi.GetUserClaims(usr, app.conf), app.conf)
	if err != nil {
		t.Fatalf("token() failed: %v", err)
	}
	return token
}

// do serves a request and decodes the JSON response into out, when given.
func (app *testApp) do(t *testing.T, method, path, token string, body interface{}, out interface{}) *httptest.ResponseRecorder {
	var data []byte
	if body != nil {
		data = marchallObj(t, body)
	}
	req, rec := newAuthRequest(method, path, token, data)
	app.ServeHTTP(rec, req)
	if out != nil && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func httpErr(msg string, fields ...map[string]string) []byte {
	body := map[string]interface{}{"success": false, "message": msg}
	if len(fields) > 0 {
		body["errors"] = fields[0]
	}
	data, _ := json.Marshal(body)
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, app *testApp, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
