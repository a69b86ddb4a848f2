// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package testing provides tools to tests the HTTP routes.
package testing

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"runtime"
	"strings"
	"testing"

	"github.com/kinbiko/jsonassert"
	"github.com/stretchr/testify/require"

	"codeberg.org/readeck/authzbridge/internal/acls"
	"codeberg.org/readeck/authzbridge/internal/auth"
	"codeberg.org/readeck/authzbridge/internal/auth/users"
	"codeberg.org/readeck/authzbridge/internal/authz"
	"codeberg.org/readeck/authzbridge/internal/db"
	"codeberg.org/readeck/authzbridge/internal/server"
)

type fixtureData struct {
	Users map[string]struct {
		Groups      []string `json:"groups"`
		Permissions []string `json:"permissions"`
		IsStaff     bool     `json:"is_staff"`
		IsActive    *bool    `json:"is_active"`
		IsSuperuser bool     `json:"is_superuser"`
	} `json:"users"`
	Apps []string `json:"apps"`

	users map[string]*TestUser
}

func fixturePath(name string) string {
	_, curFile, _, _ := runtime.Caller(0)
	return path.Join(path.Dir(curFile), "fixtures", name)
}

func loadFixtures(t *testing.T) *fixtureData {
	fd, err := os.Open(fixturePath("data.json"))
	if err != nil {
		t.Fatal(err)
	}
	defer fd.Close() // nolint:errcheck

	dec := json.NewDecoder(fd)
	res := new(fixtureData)
	if err := dec.Decode(res); err != nil {
		t.Fatal(err)
	}

	return res
}

func loadPolicy(t *testing.T) acls.Policy {
	fd, err := os.Open(fixturePath("policy.conf"))
	if err != nil {
		t.Fatal(err)
	}
	defer fd.Close() // nolint:errcheck

	policy, err := acls.LoadPolicy(fd)
	if err != nil {
		t.Fatal(err)
	}
	return policy
}

func (f *fixtureData) createUsers(t *testing.T, store *users.SQLStore) {
	f.users = map[string]*TestUser{}
	for name, user := range f.Users {
		u := &users.User{
			Username:   name,
			GroupNames: user.Groups,
			Grants:     user.Permissions,
			Staff:      user.IsStaff,
			Active:     user.IsActive == nil || *user.IsActive,
			Superuser:  user.IsSuperuser,
		}
		tu, err := NewTestUser(store, u, name)
		if err != nil {
			t.Fatal(err)
		}
		f.users[name] = tu
		t.Logf("created user: %s%v", u.Username, u.Groups())
	}
}

// TestUser contains the user data that we can use during tests.
type TestUser struct {
	User     *users.User
	password string
}

// NewTestUser creates a new user for testing.
func NewTestUser(store *users.SQLStore, u *users.User, password string) (*TestUser, error) {
	if err := u.SetPassword(password); err != nil {
		return nil, err
	}
	if err := store.Create(context.Background(), u); err != nil {
		return nil, err
	}

	return &TestUser{User: u, password: password}, nil
}

// Password returns the user's password.
func (tu *TestUser) Password() string {
	return tu.password
}

// TestApp holds information of the application for testing.
type TestApp struct {
	Srv   *server.Server
	Store *users.SQLStore
	Users map[string]*TestUser
	Log   *bytes.Buffer
}

// NewTestApp initializes TestApp with the fixture users and ACL
// declarations, and an http muxer ready to accept requests.
// Options are applied to the server before its routes are added.
func NewTestApp(t *testing.T, options ...func(*server.Options)) *TestApp {
	ctx := context.Background()

	database, err := db.Open("sqlite3:" + path.Join(t.TempDir(), "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := db.Close(database); err != nil {
			t.Logf("error closing database: %s", err)
		}
	})
	if err = db.Init(ctx, database); err != nil {
		t.Fatal(err)
	}

	ta := &TestApp{
		Store: users.NewSQLStore(database, loadPolicy(t)),
		Log:   new(bytes.Buffer),
	}

	fixtures := loadFixtures(t)
	fixtures.createUsers(t, ta.Store)
	ta.Users = fixtures.users

	builder := &authz.Builder{
		Provider: authz.DirProvider{
			Root:       fixturePath("acls"),
			Predicates: authz.NamedPredicates(),
		},
		Logger: slog.New(slog.NewTextHandler(ta.Log, nil)),
	}
	registry, err := builder.Build(fixtures.Apps)
	if err != nil {
		t.Fatal(err)
	}
	registry.Freeze()

	opts := server.Options{
		Registry: registry,
		Providers: []auth.Provider{
			&auth.BasicAuthProvider{Users: ta.Store},
			&auth.HeaderProvider{Users: ta.Store, Header: "X-Remote-User"},
		},
	}
	for _, f := range options {
		f(&opts)
	}

	ta.Srv = server.New(opts)
	ta.Srv.Init()

	return ta
}

// Client creates a new [Client] instance.
func (ta *TestApp) Client(options ...ClientOption) *Client {
	c := &Client{
		app:    ta,
		Header: http.Header{},
	}

	for _, f := range options {
		f(c)
	}

	return c
}

// ClientOption is a function passed to [TestApp.Client].
type ClientOption func(c *Client)

// WithBasicAuth adds an Authorization header with the user's
// credentials to the client.
func WithBasicAuth(username string) ClientOption {
	return func(c *Client) {
		u, ok := c.app.Users[username]
		if !ok {
			return
		}

		r := &http.Request{Header: http.Header{}}
		r.SetBasicAuth(username, u.Password())
		c.Header.Set("Authorization", r.Header.Get("Authorization"))
	}
}

// WithJSON sets the client's Accept header to application/json.
func WithJSON() ClientOption {
	return func(c *Client) {
		c.Header.Set("Accept", "application/json")
	}
}

// Client is a thin HTTP client over the main server router.
type Client struct {
	app    *TestApp
	Header http.Header
}

// NewRequest creates a new [http.Request].
//
// body of types [io.Reader], []byte, string or nil are passed as is.
// Otherwise, the body is marshaled and the Content-Type is set to "application/json".
func (c *Client) NewRequest(method, target string, body any) (*http.Request, error) {
	header := http.Header{}
	maps.Copy(header, c.Header)

	var b io.Reader

	switch t := body.(type) {
	case io.Reader:
		b = t
	case []byte:
		b = bytes.NewReader(t)
	case string:
		b = strings.NewReader(t)
	case nil:
		b = nil
	default:
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(t); err != nil {
			return nil, err
		}
		b = buf
		header.Set("Content-Type", "application/json")
	}

	req := httptest.NewRequest(method, target, b)
	maps.Copy(req.Header, header)

	return req, nil
}

// Request performs a Request using httptest tools.
// It returns a Response instance that can be evaluated for testing
// purposes.
func (c *Client) Request(t *testing.T, req *http.Request) *Response {
	w := httptest.NewRecorder()
	c.app.Srv.ServeHTTP(w, req)

	rsp, err := NewResponse(w)
	if err != nil {
		t.Fatal(err)
	}
	rsp.Request = req

	return rsp
}

// RT prepares a [RequestTest] and returns a function that receives a [testing.T]
// variable, runs the request and performs the assertions.
func (c *Client) RT(options ...TestOption) func(t *testing.T) {
	return func(t *testing.T) {
		c.Run(t, RT(options...))
	}
}

// Run runs the request from [RequestTest] and performs
// the assertions.
func (c *Client) Run(t *testing.T, rt *RequestTest) bool {
	return t.Run(rt.Name, func(t *testing.T) {
		req, err := c.NewRequest(rt.Method, rt.Target, rt.Body)
		if err != nil {
			t.Fatal(err)
		}
		for k, v := range rt.Header {
			req.Header[k] = v
		}
		rsp := c.Request(t, req)
		for _, f := range rt.Assert {
			f(t, rsp)
		}
	})
}

// Sequence returns a function that receives a [testing.T] variable and runs
// the given [RequestTest] list. It stops on the first failed test.
func (c *Client) Sequence(tests ...*RequestTest) func(t *testing.T) bool {
	return func(t *testing.T) bool {
		for _, rt := range tests {
			if !c.Run(t, rt) {
				return false
			}
		}
		return true
	}
}

type (
	// TestOption is an option for [RequestTest].
	TestOption func(rt *RequestTest)

	// RspAssertion is a [Response] assertion function.
	RspAssertion func(t *testing.T, rsp *Response)

	// RequestTest contains data that are used to perform requests.
	RequestTest struct {
		Name   string
		Method string
		Target string
		Body   any
		Header http.Header
		Assert []RspAssertion
	}
)

// RT creates a new [RequestTest].
func RT(options ...TestOption) *RequestTest {
	rt := &RequestTest{
		Method: http.MethodGet,
		Header: http.Header{},
	}

	for _, f := range options {
		f(rt)
	}

	if rt.Name == "" {
		rt.Name = rt.Method + "[" + rt.Target + "]"
	}

	return rt
}

// WithName sets the [RequestTest.Name].
func WithName(name string) TestOption {
	return func(rt *RequestTest) {
		rt.Name = name
	}
}

// WithMethod sets the [RequestTest.Method].
func WithMethod(method string) TestOption {
	return func(rt *RequestTest) {
		rt.Method = method
	}
}

// WithTarget sets the [RequestTest.Target].
func WithTarget(target string) TestOption {
	return func(rt *RequestTest) {
		rt.Target = target
	}
}

// WithBody sets the [RequestTest.Body].
func WithBody(body any) TestOption {
	return func(rt *RequestTest) {
		rt.Body = body
	}
}

// WithHeader adds a value to [RequestTest.Header].
func WithHeader(name, value string) TestOption {
	return func(rt *RequestTest) {
		rt.Header.Add(name, value)
	}
}

// WithAssert adds an [RspAssertion] to the [RequestTest.Assert].
func WithAssert(assertion RspAssertion) TestOption {
	return func(rt *RequestTest) {
		rt.Assert = append(rt.Assert, assertion)
	}
}

// AssertStatus checks the response's expected status.
func AssertStatus(status int) TestOption {
	return WithAssert(func(t *testing.T, rsp *Response) {
		rsp.AssertStatus(t, status)
	})
}

// AssertContains checks that the response's body contains the expected string.
func AssertContains(expected string) TestOption {
	return WithAssert(func(t *testing.T, rsp *Response) {
		rsp.AssertContains(t, expected)
	})
}

// AssertJSON checks that the response's JSON matches what we expect.
func AssertJSON(expected string) TestOption {
	return WithAssert(func(t *testing.T, rsp *Response) {
		rsp.AssertJSON(t, expected)
	})
}

// Response is a wrapper around http.Response where the body is stored.
type Response struct {
	*http.Response
	Body []byte
	JSON any
}

// NewResponse returns a Response instance based on the ResponseRecorder
// given in input.
func NewResponse(rec *httptest.ResponseRecorder) (*Response, error) {
	var err error
	r := &Response{Response: rec.Result()} //nolint:bodyclose

	// Read the response's body
	r.Body, err = io.ReadAll(r.Response.Body)
	if err != nil {
		return nil, err
	}

	if strings.HasPrefix(r.Header.Get("content-type"), "application/json") {
		if err := json.Unmarshal(r.Body, &r.JSON); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// AssertStatus checks the response's expected status.
func (r *Response) AssertStatus(t *testing.T, expected int) {
	require.Equal(t, expected, r.StatusCode)
}

// AssertContains checks that the response's body contains the expected string.
func (r *Response) AssertContains(t *testing.T, expected string) {
	require.Contains(t, string(r.Body), expected)
}

// AssertJSON checks that the response's JSON matches what we expect.
func (r *Response) AssertJSON(t *testing.T, expected string) {
	jsonassert.New(t).Assertf(string(r.Body), "%s", expected)
	if t.Failed() {
		t.Errorf("Received JSON: %s\n", string(r.Body))
		t.FailNow()
	}
}
