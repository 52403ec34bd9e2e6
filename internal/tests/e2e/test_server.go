package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/you/websession/internal/app"
	"github.com/you/websession/internal/config"
	"github.com/you/websession/internal/infrastructure/logger"
	testconfig "github.com/you/websession/internal/tests/config"
)

// TestServer runs the real gateway against a FakeBackend, driven by a
// browser-like client that keeps cookies and does not follow redirects
type TestServer struct {
	Server    *httptest.Server
	Container *app.Container
	Config    *config.Config
	Backend   *FakeBackend
	Client    *http.Client
}

// NewTestServer builds the gateway through app.NewContainer. overrides are
// environment variables applied on top of the test defaults.
func NewTestServer(t *testing.T, backend *FakeBackend, overrides map[string]string) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := testconfig.LoadTestConfig(t, backend.BaseURL(), overrides)
	container, err := app.NewContainer(testContext(t), cfg, logger.Discard())
	if err != nil {
		t.Fatalf("Failed to create container: %v", err)
	}
	server := httptest.NewServer(container.Router())
	t.Cleanup(func() {
		server.Close()
		container.Close()
	})

	return &TestServer{Server: server, Container: container, Config: cfg, Backend: backend, Client: newBrowserClient(t)}
}

// NewBrowser returns a view of the same gateway from a browser with an empty cookie jar
func (s *TestServer) NewBrowser(t *testing.T) *TestServer {
	t.Helper()
	other := *s
	other.Client = newBrowserClient(t)
	return &other
}

// testContext returns a context canceled when the test finishes
// (stands in for testing.T.Context, which needs Go 1.24)
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

func newBrowserClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("Failed to create cookie jar: %v", err)
	}
	return &http.Client{
		Jar:     jar,
		Timeout: 10 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Response is a fully read HTTP response
type Response struct {
	Status   int
	Header   http.Header
	Body     string
	Location string
}

// JSON decodes the body into a generic map
func (r *Response) JSON(t *testing.T) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(r.Body), &out); err != nil {
		t.Fatalf("response is not JSON (status %d): %s", r.Status, r.Body)
	}
	return out
}

// Data returns the "data" object of a success envelope
func (r *Response) Data(t *testing.T) map[string]interface{} {
	t.Helper()
	data, ok := r.JSON(t)["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("response has no data object: %s", r.Body)
	}
	return data
}

func (s *TestServer) do(t *testing.T, req *http.Request) *Response {
	t.Helper()
	resp, err := s.Client.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return &Response{
		Status:   resp.StatusCode,
		Header:   resp.Header,
		Body:     string(body),
		Location: resp.Header.Get("Location"),
	}
}

func (s *TestServer) newRequest(t *testing.T, method, path string, body io.Reader) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(testContext(t), method, s.Server.URL+path, body)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	return req
}

// Page requests path the way a browser navigates to it
func (s *TestServer) Page(t *testing.T, path string) *Response {
	t.Helper()
	req := s.newRequest(t, http.MethodGet, path, nil)
	req.Header.Set("Accept", "text/html")
	return s.do(t, req)
}

// API issues a JSON request; body may be nil
func (s *TestServer) API(t *testing.T, method, path string, body interface{}) *Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = strings.NewReader(string(raw))
	}
	req := s.newRequest(t, method, path, reader)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.do(t, req)
}

// Form posts an HTML form
func (s *TestServer) Form(t *testing.T, path string, values url.Values) *Response {
	t.Helper()
	req := s.newRequest(t, http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/html")
	return s.do(t, req)
}

// Login signs the client in through the JSON endpoint
func (s *TestServer) Login(t *testing.T, email, password string) *Response {
	t.Helper()
	resp := s.API(t, http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password})
	if resp.Status != http.StatusOK {
		t.Fatalf("login as %s failed with %d: %s", email, resp.Status, resp.Body)
	}
	return resp
}

// SessionCookie returns the browser session cookie the client holds
func (s *TestServer) SessionCookie(t *testing.T) *http.Cookie {
	t.Helper()
	u, _ := url.Parse(s.Server.URL)
	for _, c := range s.Client.Jar.Cookies(u) {
		if c.Name == s.Config.CookieName {
			return c
		}
	}
	return nil
}
