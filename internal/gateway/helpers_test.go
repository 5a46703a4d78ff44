package gateway

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/chatgate/internal/config"
	"github.com/flemzord/chatgate/internal/core"
	"github.com/flemzord/chatgate/internal/history"
	"github.com/flemzord/chatgate/internal/provider"
	"github.com/flemzord/chatgate/internal/provider/providertest"
	"github.com/flemzord/chatgate/internal/security"
	"github.com/flemzord/chatgate/internal/session"
	"github.com/flemzord/chatgate/pkg/conversation"
)

const testPasscode = "letmein-1234"

func mustYAMLNode(t *testing.T, s string) *yaml.Node {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(s), &node); err != nil {
		t.Fatalf("yaml.Unmarshal: %v", err)
	}
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		return node.Content[0]
	}
	return &node
}

// fakePersister is an in-memory history.Persister whose availability can
// be toggled.
type fakePersister struct {
	mu        sync.Mutex
	available bool
	saved     []*conversation.Conversation
}

func (p *fakePersister) Available(context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available
}

func (p *fakePersister) Load(context.Context) []*conversation.Conversation { return nil }

func (p *fakePersister) Save(_ context.Context, entries []*conversation.Conversation) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.available {
		return false
	}
	p.saved = entries
	return true
}

// recordingAudit collects audit events.
type recordingAudit struct {
	mu     sync.Mutex
	events []security.AuditEvent
}

func (a *recordingAudit) record(e security.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

func (a *recordingAudit) types() []security.EventType {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]security.EventType, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Type)
	}
	return out
}

type testEnv struct {
	g         *Gateway
	mock      *providertest.MockProvider
	history   *history.Store
	persister *fakePersister
	sessions  *session.Store
	audit     *recordingAudit
	srv       *httptest.Server
}

type envOption func(appCtx *core.AppContext)

func withLimiter(rl *security.RateLimiter) envOption {
	return func(appCtx *core.AppContext) { appCtx.RegisterService(LimiterService, rl) }
}

func withLimits(l config.LimitsConfig) envOption {
	return func(appCtx *core.AppContext) { appCtx.RegisterService(LimitsService, l) }
}

// newTestEnv provisions a gateway wired to in-memory collaborators and
// serves its router from an httptest server.
func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	g := &Gateway{}
	if err := g.Configure(mustYAMLNode(t, "passcode: "+testPasscode)); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	appCtx := core.NewAppContext(logger, t.TempDir())
	if err := g.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}

	env := &testEnv{
		g:         g,
		mock:      &providertest.MockProvider{StreamFunc: providertest.Reply("Hello", " there")},
		persister: &fakePersister{available: true},
		audit:     &recordingAudit{},
	}
	env.history = history.NewStore(history.StoreConfig{
		Persister: env.persister,
		Logger:    logger,
		Observer:  g.metrics,
	})
	reg := provider.NewRegistry()
	reg.Register(session.DefaultProvider, env.mock)
	env.sessions = session.NewStore(func() *session.Session {
		return session.New(session.Config{
			History:   env.history,
			Providers: reg,
			Logger:    logger,
			Observer:  g.metrics,
		})
	})

	appCtx.RegisterService(SessionsService, env.sessions)
	appCtx.RegisterService(HistoryService, env.history)
	appCtx.RegisterService(history.ServiceName, history.Persister(env.persister))
	appCtx.RegisterService(AuditService, security.NewAuditLogger(security.AuditLoggerConfig{OnEvent: env.audit.record}))
	for _, opt := range opts {
		opt(appCtx)
	}

	if err := g.resolve(); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	env.srv = httptest.NewServer(g.buildRouter())
	t.Cleanup(env.srv.Close)
	return env
}

// client returns an HTTP client with a cookie jar that does not follow
// redirects.
func (e *testEnv) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (e *testEnv) postLogin(t *testing.T, c *http.Client, passcode string) *http.Response {
	t.Helper()
	resp, err := c.PostForm(e.srv.URL+"/login", url.Values{"passcode": {passcode}})
	if err != nil {
		t.Fatalf("POST /login: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// login returns a logged-in client and its session token.
func (e *testEnv) login(t *testing.T) (*http.Client, string) {
	t.Helper()
	c := e.client(t)
	resp := e.postLogin(t, c, testPasscode)
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("login status = %d, want 303", resp.StatusCode)
	}
	u, _ := url.Parse(e.srv.URL)
	for _, ck := range c.Jar.Cookies(u) {
		if ck.Name == DefaultCookieName {
			return c, ck.Value
		}
	}
	t.Fatal("session cookie not set")
	return nil, ""
}

func (e *testEnv) do(t *testing.T, c *http.Client, method, path, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}
