package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/schoolsite/internal/auth"
	"github.com/hitoshi/schoolsite/internal/metrics"
	"github.com/hitoshi/schoolsite/internal/middleware"
	"github.com/hitoshi/schoolsite/internal/model"
	"github.com/hitoshi/schoolsite/internal/security"
)

// --- インメモリリポジトリ ---

type memUsers struct {
	mu    sync.Mutex
	users map[string]*model.User // key: email
}

func (m *memUsers) FindByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (m *memUsers) UpdateLastLoginAt(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			u.LastLoginAt = &at
		}
	}
	return nil
}

func (m *memUsers) setActive(email string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[email].IsActive = active
}

type memSessions struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
}

func (m *memSessions) Create(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *memSessions) FindByID(_ context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.IsExpired(time.Now()) {
		return nil, nil
	}
	return s, nil
}

func (m *memSessions) DeleteByID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memSessions) DeleteByUserID(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *memSessions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// --- テストサーバー ---

type testEnv struct {
	server   *httptest.Server
	users    *memUsers
	sessions *memSessions
	registry *prometheus.Registry
}

// newTestEnv は実際の認証サービスとルーターでテストサーバーを起動する。
// admin@gmail.com / admin123 の管理者と editor@gmail.com / editor123 の一般ユーザーを登録する。
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	hasher := security.NewBcryptHasher(bcrypt.MinCost)
	hash := func(pw string) string {
		h, err := hasher.Hash(pw)
		if err != nil {
			t.Fatalf("Hash() error = %v", err)
		}
		return h
	}

	users := &memUsers{users: map[string]*model.User{
		"admin@gmail.com": {
			ID: "admin-id", Email: "admin@gmail.com", Name: "Admin User", Role: "admin",
			PasswordHash: hash("admin123"), IsAdmin: true, IsActive: true,
		},
		"editor@gmail.com": {
			ID: "editor-id", Email: "editor@gmail.com", Name: "Editor", Role: "editor",
			PasswordHash: hash("editor123"), IsAdmin: false, IsActive: true,
		},
	}}
	sessions := &memSessions{sessions: map[string]*model.Session{}}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	svc := auth.NewService(users, sessions, hasher, collector, auth.ServiceConfig{SessionMaxAge: 3600})
	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(), collector)
	t.Cleanup(limiter.Stop)

	router := NewRouter(&RouterDeps{
		AdminResolver:     svc,
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       limiter,
		Logger:            discardLogger(),
		Metrics:           collector,
		MetricsHandler:    metrics.Handler(reg),
		AuthService:       svc,
		AuthConfig:        AuthHandlerConfig{SessionMaxAge: 3600},
		UserFinder:        users,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{server: server, users: users, sessions: sessions, registry: reg}
}

// browser はCookieを保持するHTTPクライアント。
type browser struct {
	t      *testing.T
	env    *testEnv
	client *http.Client
}

func (e *testEnv) newBrowser(t *testing.T) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New() error = %v", err)
	}
	return &browser{t: t, env: e, client: &http.Client{Jar: jar}}
}

func (b *browser) cookie(name string) string {
	u, _ := url.Parse(b.env.server.URL)
	for _, c := range b.client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// csrfToken はCSRFトークンを取得する。未取得の場合はエンドポイントから発行を受ける。
func (b *browser) csrfToken() string {
	b.t.Helper()
	if token := b.cookie("csrf_token"); token != "" {
		return token
	}
	resp := b.get("/api/csrf-token")
	var body struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal([]byte(resp.body), &body); err != nil || body.Token == "" {
		b.t.Fatalf("failed to obtain CSRF token: %v (%s)", err, resp.body)
	}
	if token := b.cookie("csrf_token"); token != "" {
		return token
	}
	return body.Token
}

type testResponse struct {
	status int
	body   string
	header http.Header
}

func (b *browser) do(req *http.Request) testResponse {
	b.t.Helper()
	resp, err := b.client.Do(req)
	if err != nil {
		b.t.Fatalf("%s %s failed: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		b.t.Fatalf("failed to read body: %v", err)
	}
	return testResponse{status: resp.StatusCode, body: string(data), header: resp.Header}
}

func (b *browser) get(path string) testResponse {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.env.server.URL+path, nil)
	if err != nil {
		b.t.Fatalf("NewRequest() error = %v", err)
	}
	return b.do(req)
}

func (b *browser) post(path, body string) testResponse {
	b.t.Helper()
	token := b.csrfToken()
	req, err := http.NewRequest(http.MethodPost, b.env.server.URL+path, strings.NewReader(body))
	if err != nil {
		b.t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", token)
	return b.do(req)
}

func (b *browser) login(email, password string) testResponse {
	b.t.Helper()
	return b.post("/api/auth/login", `{"email":"`+email+`","password":"`+password+`"}`)
}

func (b *browser) status() auth.Status {
	b.t.Helper()
	resp := b.get("/api/auth/status")
	if resp.status != http.StatusOK {
		b.t.Fatalf("GET /api/auth/status status = %d", resp.status)
	}
	var st auth.Status
	if err := json.Unmarshal([]byte(resp.body), &st); err != nil {
		b.t.Fatalf("failed to decode status: %v", err)
	}
	return st
}

// --- シナリオテスト ---

func TestIntegration_LoginStatusLogout(t *testing.T) {
	env := newTestEnv(t)
	b := env.newBrowser(t)

	if st := b.status(); st.Authenticated || st.User != nil {
		t.Fatalf("before login status = %+v, want unauthenticated", st)
	}

	resp := b.login("admin@gmail.com", "admin123")
	if resp.status != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", resp.status, resp.body)
	}
	var loginBody struct {
		Success  bool          `json:"success"`
		User     model.Profile `json:"user"`
		Redirect string        `json:"redirect"`
	}
	if err := json.Unmarshal([]byte(resp.body), &loginBody); err != nil {
		t.Fatalf("failed to decode login body: %v", err)
	}
	if !loginBody.Success || loginBody.Redirect != "/admin" || loginBody.User.ID != "admin-id" {
		t.Errorf("login body = %+v", loginBody)
	}
	if b.cookie(middleware.SessionCookieName) == "" {
		t.Fatal("session cookie should be stored")
	}

	st := b.status()
	if !st.Authenticated || st.User == nil || st.User.Email != "admin@gmail.com" {
		t.Fatalf("after login status = %+v", st)
	}

	if me := b.get("/api/admin/me"); me.status != http.StatusOK {
		t.Errorf("GET /api/admin/me status = %d, body = %s", me.status, me.body)
	}

	resp = b.post("/api/auth/logout", "")
	if resp.status != http.StatusOK {
		t.Fatalf("logout status = %d, body = %s", resp.status, resp.body)
	}
	if !strings.Contains(resp.body, `"redirect":"/login"`) {
		t.Errorf("logout body = %s", resp.body)
	}
	if env.sessions.count() != 0 {
		t.Errorf("sessions after logout = %d, want 0", env.sessions.count())
	}
	if st := b.status(); st.Authenticated {
		t.Errorf("after logout status = %+v, want unauthenticated", st)
	}
	if me := b.get("/api/admin/me"); me.status != http.StatusUnauthorized {
		t.Errorf("GET /api/admin/me after logout status = %d, want 401", me.status)
	}
}

func TestIntegration_LogoutTwice_SameResponse(t *testing.T) {
	env := newTestEnv(t)
	b := env.newBrowser(t)

	if resp := b.login("admin@gmail.com", "admin123"); resp.status != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", resp.status, resp.body)
	}
	staleSession := b.cookie(middleware.SessionCookieName)
	if staleSession == "" {
		t.Fatal("expected session cookie after login")
	}

	first := b.post("/api/auth/logout", "")
	second := b.post("/api/auth/logout", "")

	// 破棄済みのセッションCookieを付けたままもう一度送る
	token := b.csrfToken()
	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/api/auth/logout", nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: staleSession})
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: token})
	req.Header.Set("X-CSRF-Token", token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("logout with stale cookie failed: %v", err)
	}
	defer resp.Body.Close()
	staleBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}

	if first.status != http.StatusOK {
		t.Fatalf("first logout status = %d, body = %s", first.status, first.body)
	}
	for name, got := range map[string]testResponse{
		"second":       second,
		"stale cookie": {status: resp.StatusCode, body: string(staleBody)},
	} {
		if got.status != first.status || got.body != first.body {
			t.Errorf("%s logout = %d %s, want %d %s", name, got.status, got.body, first.status, first.body)
		}
	}
	if env.sessions.count() != 0 {
		t.Errorf("sessions = %d, want 0", env.sessions.count())
	}
}

func TestIntegration_EmailIsCaseInsensitive(t *testing.T) {
	env := newTestEnv(t)
	b := env.newBrowser(t)

	if resp := b.login("  Admin@Gmail.com ", "admin123"); resp.status != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", resp.status, resp.body)
	}
}

func TestIntegration_SessionRegeneratedOnLogin(t *testing.T) {
	env := newTestEnv(t)
	b := env.newBrowser(t)

	if resp := b.login("admin@gmail.com", "admin123"); resp.status != http.StatusOK {
		t.Fatalf("first login status = %d", resp.status)
	}
	first := b.cookie(middleware.SessionCookieName)

	if resp := b.login("admin@gmail.com", "admin123"); resp.status != http.StatusOK {
		t.Fatalf("second login status = %d", resp.status)
	}
	second := b.cookie(middleware.SessionCookieName)

	if first == second {
		t.Error("session ID should change on login")
	}
	if env.sessions.count() != 1 {
		t.Errorf("sessions = %d, want 1 (old session destroyed)", env.sessions.count())
	}
}

func TestIntegration_FailedLogins_AreIndistinguishable(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name     string
		email    string
		password string
	}{
		{"unknown email", "nobody@gmail.com", "admin123"},
		{"wrong password", "admin@gmail.com", "wrong"},
		{"not an admin", "editor@gmail.com", "editor123"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := env.newBrowser(t)
			resp := b.login(tc.email, tc.password)
			if resp.status != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", resp.status)
			}
			var body middleware.ErrorResponseBody
			if err := json.Unmarshal([]byte(resp.body), &body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body.Code != model.ErrCodeAuthentication || body.Message != model.MsgInvalidCredentials {
				t.Errorf("body = %+v", body)
			}
			if b.cookie(middleware.SessionCookieName) != "" {
				t.Error("no session cookie should be issued")
			}
		})
	}
	if env.sessions.count() != 0 {
		t.Errorf("sessions = %d, want 0", env.sessions.count())
	}
}

func TestIntegration_DeactivatedAccount(t *testing.T) {
	env := newTestEnv(t)
	b := env.newBrowser(t)

	if resp := b.login("admin@gmail.com", "admin123"); resp.status != http.StatusOK {
		t.Fatalf("login status = %d", resp.status)
	}

	// セッション中に無効化されたユーザーは次のリクエストから拒否される
	env.users.setActive("admin@gmail.com", false)

	if me := b.get("/api/admin/me"); me.status != http.StatusUnauthorized {
		t.Errorf("GET /api/admin/me status = %d, want 401", me.status)
	}
	if st := b.status(); st.Authenticated {
		t.Errorf("status = %+v, want unauthenticated", st)
	}

	resp := b.login("admin@gmail.com", "admin123")
	if resp.status != http.StatusUnauthorized {
		t.Fatalf("login status = %d, want 401", resp.status)
	}
	if !strings.Contains(resp.body, model.ErrCodeAccountDisabled) {
		t.Errorf("body = %s, want %s", resp.body, model.ErrCodeAccountDisabled)
	}
}

func TestIntegration_MissingCredentials_Returns400(t *testing.T) {
	env := newTestEnv(t)
	b := env.newBrowser(t)

	resp := b.post("/api/auth/login", `{"email":"admin@gmail.com"}`)
	if resp.status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.status)
	}
	if !strings.Contains(resp.body, model.MsgCredentialsRequired) {
		t.Errorf("body = %s", resp.body)
	}
}

func TestIntegration_LoginOutcomesExportedAsMetrics(t *testing.T) {
	env := newTestEnv(t)
	b := env.newBrowser(t)

	b.login("admin@gmail.com", "wrong")
	b.login("admin@gmail.com", "admin123")

	resp := b.get("/metrics")
	if resp.status != http.StatusOK {
		t.Fatalf("GET /metrics status = %d", resp.status)
	}
	for _, want := range []string{
		`schoolsite_login_total{outcome="success"} 1`,
		`schoolsite_login_total{outcome="authentication_error"} 1`,
	} {
		if !strings.Contains(resp.body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
