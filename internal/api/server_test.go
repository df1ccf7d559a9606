//nolint:errcheck,gosec,noctx // Test file - unchecked closes, test TLS settings and bare requests are acceptable
package api_test

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fzdarsky/quietplanet/internal/api"
	"github.com/fzdarsky/quietplanet/internal/api/handlers"
	"github.com/fzdarsky/quietplanet/internal/api/middleware"
	"github.com/fzdarsky/quietplanet/internal/auth"
	"github.com/fzdarsky/quietplanet/internal/config"
	"github.com/fzdarsky/quietplanet/internal/credstore"
	"github.com/fzdarsky/quietplanet/internal/logging"
	tlspkg "github.com/fzdarsky/quietplanet/internal/tls"
	"github.com/fzdarsky/quietplanet/pkg/protocol"
	"github.com/fzdarsky/quietplanet/pkg/srp"
	"github.com/fzdarsky/quietplanet/pkg/tokenseal"
)

type testStack struct {
	server *httptest.Server
	client *http.Client
	creds  *credstore.MemoryStore
}

func discardLogger() *logging.Logger {
	logger := logging.New(logging.LevelDebug, logging.FormatJSON)
	logger.SetOutput(io.Discard, io.Discard)
	return logger
}

func newTestStack(t *testing.T, limiter *auth.RateLimiter, opts ...api.RouterOption) *testStack {
	t.Helper()
	logger := discardLogger()

	creds := credstore.NewMemoryStore()
	handshakes := auth.NewMemoryHandshakeStore(time.Minute)
	t.Cleanup(handshakes.Stop)

	tokens := newTestTokens(t)
	authn, err := auth.NewAuthenticator(srp.NewServer(srp.DefaultGroup), creds, handshakes, tokens, logger)
	require.NoError(t, err)

	h := handlers.NewAuthHandler(authn, logger, handlers.AuthHandlerConfig{RateLimiter: limiter})
	srv := httptest.NewServer(api.NewRouter(h, middleware.NewAuthMiddleware(tokens), logger, opts...))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &testStack{server: srv, client: &http.Client{Jar: jar}, creds: creds}
}

func (s *testStack) do(t *testing.T, method, path, token string, body, out any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (s *testStack) register(t *testing.T, username, password string) {
	t.Helper()
	reg, err := srp.NewRegistration(srp.DefaultGroup, password)
	require.NoError(t, err)

	resp := s.do(t, http.MethodPost, "/api/register", "", protocol.RegisterRequest{
		Username: username,
		Salt:     reg.Salt,
		Verifier: reg.Verifier,
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

// start runs login/start and returns the client primed with the challenge.
func (s *testStack) start(t *testing.T, username, password string) (*srp.Client, protocol.LoginStartResponse) {
	t.Helper()
	client, err := srp.NewClient(srp.DefaultGroup, password)
	require.NoError(t, err)

	var challenge protocol.LoginStartResponse
	resp := s.do(t, http.MethodPost, "/api/login/start", "", protocol.LoginStartRequest{
		Username: username,
		A:        client.PublicKey(),
	}, &challenge)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, client.ProcessChallenge(challenge.Salt, challenge.B))
	return client, challenge
}

// login performs the full handshake and returns the opened bearer token.
func (s *testStack) login(t *testing.T, username, password string) string {
	t.Helper()
	client, _ := s.start(t, username, password)
	proof, err := client.WireProof()
	require.NoError(t, err)

	// The attempt id travels in the cookie.
	var verified protocol.LoginVerifyResponse
	resp := s.do(t, http.MethodPost, "/api/login/verify", "", protocol.LoginVerifyRequest{M1: proof}, &verified)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, client.VerifyServerProof(verified.M2))

	token, err := tokenseal.Open(client.SessionKey(), &tokenseal.Sealed{Ciphertext: verified.Token, IV: verified.IV})
	require.NoError(t, err)
	return string(token)
}

func TestAPI_LoginFlow(t *testing.T) {
	stack := newTestStack(t, nil)
	stack.register(t, "alice", "correct horse")

	token := stack.login(t, "alice", "correct horse")

	var me protocol.WhoAmIResponse
	resp := stack.do(t, http.MethodGet, "/api/me", token, nil, &me)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice", me.Username)
	assert.Equal(t, string(credstore.RoleUser), me.Role)
	assert.WithinDuration(t, time.Now().Add(auth.DefaultTokenTTL), me.ExpiresAt, time.Minute)

	resp = stack.do(t, http.MethodPost, "/api/login/logout", token, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	events := stack.creds.Events()
	require.Len(t, events, 2)
	assert.Equal(t, credstore.EventLogin, events[0].Event)
	assert.Equal(t, credstore.EventLogout, events[1].Event)
}

func TestAPI_StartSetsAttemptCookie(t *testing.T) {
	stack := newTestStack(t, nil)
	stack.register(t, "alice", "pw")

	client, err := srp.NewClient(srp.DefaultGroup, "pw")
	require.NoError(t, err)

	var challenge protocol.LoginStartResponse
	resp := stack.do(t, http.MethodPost, "/api/login/start", "", protocol.LoginStartRequest{
		Username: "alice",
		A:        client.PublicKey(),
	}, &challenge)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == handlers.AttemptCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, challenge.AttemptID, cookie.Value)
	assert.Equal(t, "/api/login", cookie.Path)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, int(auth.DefaultHandshakeTTL/time.Second), cookie.MaxAge)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
}

func TestAPI_WrongPasswordThenSessionExpired(t *testing.T) {
	stack := newTestStack(t, nil)
	stack.register(t, "alice", "right")

	client, challenge := stack.start(t, "alice", "wrong")
	proof, err := client.WireProof()
	require.NoError(t, err)

	req := protocol.LoginVerifyRequest{AttemptID: challenge.AttemptID, M1: proof}

	var failed protocol.ErrorResponse
	resp := stack.do(t, http.MethodPost, "/api/login/verify", "", req, &failed)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, protocol.ErrCodeAuthenticationFailed, failed.Code)

	var expired protocol.ErrorResponse
	resp = stack.do(t, http.MethodPost, "/api/login/verify", "", req, &expired)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, protocol.ErrCodeSessionExpired, expired.Code)
}

func TestAPI_UnknownUserChallenge(t *testing.T) {
	stack := newTestStack(t, nil)
	stack.register(t, "alice", "pw")

	decode := func(username string) map[string]any {
		client, err := srp.NewClient(srp.DefaultGroup, "pw")
		require.NoError(t, err)
		var out map[string]any
		resp := stack.do(t, http.MethodPost, "/api/login/start", "", protocol.LoginStartRequest{
			Username: username,
			A:        client.PublicKey(),
		}, &out)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		return out
	}

	known := decode("alice")
	unknown := decode("mallory")

	require.Len(t, unknown, len(known))
	for key := range known {
		assert.Contains(t, unknown, key)
		assert.IsType(t, known[key], unknown[key])
	}
}

func TestAPI_RateLimitAfterFailure(t *testing.T) {
	limiter := auth.NewRateLimiter(auth.RateLimitConfig{Delays: []time.Duration{time.Minute}})
	t.Cleanup(limiter.Stop)

	stack := newTestStack(t, limiter)
	stack.register(t, "alice", "right")

	client, _ := stack.start(t, "alice", "wrong")
	proof, err := client.WireProof()
	require.NoError(t, err)

	resp := stack.do(t, http.MethodPost, "/api/login/verify", "", protocol.LoginVerifyRequest{M1: proof}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))

	var limited protocol.ErrorResponse
	resp = stack.do(t, http.MethodPost, "/api/login/start", "", protocol.LoginStartRequest{Username: "alice"}, &limited)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, protocol.ErrCodeRateLimitExceeded, limited.Code)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestAPI_ParallelWrongProofsCountOnce(t *testing.T) {
	limiter := auth.NewRateLimiter(auth.RateLimitConfig{Delays: []time.Duration{time.Minute}})
	t.Cleanup(limiter.Stop)

	stack := newTestStack(t, limiter)
	stack.register(t, "alice", "right")

	const guesses = 8
	requests := make([]protocol.LoginVerifyRequest, guesses)
	for i := range requests {
		client, challenge := stack.start(t, "alice", fmt.Sprintf("guess-%d", i))
		proof, err := client.WireProof()
		require.NoError(t, err)
		requests[i] = protocol.LoginVerifyRequest{AttemptID: challenge.AttemptID, M1: proof}
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = map[int]int{}
	)
	for _, req := range requests {
		body, err := json.Marshal(req)
		require.NoError(t, err)

		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Post(stack.server.URL+"/api/login/verify", "application/json", bytes.NewReader(body))
			if err != nil {
				t.Errorf("verify request failed: %v", err)
				return
			}
			resp.Body.Close()

			mu.Lock()
			results[resp.StatusCode]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	// One guess is evaluated; the rest are turned away before their proof is checked.
	assert.Equal(t, 1, results[http.StatusBadRequest], "results: %v", results)
	assert.Equal(t, guesses-1, results[http.StatusTooManyRequests], "results: %v", results)
}

func TestAPI_DonatorEndpoint(t *testing.T) {
	stack := newTestStack(t, nil)
	ctx := context.Background()

	for _, name := range []string{"user", "donator", "admin"} {
		stack.register(t, name, "pw-"+name)
	}
	require.NoError(t, stack.creds.UpdateRole(ctx, "donator", credstore.RoleDonator))
	require.NoError(t, stack.creds.UpdateRole(ctx, "admin", credstore.RoleAdmin))

	tests := []struct {
		username string
		want     int
	}{
		{"user", http.StatusForbidden},
		{"donator", http.StatusOK},
		{"admin", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			token := stack.login(t, tt.username, "pw-"+tt.username)

			var body protocol.DonatorResponse
			resp := stack.do(t, http.MethodGet, "/api/donator", token, nil, &body)
			assert.Equal(t, tt.want, resp.StatusCode)
			if tt.want == http.StatusOK {
				assert.Equal(t, tt.username, body.Username)
			}
		})
	}

	resp := stack.do(t, http.MethodGet, "/api/donator", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_RejectsRequestsDuringShutdown(t *testing.T) {
	var shuttingDown atomic.Bool
	stack := newTestStack(t, nil, api.WithShutdownCheck(shuttingDown.Load))
	stack.register(t, "alice", "pw")

	shuttingDown.Store(true)

	var resp protocol.ErrorResponse
	httpResp := stack.do(t, http.MethodPost, "/api/login/start", "", protocol.LoginStartRequest{Username: "alice"}, &resp)
	assert.Equal(t, http.StatusServiceUnavailable, httpResp.StatusCode)
	assert.Equal(t, protocol.ErrCodeShuttingDown, resp.Code)
}

func TestAPI_AssignRole(t *testing.T) {
	stack := newTestStack(t, nil)
	stack.register(t, "root", "admin-pw")
	stack.register(t, "alice", "pw")
	require.NoError(t, stack.creds.UpdateRole(context.Background(), "root", credstore.RoleAdmin))

	userToken := stack.login(t, "alice", "pw")
	adminToken := stack.login(t, "root", "admin-pw")

	update := protocol.RoleUpdateRequest{Username: "alice", Role: string(credstore.RoleDonator)}

	var forbidden protocol.ErrorResponse
	resp := stack.do(t, http.MethodPut, "/api/admin/role", userToken, update, &forbidden)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, protocol.ErrCodeForbidden, forbidden.Code)

	resp = stack.do(t, http.MethodPut, "/api/admin/role", adminToken, update, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	rec, err := stack.creds.Lookup(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, credstore.RoleDonator, rec.Role)

	var notFound protocol.ErrorResponse
	resp = stack.do(t, http.MethodPut, "/api/admin/role", adminToken,
		protocol.RoleUpdateRequest{Username: "nobody", Role: string(credstore.RoleUser)}, &notFound)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, protocol.ErrCodeNotFound, notFound.Code)
}

func TestAPI_RequestErrors(t *testing.T) {
	stack := newTestStack(t, nil)
	stack.register(t, "alice", "pw")

	tests := []struct {
		name     string
		method   string
		path     string
		body     any
		wantCode int
	}{
		{"duplicate register", http.MethodPost, "/api/register", protocol.RegisterRequest{
			Username: "alice", Salt: "1", Verifier: "2",
		}, http.StatusBadRequest},
		{"bad verifier", http.MethodPost, "/api/register", protocol.RegisterRequest{
			Username: "bob", Salt: "1", Verifier: "-2",
		}, http.StatusBadRequest},
		{"bad client key", http.MethodPost, "/api/login/start", protocol.LoginStartRequest{
			Username: "alice", A: "0",
		}, http.StatusBadRequest},
		{"unknown attempt", http.MethodPost, "/api/login/verify", protocol.LoginVerifyRequest{
			AttemptID: "nope", M1: "1|2",
		}, http.StatusBadRequest},
		{"me without token", http.MethodGet, "/api/me", nil, http.StatusUnauthorized},
		{"wrong method", http.MethodGet, "/api/register", nil, http.StatusMethodNotAllowed},
		{"unknown path", http.MethodGet, "/api/nothing", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := stack.do(t, tt.method, tt.path, "", tt.body, nil)
			assert.Equal(t, tt.wantCode, resp.StatusCode)
		})
	}

	t.Run("malformed json", func(t *testing.T) {
		resp, err := stack.client.Post(stack.server.URL+"/api/register", "application/json", bytes.NewBufferString("{"))
		require.NoError(t, err)
		defer resp.Body.Close()

		var errResp protocol.ErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, protocol.ErrCodeInvalidRequest, errResp.Code)
	})
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerSettings{Address: "127.0.0.1", Port: 8443, ShutdownTimeout: "2s"},
	}
}

func serveInBackground(t *testing.T, srv *api.Server) (addr string, stop func() error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	return ln.Addr().String(), func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("server did not stop")
			return nil
		}
	}
}

func TestServer_ServeAndShutdown(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})

	srv, err := api.New(testConfig(t), discardLogger(), handler)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8443", srv.Addr())

	addr, stop := serveInBackground(t, srv)

	resp, err := http.Get("http://" + addr + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "pong", string(body))

	require.NoError(t, stop())
}

func TestServer_GeneratedCertificate(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t)
	cfg.Server.TLSCert = filepath.Join(dir, "tls", "server.crt")
	cfg.Server.TLSKey = filepath.Join(dir, "tls", "server.key")
	cfg.Server.GenerateCert = true

	srv, err := api.New(cfg, discardLogger(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	require.NoError(t, err)
	assert.FileExists(t, cfg.Server.TLSCert)

	addr, stop := serveInBackground(t, srv)

	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}}
	resp, err := client.Get("https://" + addr + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.NotNil(t, resp.TLS)
	assert.Equal(t, uint16(tls.VersionTLS13), resp.TLS.Version)

	require.NoError(t, stop())
}

func TestServer_TLSFiles(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "server.crt")
	keyPath := filepath.Join(dir, "server.key")
	_, err := tlspkg.EnsureDevCertificate(certPath, keyPath)
	require.NoError(t, err)

	garbage := filepath.Join(dir, "garbage.crt")
	require.NoError(t, os.WriteFile(garbage, []byte("not a certificate"), 0o600))

	tests := []struct {
		name    string
		cert    string
		key     string
		wantErr string
	}{
		{"valid certificate", certPath, keyPath, ""},
		{"missing certificate", filepath.Join(dir, "missing.crt"), keyPath, "invalid TLS certificate"},
		{"malformed certificate", garbage, keyPath, "invalid TLS certificate"},
		{"missing key", certPath, filepath.Join(dir, "missing.key"), "failed to create TLS config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Server.TLSCert = tt.cert
			cfg.Server.TLSKey = tt.key

			_, err := api.New(cfg, discardLogger(), http.NotFoundHandler())
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
