package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/tacticallink/internal/clock"
	"github.com/dmitrijs2005/tacticallink/internal/logging"
	"github.com/dmitrijs2005/tacticallink/internal/server/auth"
	"github.com/dmitrijs2005/tacticallink/internal/server/store"
)

const testSecret = "test-secret"

var t0 = time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)

type harness struct {
	t      *testing.T
	clk    *clock.FakeClock
	store  *store.Store
	router http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := clock.Fake(t0)
	st := store.New(store.WithClock(clk))
	srv := NewServer(":0", st, logging.Discard(), testSecret, time.Hour,
		WithClock(clk),
		WithAdmins(func(u string) bool { return u == "admin" }),
		WithRegistry(prometheus.NewRegistry()),
	)
	return &harness{t: t, clk: clk, store: st, router: srv.Router()}
}

func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	h.router.ServeHTTP(resp, req)
	return resp
}

func decode(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out), resp.Body.String())
	return out
}

type account struct {
	ID    string
	Token string
}

func (h *harness) register(name string) account {
	h.t.Helper()
	resp := h.do(http.MethodPost, "/auth/register", "", map[string]string{
		"username": name, "email": name + "@example.com", "password": "password123",
	})
	require.Equal(h.t, http.StatusCreated, resp.Code, resp.Body.String())
	body := decode(h.t, resp)
	return account{ID: body["user_id"].(string), Token: body["access_token"].(string)}
}

func TestHealth(t *testing.T) {
	h := newHarness(t)

	resp := h.do(http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	body := decode(t, resp)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, ServiceName, body["service"])
	assert.Equal(t, "2026-04-02T12:00:00.000000", body["timestamp"])
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	resp := httptest.NewRecorder()
	h.router.ServeHTTP(resp, req)

	assert.Equal(t, "req-42", resp.Header().Get("X-Request-Id"))
}

func TestRegister(t *testing.T) {
	h := newHarness(t)

	resp := h.do(http.MethodPost, "/auth/register", "", map[string]string{"username": "alice"})
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "Missing required fields", decode(t, resp)["error"])

	a := h.register("alice")
	assert.NotEmpty(t, a.Token)

	resp = h.do(http.MethodPost, "/auth/register", "", map[string]string{
		"username": "alice", "email": "x@example.com", "password": "password123",
	})
	require.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "Username already exists", decode(t, resp)["error"])

	u, err := h.store.UserByID(a.ID)
	require.NoError(t, err)
	assert.False(t, u.IsAdmin)
	assert.NotEmpty(t, u.PublicKey)
}

func TestLogin(t *testing.T) {
	h := newHarness(t)
	a := h.register("alice")

	resp := h.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "alice"})
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "Missing credentials", decode(t, resp)["error"])

	resp = h.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "nope-nope"})
	require.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "Invalid credentials", decode(t, resp)["error"])

	resp = h.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "ghost", "password": "password123"})
	require.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = h.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "password123"})
	require.Equal(t, http.StatusOK, resp.Code)
	body := decode(t, resp)
	assert.Equal(t, a.ID, body["user_id"])
	assert.Equal(t, "alice", body["username"])
	assert.NotEmpty(t, body["access_token"])
	assert.Equal(t, []string{a.ID}, h.store.ActiveUsers())
}

func TestRequireToken(t *testing.T) {
	h := newHarness(t)
	a := h.register("alice")

	resp := h.do(http.MethodGet, "/auth/verify", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "Missing Authorization Header", decode(t, resp)["msg"])

	resp = h.do(http.MethodGet, "/auth/verify", "garbage", nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Contains(t, decode(t, resp), "msg")

	h.clk.Advance(2 * time.Hour)
	resp = h.do(http.MethodGet, "/auth/verify", a.Token, nil)
	require.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "Token has expired", decode(t, resp)["msg"])
}

func TestVerify(t *testing.T) {
	h := newHarness(t)
	a := h.register("admin")

	resp := h.do(http.MethodGet, "/auth/verify", a.Token, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	body := decode(t, resp)
	assert.Equal(t, a.ID, body["user_id"])
	assert.Equal(t, "admin", body["username"])
	assert.Equal(t, true, body["is_admin"])

	orphan, err := auth.GenerateToken("no-such-user", []byte(testSecret), t0, time.Hour)
	require.NoError(t, err)
	resp = h.do(http.MethodGet, "/auth/verify", orphan, nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "User not found", decode(t, resp)["error"])
}

func TestChatUsers_ExcludesCaller(t *testing.T) {
	h := newHarness(t)
	a := h.register("alice")
	h.register("bob")

	resp := h.do(http.MethodGet, "/chat/users", a.Token, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	body := decode(t, resp)
	users := body["users"].([]any)
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].(map[string]any)["username"])
	assert.NotEmpty(t, users[0].(map[string]any)["_id"])
}

func TestSendReceiveConversation(t *testing.T) {
	h := newHarness(t)
	a := h.register("alice")
	b := h.register("bob")

	resp := h.do(http.MethodPost, "/chat/send", a.Token, map[string]any{"recipient_id": b.ID})
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = h.do(http.MethodPost, "/chat/send", a.Token, map[string]any{"recipient_id": "ghost", "message": "hi"})
	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "Recipient not found", decode(t, resp)["error"])

	resp = h.do(http.MethodPost, "/chat/send", a.Token, map[string]any{
		"recipient_id": b.ID, "message": "meet at the bridge", "read_once": true,
	})
	require.Equal(t, http.StatusCreated, resp.Code)
	sent := decode(t, resp)
	assert.NotEmpty(t, sent["message_id"])
	assert.Contains(t, sent, "threat_score")

	resp = h.do(http.MethodPost, "/chat/send", a.Token, map[string]any{
		"recipient_id": b.ID, "message": "bring the maps", "self_destruct_time": 30,
	})
	require.Equal(t, http.StatusCreated, resp.Code)

	resp = h.do(http.MethodGet, "/chat/receive", b.Token, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	body := decode(t, resp)
	assert.EqualValues(t, 2, body["count"])
	msgs := body["messages"].([]any)
	first := msgs[0].(map[string]any)
	assert.Equal(t, sent["message_id"], first["id"])
	assert.Equal(t, "meet at the bridge", first["content"])
	assert.Equal(t, true, first["read_once"])
	assert.NotContains(t, first, "is_read")
	assert.EqualValues(t, 30, msgs[1].(map[string]any)["self_destruct_time"])

	resp = h.do(http.MethodGet, "/chat/receive", b.Token, nil)
	assert.EqualValues(t, 0, decode(t, resp)["count"])

	resp = h.do(http.MethodGet, "/chat/conversation/"+a.ID, b.Token, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	conv := decode(t, resp)["messages"].([]any)
	require.Len(t, conv, 1, "read-once message was consumed")
	assert.Equal(t, true, conv[0].(map[string]any)["is_read"])

	h.clk.Advance(30 * time.Second)
	resp = h.do(http.MethodGet, "/chat/conversation/"+b.ID, a.Token, nil)
	assert.EqualValues(t, 0, decode(t, resp)["count"], "self-destructed")
}

func TestDeleteMessage(t *testing.T) {
	h := newHarness(t)
	a := h.register("alice")
	b := h.register("bob")
	c := h.register("carol")

	resp := h.do(http.MethodPost, "/chat/send", a.Token, map[string]any{"recipient_id": b.ID, "message": "delete me later"})
	require.Equal(t, http.StatusCreated, resp.Code)
	id := decode(t, resp)["message_id"].(string)

	resp = h.do(http.MethodDelete, "/delete/message/"+id, c.Token, nil)
	require.Equal(t, http.StatusForbidden, resp.Code)

	resp = h.do(http.MethodDelete, "/delete/message/"+id, a.Token, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = h.do(http.MethodDelete, "/delete/message/"+id, a.Token, nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodGet, "/", "", nil)

	resp := h.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `tacticallink_server_requests_total{method="GET",route="/",status="200"} 1`)
}

func TestServe_StopsOnCancel(t *testing.T) {
	st := store.New()
	srv := NewServer("127.0.0.1:0", st, logging.Discard(), testSecret, time.Hour)

	listen, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, listen) }()

	url := "http://" + listen.Addr().String() + "/"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer  abc ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", strings.NewReader(""))
		req.Header.Set("Authorization", tt.header)
		got, ok := bearerToken(req)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.want, got, tt.header)
	}
}
