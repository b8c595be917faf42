package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/dmitrijs2005/tacticallink/internal/client/models"
	"github.com/dmitrijs2005/tacticallink/internal/logging"
)

const (
	RequestIDHeader = "X-Request-ID"

	maxResponseBytes = 4 << 20
)

// HTTPClient implements Client over the backend's JSON API.
//
// The bearer token is read from the CredentialSource every time a request
// is built, never cached. Transport failures and 5xx answers feed a
// circuit breaker; while it is open requests fail fast with ErrUnavailable.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     logging.Logger

	mu    sync.RWMutex
	creds CredentialSource
}

type Option func(*httpOptions)

type httpOptions struct {
	httpClient      *http.Client
	timeout         time.Duration
	log             logging.Logger
	breakerFailures uint32
	breakerTimeout  time.Duration
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *httpOptions) { o.httpClient = c }
}

func WithTimeout(d time.Duration) Option {
	return func(o *httpOptions) { o.timeout = d }
}

func WithLogger(l logging.Logger) Option {
	return func(o *httpOptions) { o.log = l }
}

// WithBreaker opens the circuit after failures consecutive network failures
// and keeps it open for timeout.
func WithBreaker(failures uint32, timeout time.Duration) Option {
	return func(o *httpOptions) {
		o.breakerFailures = failures
		o.breakerTimeout = timeout
	}
}

func NewHTTPClient(baseURL string, opts ...Option) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server url %q", baseURL)
	}

	o := httpOptions{
		timeout:         10 * time.Second,
		log:             logging.Discard(),
		breakerFailures: 5,
		breakerTimeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: o.timeout}
	}

	c := &HTTPClient{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    o.httpClient,
		log:     o.log,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "backend",
		Timeout: o.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= o.breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn(context.Background(), "circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return c, nil
}

// UseCredentials attaches the source of bearer tokens. It is separate from
// the constructor because the session manager itself needs a Client.
func (c *HTTPClient) UseCredentials(src CredentialSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = src
}

func (c *HTTPClient) credentials() CredentialSource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds
}

// BreakerState is exposed for the CLI status line.
func (c *HTTPClient) BreakerState() string {
	return c.breaker.State().String()
}

type rawResponse struct {
	status int
	body   []byte
}

// doRequest sends one request and decodes a 2xx body into out (if non-nil).
// Non-2xx answers come back as *APIError.
func (c *HTTPClient) doRequest(ctx context.Context, method, path string, authenticated bool, requestBody, out any) error {
	var token string
	if authenticated {
		src := c.credentials()
		if src == nil {
			return fmt.Errorf("%s %s: no credential source: %w", method, path, ErrUnauthorized)
		}
		t, ok := src.CurrentCredential()
		if !ok {
			return fmt.Errorf("%s %s: no credential: %w", method, path, ErrUnauthorized)
		}
		token = t
	}

	var encoded []byte
	if requestBody != nil {
		b, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		encoded = b
	}

	requestID := uuid.NewString()
	res, err := c.breaker.Execute(func() (any, error) {
		return c.roundTrip(ctx, method, path, token, requestID, encoded)
	})
	if err != nil {
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return fmt.Errorf("%s %s: %v: %w", method, path, err, ErrUnavailable)
		default:
			return err
		}
	}

	resp := res.(*rawResponse)
	if resp.status < 200 || resp.status >= 300 {
		apiErr := classify(resp.status, resp.body)
		if errors.Is(apiErr, ErrUnauthorized) && authenticated {
			c.log.Warn(ctx, "credential rejected", "method", method, "path", path, "status", resp.status, "request_id", requestID)
			if src := c.credentials(); src != nil {
				src.CredentialRejected(token)
			}
		}
		return fmt.Errorf("%s %s: %w", method, path, apiErr)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %v: %w", method, path, err, ErrMalformedResponse)
	}
	return nil
}

// roundTrip performs the HTTP exchange. Only transport failures and 5xx
// answers are errors here, so only they count against the breaker.
func (c *HTTPClient) roundTrip(ctx context.Context, method, path, token, requestID string, body []byte) (*rawResponse, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
			return nil, fmt.Errorf("%s %s: %w", method, path, ctxErr)
		}
		return nil, fmt.Errorf("%s %s: %v: %w", method, path, err, ErrUnavailable)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %v: %w", method, path, err, ErrUnavailable)
	}

	c.log.Debug(ctx, "backend request", "method", method, "path", path, "status", resp.StatusCode,
		"took", time.Since(start), "request_id", requestID)

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%s %s: %w", method, path, classify(resp.StatusCode, data))
	}
	return &rawResponse{status: resp.StatusCode, body: data}, nil
}

// classify maps an error status to one of the error kinds. The JWT layer
// answers malformed tokens with 422 and a {"msg": ...} body; that is a
// credential rejection, not a validation failure.
func classify(status int, body []byte) *APIError {
	var rec errorRecord
	_ = json.Unmarshal(body, &rec)

	e := &APIError{StatusCode: status, Message: rec.reason()}
	switch {
	case status == http.StatusUnauthorized:
		e.Kind = ErrUnauthorized
	case status == http.StatusUnprocessableEntity && rec.Msg != "" && rec.Error == "":
		e.Kind = ErrUnauthorized
	case status == http.StatusForbidden:
		e.Kind = ErrForbidden
	case status == http.StatusNotFound:
		e.Kind = ErrNotFound
	case status >= 500:
		e.Kind = ErrUnavailable
	default:
		e.Kind = ErrValidation
	}
	return e
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/", false, nil, &out); err != nil {
		return err
	}
	if out.Status != "healthy" {
		return fmt.Errorf("health check reported %q: %w", out.Status, ErrUnavailable)
	}
	return nil
}

func (c *HTTPClient) Login(ctx context.Context, username, password string) (AuthResult, error) {
	var rec authRecord
	body := map[string]string{"username": username, "password": password}
	if err := c.doRequest(ctx, http.MethodPost, "/auth/login", false, body, &rec); err != nil {
		return AuthResult{}, err
	}
	return rec.normalize(username)
}

func (c *HTTPClient) Register(ctx context.Context, username, email, password string) (AuthResult, error) {
	var rec authRecord
	body := map[string]string{"username": username, "email": email, "password": password}
	if err := c.doRequest(ctx, http.MethodPost, "/auth/register", false, body, &rec); err != nil {
		return AuthResult{}, err
	}
	return rec.normalize(username)
}

func (c *HTTPClient) Verify(ctx context.Context) (models.Identity, error) {
	var rec verifyRecord
	if err := c.doRequest(ctx, http.MethodGet, "/auth/verify", true, nil, &rec); err != nil {
		return models.Identity{}, err
	}
	return rec.normalize()
}

func (c *HTTPClient) Users(ctx context.Context) ([]models.User, error) {
	var rec usersRecord
	if err := c.doRequest(ctx, http.MethodGet, "/chat/users", true, nil, &rec); err != nil {
		return nil, err
	}
	return rec.normalize()
}

// PendingMessages returns undelivered direct messages. Each message is
// filed under the direct conversation with its sender.
func (c *HTTPClient) PendingMessages(ctx context.Context) ([]models.Message, error) {
	var rec messagesRecord
	if err := c.doRequest(ctx, http.MethodGet, "/chat/receive", true, nil, &rec); err != nil {
		return nil, err
	}
	return rec.normalize(func(m messageRecord) models.ConversationRef {
		return models.Direct(m.SenderID)
	})
}

func (c *HTTPClient) Conversation(ctx context.Context, peerID string) ([]models.Message, error) {
	var rec messagesRecord
	if err := c.doRequest(ctx, http.MethodGet, "/chat/conversation/"+url.PathEscape(peerID), true, nil, &rec); err != nil {
		return nil, err
	}
	ref := models.Direct(peerID)
	return rec.normalize(func(messageRecord) models.ConversationRef { return ref })
}

func (c *HTTPClient) SendDirect(ctx context.Context, peerID string, d models.Draft) (models.SendReceipt, error) {
	body := map[string]any{
		"recipient_id":       peerID,
		"message":            d.Content,
		"self_destruct_time": d.SelfDestructSeconds,
		"read_once":          d.ReadOnce,
	}
	var rec sendRecord
	if err := c.doRequest(ctx, http.MethodPost, "/chat/send", true, body, &rec); err != nil {
		return models.SendReceipt{}, err
	}
	return rec.normalize()
}

func (c *HTTPClient) DeleteMessage(ctx context.Context, messageID string) error {
	return c.doRequest(ctx, http.MethodDelete, "/delete/message/"+url.PathEscape(messageID), true, nil, nil)
}

func (c *HTTPClient) Rooms(ctx context.Context) ([]models.Room, error) {
	var rec roomsRecord
	if err := c.doRequest(ctx, http.MethodGet, "/chat/rooms", true, nil, &rec); err != nil {
		return nil, err
	}
	return rec.normalize()
}

func (c *HTTPClient) CreateRoom(ctx context.Context, req CreateRoomRequest) (models.CreatedRoom, error) {
	body := map[string]any{
		"name":        req.Name,
		"description": req.Description,
		"is_public":   req.IsPublic,
		"max_members": req.MaxMembers,
	}
	var rec createRoomRecord
	if err := c.doRequest(ctx, http.MethodPost, "/chat/rooms", true, body, &rec); err != nil {
		return models.CreatedRoom{}, err
	}
	return rec.normalize(req)
}

func (c *HTTPClient) RoomMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	var rec messagesRecord
	if err := c.doRequest(ctx, http.MethodGet, "/chat/rooms/"+url.PathEscape(roomID)+"/messages", true, nil, &rec); err != nil {
		return nil, err
	}
	ref := models.RoomRef(roomID)
	return rec.normalize(func(messageRecord) models.ConversationRef { return ref })
}

func (c *HTTPClient) SendRoom(ctx context.Context, roomID string, d models.Draft) (models.SendReceipt, error) {
	body := map[string]any{"message": d.Content, "message_type": "text"}
	var rec sendRecord
	if err := c.doRequest(ctx, http.MethodPost, "/chat/rooms/"+url.PathEscape(roomID)+"/messages", true, body, &rec); err != nil {
		return models.SendReceipt{}, err
	}
	return rec.normalize()
}

func (c *HTTPClient) DeleteRoomMessage(ctx context.Context, roomID, messageID string) error {
	path := "/chat/rooms/" + url.PathEscape(roomID) + "/messages/" + url.PathEscape(messageID)
	return c.doRequest(ctx, http.MethodDelete, path, true, nil, nil)
}

func (c *HTTPClient) JoinRoom(ctx context.Context, roomID string) (JoinResult, error) {
	var rec joinRecord
	if err := c.doRequest(ctx, http.MethodPost, "/chat/rooms/"+url.PathEscape(roomID)+"/join", true, nil, &rec); err != nil {
		return JoinResult{}, err
	}
	return rec.normalize(roomID), nil
}

func (c *HTTPClient) JoinByKey(ctx context.Context, key string) (JoinResult, error) {
	var rec joinRecord
	if err := c.doRequest(ctx, http.MethodPost, "/chat/rooms/join-by-key", true, map[string]string{"join_key": key}, &rec); err != nil {
		return JoinResult{}, err
	}
	return rec.normalize(""), nil
}

func (c *HTTPClient) LeaveRoom(ctx context.Context, roomID string) error {
	return c.doRequest(ctx, http.MethodPost, "/chat/rooms/"+url.PathEscape(roomID)+"/leave", true, nil, nil)
}

func (c *HTTPClient) Status(ctx context.Context) (models.ThreatStatus, error) {
	var rec statusRecord
	if err := c.doRequest(ctx, http.MethodGet, "/ws/status", true, nil, &rec); err != nil {
		return models.ThreatStatus{}, err
	}
	return rec.normalize()
}

func (c *HTTPClient) AnalyzeThreat(ctx context.Context) (models.ThreatStatus, error) {
	var rec analyzeRecord
	if err := c.doRequest(ctx, http.MethodPost, "/threat/analyze", true, nil, &rec); err != nil {
		return models.ThreatStatus{}, err
	}
	return rec.normalize()
}

func (c *HTTPClient) AdminDashboard(ctx context.Context) (models.AdminDashboard, error) {
	var rec dashboardRecord
	if err := c.doRequest(ctx, http.MethodGet, "/admin/dashboard", true, nil, &rec); err != nil {
		return models.AdminDashboard{}, err
	}
	return rec.normalize(), nil
}
