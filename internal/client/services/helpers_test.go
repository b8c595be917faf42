package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/tacticallink/internal/client/client"
	"github.com/dmitrijs2005/tacticallink/internal/client/models"
	"github.com/dmitrijs2005/tacticallink/internal/client/repositories/metadata"
)

// ---- helpers ----

func setupStore(t *testing.T) *metadata.CredentialStore {
	t.Helper()
	db, err := client.InitDatabase(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return metadata.NewCredentialStore(db)
}

func persisted(t *testing.T, s *metadata.CredentialStore) (string, bool) {
	t.Helper()
	tok, ok, err := s.Load(context.Background())
	require.NoError(t, err)
	return tok, ok
}

// ---- fake client ----

// fakeClient implements client.Client. Every method delegates to the
// matching func field when set and records the call.
type fakeClient struct {
	mu    sync.Mutex
	calls map[string]int

	LoginFn          func(ctx context.Context, u, p string) (client.AuthResult, error)
	RegisterFn       func(ctx context.Context, u, e, p string) (client.AuthResult, error)
	VerifyFn         func(ctx context.Context) (models.Identity, error)
	UsersFn          func(ctx context.Context) ([]models.User, error)
	PendingFn        func(ctx context.Context) ([]models.Message, error)
	ConversationFn   func(ctx context.Context, peerID string) ([]models.Message, error)
	SendDirectFn     func(ctx context.Context, peerID string, d models.Draft) (models.SendReceipt, error)
	DeleteFn         func(ctx context.Context, id string) error
	RoomsFn          func(ctx context.Context) ([]models.Room, error)
	CreateRoomFn     func(ctx context.Context, req client.CreateRoomRequest) (models.CreatedRoom, error)
	RoomMessagesFn   func(ctx context.Context, roomID string) ([]models.Message, error)
	SendRoomFn       func(ctx context.Context, roomID string, d models.Draft) (models.SendReceipt, error)
	DeleteRoomMsgFn  func(ctx context.Context, roomID, id string) error
	JoinRoomFn       func(ctx context.Context, roomID string) (client.JoinResult, error)
	JoinByKeyFn      func(ctx context.Context, key string) (client.JoinResult, error)
	LeaveRoomFn      func(ctx context.Context, roomID string) error
	StatusFn         func(ctx context.Context) (models.ThreatStatus, error)
	AnalyzeFn        func(ctx context.Context) (models.ThreatStatus, error)
	AdminDashboardFn func(ctx context.Context) (models.AdminDashboard, error)

	LastJoinKey    string
	LastCreateRoom client.CreateRoomRequest
	LastDraft      models.Draft
}

func (f *fakeClient) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
}

func (f *fakeClient) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeClient) Ping(ctx context.Context) error {
	f.record("Ping")
	return nil
}

func (f *fakeClient) Login(ctx context.Context, u, p string) (client.AuthResult, error) {
	f.record("Login")
	if f.LoginFn == nil {
		return client.AuthResult{}, client.ErrUnavailable
	}
	return f.LoginFn(ctx, u, p)
}

func (f *fakeClient) Register(ctx context.Context, u, e, p string) (client.AuthResult, error) {
	f.record("Register")
	if f.RegisterFn == nil {
		return client.AuthResult{}, client.ErrUnavailable
	}
	return f.RegisterFn(ctx, u, e, p)
}

func (f *fakeClient) Verify(ctx context.Context) (models.Identity, error) {
	f.record("Verify")
	if f.VerifyFn == nil {
		return models.Identity{}, client.ErrUnavailable
	}
	return f.VerifyFn(ctx)
}

func (f *fakeClient) Users(ctx context.Context) ([]models.User, error) {
	f.record("Users")
	if f.UsersFn == nil {
		return nil, nil
	}
	return f.UsersFn(ctx)
}

func (f *fakeClient) PendingMessages(ctx context.Context) ([]models.Message, error) {
	f.record("PendingMessages")
	if f.PendingFn == nil {
		return nil, nil
	}
	return f.PendingFn(ctx)
}

func (f *fakeClient) Conversation(ctx context.Context, peerID string) ([]models.Message, error) {
	f.record("Conversation")
	if f.ConversationFn == nil {
		return nil, nil
	}
	return f.ConversationFn(ctx, peerID)
}

func (f *fakeClient) SendDirect(ctx context.Context, peerID string, d models.Draft) (models.SendReceipt, error) {
	f.record("SendDirect")
	f.mu.Lock()
	f.LastDraft = d
	f.mu.Unlock()
	if f.SendDirectFn == nil {
		return models.SendReceipt{MessageID: "m-new"}, nil
	}
	return f.SendDirectFn(ctx, peerID, d)
}

func (f *fakeClient) DeleteMessage(ctx context.Context, id string) error {
	f.record("DeleteMessage")
	if f.DeleteFn == nil {
		return nil
	}
	return f.DeleteFn(ctx, id)
}

func (f *fakeClient) Rooms(ctx context.Context) ([]models.Room, error) {
	f.record("Rooms")
	if f.RoomsFn == nil {
		return nil, nil
	}
	return f.RoomsFn(ctx)
}

func (f *fakeClient) CreateRoom(ctx context.Context, req client.CreateRoomRequest) (models.CreatedRoom, error) {
	f.record("CreateRoom")
	f.mu.Lock()
	f.LastCreateRoom = req
	f.mu.Unlock()
	if f.CreateRoomFn == nil {
		return models.CreatedRoom{ID: "r-new", Name: req.Name, IsPublic: req.IsPublic}, nil
	}
	return f.CreateRoomFn(ctx, req)
}

func (f *fakeClient) RoomMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	f.record("RoomMessages")
	if f.RoomMessagesFn == nil {
		return nil, nil
	}
	return f.RoomMessagesFn(ctx, roomID)
}

func (f *fakeClient) SendRoom(ctx context.Context, roomID string, d models.Draft) (models.SendReceipt, error) {
	f.record("SendRoom")
	if f.SendRoomFn == nil {
		return models.SendReceipt{MessageID: "rm-new"}, nil
	}
	return f.SendRoomFn(ctx, roomID, d)
}

func (f *fakeClient) DeleteRoomMessage(ctx context.Context, roomID, id string) error {
	f.record("DeleteRoomMessage")
	if f.DeleteRoomMsgFn == nil {
		return nil
	}
	return f.DeleteRoomMsgFn(ctx, roomID, id)
}

func (f *fakeClient) JoinRoom(ctx context.Context, roomID string) (client.JoinResult, error) {
	f.record("JoinRoom")
	if f.JoinRoomFn == nil {
		return client.JoinResult{Room: models.JoinedRoom{ID: roomID}}, nil
	}
	return f.JoinRoomFn(ctx, roomID)
}

func (f *fakeClient) JoinByKey(ctx context.Context, key string) (client.JoinResult, error) {
	f.record("JoinByKey")
	f.mu.Lock()
	f.LastJoinKey = key
	f.mu.Unlock()
	if f.JoinByKeyFn == nil {
		return client.JoinResult{}, client.ErrNotFound
	}
	return f.JoinByKeyFn(ctx, key)
}

func (f *fakeClient) LeaveRoom(ctx context.Context, roomID string) error {
	f.record("LeaveRoom")
	if f.LeaveRoomFn == nil {
		return nil
	}
	return f.LeaveRoomFn(ctx, roomID)
}

func (f *fakeClient) Status(ctx context.Context) (models.ThreatStatus, error) {
	f.record("Status")
	if f.StatusFn == nil {
		return models.NewThreatStatus(0), nil
	}
	return f.StatusFn(ctx)
}

func (f *fakeClient) AnalyzeThreat(ctx context.Context) (models.ThreatStatus, error) {
	f.record("AnalyzeThreat")
	if f.AnalyzeFn == nil {
		return models.NewThreatStatus(0), nil
	}
	return f.AnalyzeFn(ctx)
}

func (f *fakeClient) AdminDashboard(ctx context.Context) (models.AdminDashboard, error) {
	f.record("AdminDashboard")
	if f.AdminDashboardFn == nil {
		return models.AdminDashboard{}, nil
	}
	return f.AdminDashboardFn(ctx)
}

var _ client.Client = (*fakeClient)(nil)
