package client

import (
	"context"

	"github.com/dmitrijs2005/tacticallink/internal/client/models"
)

// Client is the request/response contract of the tacticallink backend.
// Every method except Ping, Login and Register carries the current session
// credential.
type Client interface {
	Ping(ctx context.Context) error

	Login(ctx context.Context, username, password string) (AuthResult, error)
	Register(ctx context.Context, username, email, password string) (AuthResult, error)
	Verify(ctx context.Context) (models.Identity, error)

	Users(ctx context.Context) ([]models.User, error)
	PendingMessages(ctx context.Context) ([]models.Message, error)
	Conversation(ctx context.Context, peerID string) ([]models.Message, error)
	SendDirect(ctx context.Context, peerID string, d models.Draft) (models.SendReceipt, error)
	DeleteMessage(ctx context.Context, messageID string) error

	Rooms(ctx context.Context) ([]models.Room, error)
	CreateRoom(ctx context.Context, req CreateRoomRequest) (models.CreatedRoom, error)
	RoomMessages(ctx context.Context, roomID string) ([]models.Message, error)
	SendRoom(ctx context.Context, roomID string, d models.Draft) (models.SendReceipt, error)
	DeleteRoomMessage(ctx context.Context, roomID, messageID string) error
	JoinRoom(ctx context.Context, roomID string) (JoinResult, error)
	JoinByKey(ctx context.Context, key string) (JoinResult, error)
	LeaveRoom(ctx context.Context, roomID string) error

	Status(ctx context.Context) (models.ThreatStatus, error)
	AnalyzeThreat(ctx context.Context) (models.ThreatStatus, error)
	AdminDashboard(ctx context.Context) (models.AdminDashboard, error)
}

// CredentialSource supplies the bearer token at request-construction time
// and is told when the server rejects the token it supplied.
type CredentialSource interface {
	CurrentCredential() (string, bool)
	CredentialRejected(token string)
}

// AuthResult is the outcome of login or register.
type AuthResult struct {
	Token     string
	Identity  models.Identity
	PublicKey string
}

type CreateRoomRequest struct {
	Name        string
	Description string
	IsPublic    bool
	MaxMembers  int
}

// JoinResult identifies the joined room. The server omits the room for
// callers that already were members, in which case Room.ID may be empty.
type JoinResult struct {
	Room          models.JoinedRoom
	AlreadyMember bool
}
