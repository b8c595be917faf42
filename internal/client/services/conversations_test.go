package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/tacticallink/internal/client/client"
	"github.com/dmitrijs2005/tacticallink/internal/client/models"
	"github.com/dmitrijs2005/tacticallink/internal/clock"
)

func msg(id, sender string, ts time.Time) models.Message {
	return models.Message{ID: id, SenderID: sender, Content: "content " + id, Timestamp: ts}
}

func ids(msgs []models.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func newStore(fc *fakeClient, clk *clock.FakeClock) *ConversationStore {
	return NewConversationStore(fc,
		WithStoreClock(clk),
		WithSelf(func() (models.Identity, bool) { return models.Identity{ID: "me", Username: "me"}, true }),
	)
}

func TestStore_LoadOrdersByTimestamp(t *testing.T) {
	fc := &fakeClient{
		ConversationFn: func(ctx context.Context, peerID string) ([]models.Message, error) {
			require.Equal(t, "bob", peerID)
			return []models.Message{
				msg("m3", "bob", t0.Add(2*time.Second)),
				msg("m1", "me", t0),
				msg("m2", "bob", t0.Add(time.Second)),
			}, nil
		},
	}
	s := newStore(fc, clock.Fake(t0))

	require.NoError(t, s.LoadDirect(context.Background(), "bob"))
	got := s.Snapshot(models.Direct("bob"))
	require.Equal(t, []string{"m1", "m2", "m3"}, ids(got))
	require.Equal(t, models.Direct("bob"), got[0].Conversation)
}

func TestStore_StaleBatchIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	var call atomic.Int32
	fc := &fakeClient{
		ConversationFn: func(ctx context.Context, peerID string) ([]models.Message, error) {
			if call.Add(1) == 1 {
				<-release
				return []models.Message{msg("old", "bob", t0)}, nil
			}
			return []models.Message{msg("old", "bob", t0), msg("new", "bob", t0.Add(time.Second))}, nil
		},
	}
	s := newStore(fc, clock.Fake(t0))

	firstDone := make(chan error)
	go func() { firstDone <- s.LoadDirect(context.Background(), "bob") }()
	require.Eventually(t, func() bool { return call.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, s.LoadDirect(context.Background(), "bob"))
	close(release)
	require.NoError(t, <-firstDone)

	require.Equal(t, []string{"old", "new"}, ids(s.Snapshot(models.Direct("bob"))))
}

func TestStore_CancelledFetchIsDiscarded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fc := &fakeClient{
		RoomMessagesFn: func(_ context.Context, roomID string) ([]models.Message, error) {
			cancel()
			return []models.Message{msg("r1", "bob", t0)}, nil
		},
	}
	s := newStore(fc, clock.Fake(t0))

	require.NoError(t, s.LoadRoom(ctx, "room-1"))
	require.Empty(t, s.Snapshot(models.RoomRef("room-1")))
}

func TestStore_FetchError(t *testing.T) {
	fc := &fakeClient{
		ConversationFn: func(ctx context.Context, peerID string) ([]models.Message, error) {
			return nil, client.ErrUnavailable
		},
	}
	s := newStore(fc, clock.Fake(t0))
	err := s.LoadDirect(context.Background(), "bob")
	require.ErrorIs(t, err, client.ErrUnavailable)
}

func TestStore_MessagesAbsentFromNewerBatchAreRemoved(t *testing.T) {
	batch := []models.Message{msg("a", "bob", t0), msg("b", "bob", t0)}
	fc := &fakeClient{
		ConversationFn: func(ctx context.Context, peerID string) ([]models.Message, error) {
			return batch, nil
		},
	}
	s := newStore(fc, clock.Fake(t0))
	require.NoError(t, s.LoadDirect(context.Background(), "bob"))

	batch = []models.Message{msg("b", "bob", t0)}
	require.NoError(t, s.LoadDirect(context.Background(), "bob"))
	require.Equal(t, []string{"b"}, ids(s.Snapshot(models.Direct("bob"))))
}

func TestStore_SelfDestruct(t *testing.T) {
	clk := clock.Fake(t0)
	m := msg("sd", "bob", t0)
	m.SelfDestructSeconds = 60
	fc := &fakeClient{
		ConversationFn: func(ctx context.Context, peerID string) ([]models.Message, error) {
			return []models.Message{m}, nil
		},
	}
	s := newStore(fc, clk)
	ref := models.Direct("bob")

	require.NoError(t, s.LoadDirect(context.Background(), "bob"))
	clk.Set(t0.Add(59 * time.Second))
	require.Equal(t, []string{"sd"}, ids(s.Snapshot(ref)))

	clk.Set(t0.Add(61 * time.Second))
	require.Empty(t, s.Snapshot(ref))

	// The server still returning it does not bring it back.
	require.NoError(t, s.LoadDirect(context.Background(), "bob"))
	require.Empty(t, s.Snapshot(ref))
}

func TestStore_SweepRemovesExpired(t *testing.T) {
	clk := clock.Fake(t0)
	m := msg("sd", "bob", t0)
	m.SelfDestructSeconds = 5
	fc := &fakeClient{
		ConversationFn: func(ctx context.Context, peerID string) ([]models.Message, error) {
			return []models.Message{m, msg("keep", "bob", t0)}, nil
		},
	}
	s := newStore(fc, clk)
	require.NoError(t, s.LoadDirect(context.Background(), "bob"))

	require.Zero(t, s.Sweep(context.Background()))
	clk.Advance(5 * time.Second)
	require.Equal(t, 1, s.Sweep(context.Background()))
	require.Equal(t, []string{"keep"}, ids(s.Snapshot(models.Direct("bob"))))
}

func TestStore_ReadOnceGoneAfterView(t *testing.T) {
	once := msg("once", "bob", t0)
	once.ReadOnce = true
	mine := msg("mine", "me", t0.Add(time.Second))
	mine.ReadOnce = true
	fc := &fakeClient{
		ConversationFn: func(ctx context.Context, peerID string) ([]models.Message, error) {
			return []models.Message{once, mine}, nil
		},
	}
	s := newStore(fc, clock.Fake(t0))
	ref := models.Direct("bob")
	require.NoError(t, s.LoadDirect(context.Background(), "bob"))

	first := s.View(ref, "me")
	require.Equal(t, []string{"once", "mine"}, ids(first))

	require.Equal(t, []string{"mine"}, ids(s.Snapshot(ref)), "own messages are not consumed by viewing them")

	require.NoError(t, s.LoadDirect(context.Background(), "bob"))
	require.Equal(t, []string{"mine"}, ids(s.Snapshot(ref)))
}

func TestStore_MergeKeepsLocalReadState(t *testing.T) {
	fc := &fakeClient{
		ConversationFn: func(ctx context.Context, peerID string) ([]models.Message, error) {
			return []models.Message{msg("a", "bob", t0)}, nil
		},
	}
	s := newStore(fc, clock.Fake(t0))
	ref := models.Direct("bob")
	require.NoError(t, s.LoadDirect(context.Background(), "bob"))

	s.MarkRead(ref, "a")
	require.NoError(t, s.LoadDirect(context.Background(), "bob"))
	got := s.Snapshot(ref)
	require.Len(t, got, 1)
	require.True(t, got[0].IsRead)
}

func TestStore_SendWithoutSelection(t *testing.T) {
	fc := &fakeClient{}
	s := newStore(fc, clock.Fake(t0))

	_, err := s.Send(context.Background(), s.Selected(), models.Draft{Content: "hi"})
	require.ErrorIs(t, err, client.ErrValidation)
	require.Zero(t, fc.Calls("SendDirect"))
	require.Zero(t, fc.Calls("SendRoom"))
}

func TestStore_SendValidation(t *testing.T) {
	tests := []struct {
		name  string
		ref   models.ConversationRef
		draft models.Draft
	}{
		{"empty content", models.Direct("bob"), models.Draft{}},
		{"negative timer", models.Direct("bob"), models.Draft{Content: "x", SelfDestructSeconds: -1}},
		{"ephemeral room message", models.RoomRef("r1"), models.Draft{Content: "x", ReadOnce: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeClient{}
			s := newStore(fc, clock.Fake(t0))
			_, err := s.Send(context.Background(), tt.ref, tt.draft)
			require.ErrorIs(t, err, client.ErrValidation)
			require.Zero(t, fc.Calls("SendDirect")+fc.Calls("SendRoom"))
		})
	}
}

func TestStore_SendAddsMessageAndWarnsOnHighThreat(t *testing.T) {
	fc := &fakeClient{
		SendDirectFn: func(ctx context.Context, peerID string, d models.Draft) (models.SendReceipt, error) {
			return models.SendReceipt{MessageID: "m-hot", ThreatScore: 85}, nil
		},
	}
	s := newStore(fc, clock.Fake(t0))
	ref := models.Direct("bob")

	receipt, err := s.Send(context.Background(), ref, models.Draft{Content: "attack at dawn", SelfDestructSeconds: 30})
	require.NoError(t, err)
	require.Equal(t, models.ThreatHigh, receipt.Level())
	require.Equal(t, 30, fc.LastDraft.SelfDestructSeconds)

	got := s.Snapshot(ref)
	require.Len(t, got, 1)
	require.Equal(t, "m-hot", got[0].ID)
	require.Equal(t, "me", got[0].SenderID)
	require.Equal(t, "bob", got[0].RecipientID)
	require.Equal(t, 30, got[0].SelfDestructSeconds)

	select {
	case w := <-s.Warnings():
		require.Equal(t, "m-hot", w.MessageID)
		require.Equal(t, ref, w.Conversation)
		require.InDelta(t, 85, w.Score, 0.001)
	default:
		t.Fatal("expected a threat warning")
	}
}

func TestStore_SendLowThreatDoesNotWarn(t *testing.T) {
	fc := &fakeClient{
		SendRoomFn: func(ctx context.Context, roomID string, d models.Draft) (models.SendReceipt, error) {
			return models.SendReceipt{MessageID: "rm", ThreatScore: 70}, nil
		},
	}
	s := newStore(fc, clock.Fake(t0))
	_, err := s.Send(context.Background(), models.RoomRef("r1"), models.Draft{Content: "hello"})
	require.NoError(t, err)
	require.Len(t, s.Warnings(), 0)
}

func TestStore_WarningsNeverBlockSend(t *testing.T) {
	fc := &fakeClient{
		SendDirectFn: func(ctx context.Context, peerID string, d models.Draft) (models.SendReceipt, error) {
			return models.SendReceipt{MessageID: d.Content, ThreatScore: 99}, nil
		},
	}
	s := newStore(fc, clock.Fake(t0))
	for i := 0; i < warningBuffer+5; i++ {
		_, err := s.Send(context.Background(), models.Direct("bob"), models.Draft{Content: string(rune('a' + i))})
		require.NoError(t, err)
	}
	require.Len(t, s.Warnings(), warningBuffer)
}

func TestStore_SentMessageSurvivesOlderFetch(t *testing.T) {
	release := make(chan struct{})
	var call atomic.Int32
	fc := &fakeClient{
		ConversationFn: func(ctx context.Context, peerID string) ([]models.Message, error) {
			if call.Add(1) == 1 {
				<-release
			}
			return []models.Message{msg("a", "bob", t0)}, nil
		},
	}
	s := newStore(fc, clock.Fake(t0))
	ref := models.Direct("bob")

	done := make(chan error)
	go func() { done <- s.LoadDirect(context.Background(), "bob") }()
	require.Eventually(t, func() bool { return call.Load() == 1 }, time.Second, time.Millisecond)

	_, err := s.Send(context.Background(), ref, models.Draft{Content: "hi"})
	require.NoError(t, err)
	close(release)
	require.NoError(t, <-done)
	require.ElementsMatch(t, []string{"a", "m-new"}, ids(s.Snapshot(ref)))

	// A fetch issued after the send that lacks it means the server dropped it.
	require.NoError(t, s.LoadDirect(context.Background(), "bob"))
	require.Equal(t, []string{"a"}, ids(s.Snapshot(ref)))
}

func TestStore_Delete(t *testing.T) {
	deleteErr := error(&client.APIError{StatusCode: 403, Message: "Cannot delete others' messages", Kind: client.ErrForbidden})
	fc := &fakeClient{
		RoomMessagesFn: func(ctx context.Context, roomID string) ([]models.Message, error) {
			return []models.Message{msg("x", "me", t0), msg("y", "bob", t0)}, nil
		},
		DeleteRoomMsgFn: func(ctx context.Context, roomID, id string) error {
			require.Equal(t, "r1", roomID)
			return deleteErr
		},
	}
	s := newStore(fc, clock.Fake(t0))
	ref := models.RoomRef("r1")
	require.NoError(t, s.LoadRoom(context.Background(), "r1"))

	err := s.Delete(context.Background(), "y")
	require.ErrorIs(t, err, client.ErrForbidden)
	require.Equal(t, []string{"x", "y"}, ids(s.Snapshot(ref)))

	deleteErr = nil
	require.NoError(t, s.Delete(context.Background(), "x"))
	require.Equal(t, []string{"y"}, ids(s.Snapshot(ref)))

	// A lagging server listing does not resurrect it.
	require.NoError(t, s.LoadRoom(context.Background(), "r1"))
	require.Equal(t, []string{"y"}, ids(s.Snapshot(ref)))
	require.Zero(t, fc.Calls("DeleteMessage"))
}

func TestStore_DeleteUnknownUsesDirectEndpoint(t *testing.T) {
	fc := &fakeClient{}
	s := newStore(fc, clock.Fake(t0))
	require.NoError(t, s.Delete(context.Background(), "ghost"))
	require.Equal(t, 1, fc.Calls("DeleteMessage"))

	require.ErrorIs(t, s.Delete(context.Background(), ""), client.ErrValidation)
}

func TestStore_ReceivePending(t *testing.T) {
	pending := []models.Message{msg("p1", "bob", t0), msg("p2", "carol", t0)}
	fc := &fakeClient{
		PendingFn: func(ctx context.Context) ([]models.Message, error) {
			return pending, nil
		},
		ConversationFn: func(ctx context.Context, peerID string) ([]models.Message, error) {
			return nil, nil
		},
	}
	s := newStore(fc, clock.Fake(t0))

	fresh, err := s.ReceivePending(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"p1", "p2"}, ids(fresh))
	require.ElementsMatch(t, []models.ConversationRef{models.Direct("bob"), models.Direct("carol")}, s.Conversations())

	fresh, err = s.ReceivePending(context.Background())
	require.NoError(t, err)
	require.Empty(t, fresh)

	// Unread inbox messages survive a conversation fetch that omits them.
	require.NoError(t, s.LoadDirect(context.Background(), "bob"))
	require.Equal(t, []string{"p1"}, ids(s.Snapshot(models.Direct("bob"))))

	s.MarkRead(models.Direct("bob"), "p1")
	require.NoError(t, s.LoadDirect(context.Background(), "bob"))
	require.Empty(t, s.Snapshot(models.Direct("bob")))
}

func TestStore_ReceivePendingError(t *testing.T) {
	boom := errors.New("boom")
	fc := &fakeClient{
		PendingFn: func(ctx context.Context) ([]models.Message, error) { return nil, boom },
	}
	s := newStore(fc, clock.Fake(t0))
	_, err := s.ReceivePending(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestStore_Reset(t *testing.T) {
	fc := &fakeClient{
		ConversationFn: func(ctx context.Context, peerID string) ([]models.Message, error) {
			return []models.Message{msg("a", "bob", t0)}, nil
		},
		SendDirectFn: func(ctx context.Context, peerID string, d models.Draft) (models.SendReceipt, error) {
			return models.SendReceipt{MessageID: "hot", ThreatScore: 90}, nil
		},
	}
	s := newStore(fc, clock.Fake(t0))
	s.Select(models.Direct("bob"))
	require.NoError(t, s.LoadDirect(context.Background(), "bob"))
	_, err := s.Send(context.Background(), s.Selected(), models.Draft{Content: "x"})
	require.NoError(t, err)

	s.Reset()
	require.True(t, s.Selected().IsZero())
	require.Empty(t, s.Conversations())
	require.Empty(t, s.Snapshot(models.Direct("bob")))
	require.Len(t, s.Warnings(), 0)
}

func TestStore_ResetDropsInFlightBatch(t *testing.T) {
	release := make(chan struct{})
	var call atomic.Int32
	fc := &fakeClient{
		ConversationFn: func(ctx context.Context, peerID string) ([]models.Message, error) {
			call.Add(1)
			<-release
			return []models.Message{msg("a", "bob", t0)}, nil
		},
	}
	s := newStore(fc, clock.Fake(t0))

	done := make(chan error)
	go func() { done <- s.LoadDirect(context.Background(), "bob") }()
	require.Eventually(t, func() bool { return call.Load() == 1 }, time.Second, time.Millisecond)

	s.Reset()
	close(release)
	require.NoError(t, <-done)
	require.Empty(t, s.Snapshot(models.Direct("bob")))
}
