package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dmitrijs2005/tacticallink/internal/client/client"
	"github.com/dmitrijs2005/tacticallink/internal/client/models"
	"github.com/dmitrijs2005/tacticallink/internal/clock"
	"github.com/dmitrijs2005/tacticallink/internal/logging"
)

const warningBuffer = 16

// ThreatWarning is raised when the backend scores an outgoing message HIGH.
type ThreatWarning struct {
	Conversation models.ConversationRef
	MessageID    string
	Score        float64
	Level        models.ThreatLevel
}

// ConversationStore is the local read model of direct and room
// conversations. Fetch results are applied in issue order per conversation;
// a batch that completes after a newer one, or after its channel was
// cancelled, is discarded.
type ConversationStore struct {
	client client.Client
	clock  clock.Clock
	log    logging.Logger
	self   func() (models.Identity, bool)

	warnings chan ThreatWarning

	mu       sync.Mutex
	convs    map[models.ConversationRef]*conversation
	selected models.ConversationRef
}

type conversation struct {
	entries map[string]*entry
	// hidden holds ids that were deleted, expired or consumed locally and
	// must never be shown again, whatever a later fetch returns.
	hidden  map[string]struct{}
	issued  uint64
	applied uint64
}

type entry struct {
	msg models.Message
	// seen is the highest fetch sequence at which the message was known to
	// exist on the server.
	seen uint64
	// sticky entries came from the inbox and survive fetches that do not
	// mention them until they are read.
	sticky bool
}

func newConversation() *conversation {
	return &conversation{
		entries: make(map[string]*entry),
		hidden:  make(map[string]struct{}),
	}
}

type StoreOption func(*ConversationStore)

func WithStoreClock(c clock.Clock) StoreOption {
	return func(s *ConversationStore) { s.clock = c }
}

func WithStoreLogger(l logging.Logger) StoreOption {
	return func(s *ConversationStore) { s.log = l }
}

// WithSelf supplies the identity used as sender of locally sent messages.
func WithSelf(fn func() (models.Identity, bool)) StoreOption {
	return func(s *ConversationStore) { s.self = fn }
}

func NewConversationStore(c client.Client, opts ...StoreOption) *ConversationStore {
	s := &ConversationStore{
		client:   c,
		clock:    clock.Real(),
		log:      logging.Discard(),
		self:     func() (models.Identity, bool) { return models.Identity{}, false },
		warnings: make(chan ThreatWarning, warningBuffer),
		convs:    make(map[models.ConversationRef]*conversation),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Warnings delivers high-threat notifications for sent messages.
func (s *ConversationStore) Warnings() <-chan ThreatWarning {
	return s.warnings
}

func (s *ConversationStore) Select(ref models.ConversationRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = ref
}

func (s *ConversationStore) Selected() models.ConversationRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// LoadDirect fetches the conversation with peerID and merges it.
func (s *ConversationStore) LoadDirect(ctx context.Context, peerID string) error {
	ref := models.Direct(peerID)
	return s.load(ctx, ref, func(ctx context.Context) ([]models.Message, error) {
		return s.client.Conversation(ctx, peerID)
	})
}

// LoadRoom fetches the messages of roomID and merges them.
func (s *ConversationStore) LoadRoom(ctx context.Context, roomID string) error {
	ref := models.RoomRef(roomID)
	return s.load(ctx, ref, func(ctx context.Context) ([]models.Message, error) {
		return s.client.RoomMessages(ctx, roomID)
	})
}

func (s *ConversationStore) load(ctx context.Context, ref models.ConversationRef, fetch func(context.Context) ([]models.Message, error)) error {
	conv, seq := s.issue(ref)

	msgs, err := fetch(ctx)
	if err != nil {
		return fmt.Errorf("load %s: %w", ref, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ctx.Err() != nil || s.convs[ref] != conv {
		s.log.Debug(ctx, "discarding batch of cancelled fetch", "conversation", ref.String())
		return nil
	}
	if seq <= conv.applied {
		s.log.Debug(ctx, "discarding stale batch", "conversation", ref.String(), "seq", seq, "applied", conv.applied)
		return nil
	}
	conv.applied = seq

	inBatch := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		m.Conversation = ref
		inBatch[m.ID] = struct{}{}
		conv.upsert(m, seq, false)
	}
	for id, e := range conv.entries {
		if _, ok := inBatch[id]; ok || e.sticky || e.seen >= seq {
			continue
		}
		delete(conv.entries, id)
	}
	s.sweepLocked(conv)
	return nil
}

func (s *ConversationStore) issue(ref models.ConversationRef) (*conversation, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.convLocked(ref)
	conv.issued++
	return conv, conv.issued
}

func (s *ConversationStore) convLocked(ref models.ConversationRef) *conversation {
	conv, ok := s.convs[ref]
	if !ok {
		conv = newConversation()
		s.convs[ref] = conv
	}
	return conv
}

func (c *conversation) upsert(m models.Message, seen uint64, sticky bool) {
	if _, gone := c.hidden[m.ID]; gone {
		return
	}
	e, ok := c.entries[m.ID]
	if !ok {
		c.entries[m.ID] = &entry{msg: m, seen: seen, sticky: sticky && !m.IsRead}
		return
	}

	prev := e.msg
	m.IsRead = m.IsRead || prev.IsRead
	if m.SelfDestructSeconds == 0 {
		m.SelfDestructSeconds = prev.SelfDestructSeconds
	}
	m.ReadOnce = m.ReadOnce || prev.ReadOnce
	if m.ThreatScore == 0 {
		m.ThreatScore = prev.ThreatScore
	}
	if m.SenderUsername == "" {
		m.SenderUsername = prev.SenderUsername
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = prev.Timestamp
	}
	e.msg = m
	if seen > e.seen {
		e.seen = seen
	}
	e.sticky = (e.sticky || sticky) && !m.IsRead
}

// ReceivePending pulls messages queued for the current user and files them
// under their direct conversations. It returns the messages that were new.
func (s *ConversationStore) ReceivePending(ctx context.Context) ([]models.Message, error) {
	msgs, err := s.client.PendingMessages(ctx)
	if err != nil {
		return nil, fmt.Errorf("receive pending: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return nil, nil
	}

	var fresh []models.Message
	for _, m := range msgs {
		if m.Conversation.IsZero() {
			m.Conversation = models.Direct(m.SenderID)
		}
		conv := s.convLocked(m.Conversation)
		if _, known := conv.entries[m.ID]; !known {
			if _, gone := conv.hidden[m.ID]; !gone {
				fresh = append(fresh, m)
			}
		}
		conv.upsert(m, conv.issued, true)
	}
	return fresh, nil
}

// Send submits draft to ref. A send with no conversation is rejected
// locally. The accepted message is added to the store at once; a HIGH
// threat score raises a warning without blocking.
func (s *ConversationStore) Send(ctx context.Context, ref models.ConversationRef, draft models.Draft) (models.SendReceipt, error) {
	if ref.IsZero() {
		return models.SendReceipt{}, client.Validationf("no conversation selected")
	}
	if err := validateInput(draftInput{Content: draft.Content, SelfDestructSeconds: draft.SelfDestructSeconds}); err != nil {
		return models.SendReceipt{}, err
	}
	if ref.Kind == models.ConversationRoom && (draft.ReadOnce || draft.SelfDestructSeconds > 0) {
		return models.SendReceipt{}, client.Validationf("room messages cannot be ephemeral")
	}

	var (
		receipt models.SendReceipt
		err     error
	)
	switch ref.Kind {
	case models.ConversationDirect:
		receipt, err = s.client.SendDirect(ctx, ref.ID, draft)
	case models.ConversationRoom:
		receipt, err = s.client.SendRoom(ctx, ref.ID, draft)
	default:
		return models.SendReceipt{}, client.Validationf("unknown conversation kind %q", ref.Kind)
	}
	if err != nil {
		return models.SendReceipt{}, fmt.Errorf("send to %s: %w", ref, err)
	}

	me, _ := s.self()
	msg := models.Message{
		ID:                  receipt.MessageID,
		Conversation:        ref,
		SenderID:            me.ID,
		SenderUsername:      me.Username,
		Content:             draft.Content,
		MessageType:         "text",
		Timestamp:           s.clock.Now().UTC(),
		SelfDestructSeconds: draft.SelfDestructSeconds,
		ReadOnce:            draft.ReadOnce,
		ThreatScore:         receipt.ThreatScore,
	}
	if ref.Kind == models.ConversationDirect {
		msg.RecipientID = ref.ID
	}

	s.mu.Lock()
	conv := s.convLocked(ref)
	conv.upsert(msg, conv.issued, false)
	s.mu.Unlock()

	if receipt.Level() == models.ThreatHigh {
		s.warn(ctx, ThreatWarning{
			Conversation: ref,
			MessageID:    receipt.MessageID,
			Score:        receipt.ThreatScore,
			Level:        models.ThreatHigh,
		})
	}
	return receipt, nil
}

func (s *ConversationStore) warn(ctx context.Context, w ThreatWarning) {
	s.log.Warn(ctx, "message flagged as high threat", "conversation", w.Conversation.String(), "message_id", w.MessageID, "score", w.Score)
	select {
	case s.warnings <- w:
	default:
		s.log.Warn(ctx, "threat warning dropped, nobody listening")
	}
}

// Delete removes messageID on the server and then locally.
func (s *ConversationStore) Delete(ctx context.Context, messageID string) error {
	if messageID == "" {
		return client.Validationf("message id is required")
	}

	ref, _ := s.locate(messageID)
	var err error
	if ref.Kind == models.ConversationRoom {
		err = s.client.DeleteRoomMessage(ctx, ref.ID, messageID)
	} else {
		err = s.client.DeleteMessage(ctx, messageID)
	}
	if err != nil {
		return fmt.Errorf("delete message %s: %w", messageID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !ref.IsZero() {
		conv := s.convLocked(ref)
		delete(conv.entries, messageID)
		conv.hidden[messageID] = struct{}{}
	}
	return nil
}

func (s *ConversationStore) locate(messageID string) (models.ConversationRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ref, conv := range s.convs {
		if _, ok := conv.entries[messageID]; ok {
			return ref, true
		}
	}
	return models.ConversationRef{}, false
}

// MarkRead records that ids were rendered to the viewer. Read-once
// messages among them disappear from the next snapshot.
func (s *ConversationStore) MarkRead(ref models.ConversationRef, ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[ref]
	if !ok {
		return
	}
	for _, id := range ids {
		if e, ok := conv.entries[id]; ok {
			e.msg.IsRead = true
			e.sticky = false
		}
	}
	s.sweepLocked(conv)
}

// View returns what the viewer sees now and marks the incoming messages in
// it as read.
func (s *ConversationStore) View(ref models.ConversationRef, viewerID string) []models.Message {
	msgs := s.Snapshot(ref)
	var incoming []string
	for _, m := range msgs {
		if m.SenderID != viewerID && !m.IsRead {
			incoming = append(incoming, m.ID)
		}
	}
	if len(incoming) > 0 {
		s.MarkRead(ref, incoming...)
	}
	return msgs
}

// Snapshot returns the visible messages of ref ordered by timestamp.
func (s *ConversationStore) Snapshot(ref models.ConversationRef) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[ref]
	if !ok {
		return nil
	}
	s.sweepLocked(conv)

	out := make([]models.Message, 0, len(conv.entries))
	for _, e := range conv.entries {
		out = append(out, e.msg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Conversations lists every conversation the store holds messages for.
func (s *ConversationStore) Conversations() []models.ConversationRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ConversationRef, 0, len(s.convs))
	for ref, conv := range s.convs {
		if len(conv.entries) > 0 {
			out = append(out, ref)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Sweep drops every message that has expired or been consumed. It returns
// how many were removed.
func (s *ConversationStore) Sweep(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, conv := range s.convs {
		n += s.sweepLocked(conv)
	}
	if n > 0 {
		s.log.Debug(ctx, "ephemeral messages removed", "count", n)
	}
	return n
}

func (s *ConversationStore) sweepLocked(conv *conversation) int {
	msgs := make([]models.Message, 0, len(conv.entries))
	for _, e := range conv.entries {
		msgs = append(msgs, e.msg)
	}
	_, hidden := ApplyEphemeralRules(msgs, s.clock.Now())
	for _, id := range hidden {
		delete(conv.entries, id)
		conv.hidden[id] = struct{}{}
	}
	return len(hidden)
}

// Reset forgets every conversation and the selection.
func (s *ConversationStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs = make(map[models.ConversationRef]*conversation)
	s.selected = models.ConversationRef{}
	for {
		select {
		case <-s.warnings:
		default:
			return
		}
	}
}
