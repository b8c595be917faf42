package services

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/tacticallink/internal/client/client"
	"github.com/dmitrijs2005/tacticallink/internal/client/models"
	"github.com/dmitrijs2005/tacticallink/internal/client/poller"
	"github.com/dmitrijs2005/tacticallink/internal/logging"
)

const incomingBuffer = 64

// Coordinator binds polling channels to the session and to what the user
// is looking at. Only the selected conversation is polled; the inbox is
// polled while nothing is selected.
type Coordinator struct {
	Session       *SessionManager
	Conversations *ConversationStore
	Directory     *DirectoryTracker
	Threat        *ThreatMonitor
	Admin         *AdminMonitor

	scheduler *poller.Scheduler
	periods   poller.Periods
	log       logging.Logger

	incomingMu sync.Mutex
	incoming   chan models.Message

	mu        sync.Mutex
	active    bool
	adminOpen bool
}

type CoordinatorDeps struct {
	Session       *SessionManager
	Conversations *ConversationStore
	Directory     *DirectoryTracker
	Threat        *ThreatMonitor
	Admin         *AdminMonitor
	Scheduler     *poller.Scheduler
	Periods       poller.Periods
	Logger        logging.Logger
}

// NewCoordinator wires the components together and subscribes to session
// transitions: channels are started on AUTHENTICATED, cancelled before any
// session state is cleared, and read models are reset afterwards.
func NewCoordinator(d CoordinatorDeps) *Coordinator {
	log := d.Logger
	if log == nil {
		log = logging.Discard()
	}
	c := &Coordinator{
		Session:       d.Session,
		Conversations: d.Conversations,
		Directory:     d.Directory,
		Threat:        d.Threat,
		Admin:         d.Admin,
		scheduler:     d.Scheduler,
		periods:       d.Periods,
		log:           log,
		incoming:      make(chan models.Message, incomingBuffer),
	}
	c.Session.OnTeardown(c.scheduler.StopAll)
	c.Session.OnPhaseChange(c.onPhase)
	return c
}

// Incoming delivers messages that arrived through the inbox.
func (c *Coordinator) Incoming() <-chan models.Message {
	return c.incoming
}

func (c *Coordinator) onPhase(_, to models.Phase) {
	switch to {
	case models.PhaseAuthenticated:
		c.activate()
	case models.PhaseUnauthenticated, models.PhaseExpired:
		c.reset()
	}
}

func (c *Coordinator) activate() {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return
	}
	c.active = true
	c.mu.Unlock()

	c.start(poller.Users, c.Directory.RefreshUsers)
	c.start(poller.Rooms, c.Directory.RefreshRooms)
	c.start(poller.ThreatStatus, c.Threat.Refresh)
	c.start(poller.EphemeralSweep, func(ctx context.Context) error {
		c.Conversations.Sweep(ctx)
		return nil
	})

	ref := c.Conversations.Selected()
	if ref.IsZero() {
		c.start(poller.Inbox, c.pollInbox)
		return
	}
	c.startConversation(ref)
}

func (c *Coordinator) reset() {
	c.mu.Lock()
	c.active = false
	c.adminOpen = false
	c.mu.Unlock()

	// Channels are already cancelled by the session teardown hook.
	c.scheduler.StopAll()
	c.Conversations.Reset()
	c.Directory.Reset()
	c.Threat.Reset()
	c.Admin.Reset()

	c.incomingMu.Lock()
	defer c.incomingMu.Unlock()
	for {
		select {
		case <-c.incoming:
		default:
			return
		}
	}
}

func (c *Coordinator) start(ch poller.Channel, fn poller.FetchFunc) {
	if err := c.scheduler.Start(ch, fn, c.periods[ch]); err != nil {
		c.log.Error(context.Background(), "start channel", "channel", ch, "error", err)
	}
}

func (c *Coordinator) pollInbox(ctx context.Context) error {
	fresh, err := c.Conversations.ReceivePending(ctx)
	if err != nil {
		return err
	}
	c.notify(ctx, fresh)
	return nil
}

// notify queues inbox arrivals unless ctx, and with it the session that
// fetched them, is already gone.
func (c *Coordinator) notify(ctx context.Context, msgs []models.Message) {
	c.incomingMu.Lock()
	defer c.incomingMu.Unlock()
	for _, m := range msgs {
		if ctx.Err() != nil {
			return
		}
		select {
		case c.incoming <- m:
		default:
			c.log.Debug(ctx, "incoming notification dropped", "message_id", m.ID)
		}
	}
}

func (c *Coordinator) requireSession() error {
	if !c.Session.Authenticated() {
		return fmt.Errorf("%w: log in first", client.ErrUnauthorized)
	}
	return nil
}

// SelectDirect focuses the conversation with peerID.
func (c *Coordinator) SelectDirect(peerID string) error {
	if peerID == "" {
		return client.Validationf("peer id is required")
	}
	return c.selectConversation(models.Direct(peerID))
}

// SelectRoom focuses roomID.
func (c *Coordinator) SelectRoom(roomID string) error {
	if roomID == "" {
		return client.Validationf("room id is required")
	}
	return c.selectConversation(models.RoomRef(roomID))
}

func (c *Coordinator) selectConversation(ref models.ConversationRef) error {
	if err := c.requireSession(); err != nil {
		return err
	}
	c.Conversations.Select(ref)
	c.scheduler.Stop(poller.Inbox)
	c.startConversation(ref)
	return nil
}

func (c *Coordinator) startConversation(ref models.ConversationRef) {
	switch ref.Kind {
	case models.ConversationDirect:
		c.scheduler.Stop(poller.RoomMessages)
		c.start(poller.DirectMessages, func(ctx context.Context) error {
			return c.Conversations.LoadDirect(ctx, ref.ID)
		})
	case models.ConversationRoom:
		c.scheduler.Stop(poller.DirectMessages)
		c.start(poller.RoomMessages, func(ctx context.Context) error {
			return c.Conversations.LoadRoom(ctx, ref.ID)
		})
	}
}

// ClearSelection unfocuses the conversation and resumes inbox polling.
func (c *Coordinator) ClearSelection() {
	c.scheduler.Stop(poller.DirectMessages)
	c.scheduler.Stop(poller.RoomMessages)
	c.Conversations.Select(models.ConversationRef{})
	if c.Session.Authenticated() {
		c.start(poller.Inbox, c.pollInbox)
	}
}

// Send submits draft to the selected conversation and polls it right away.
func (c *Coordinator) Send(ctx context.Context, draft models.Draft) (models.SendReceipt, error) {
	ref := c.Conversations.Selected()
	receipt, err := c.Conversations.Send(ctx, ref, draft)
	if err != nil {
		return receipt, err
	}
	c.triggerConversation(ref)
	return receipt, nil
}

func (c *Coordinator) triggerConversation(ref models.ConversationRef) {
	switch ref.Kind {
	case models.ConversationDirect:
		c.scheduler.Trigger(poller.DirectMessages)
	case models.ConversationRoom:
		c.scheduler.Trigger(poller.RoomMessages)
	}
}

// CreateRoom creates a room and refreshes the directory.
func (c *Coordinator) CreateRoom(ctx context.Context, name, description string, private bool, maxMembers int) (models.CreatedRoom, error) {
	if err := c.requireSession(); err != nil {
		return models.CreatedRoom{}, err
	}
	created, err := c.Directory.CreateRoom(ctx, name, description, private, maxMembers)
	if err != nil {
		return created, err
	}
	c.scheduler.Trigger(poller.Rooms)
	return created, nil
}

// JoinRoom joins a public room and selects it.
func (c *Coordinator) JoinRoom(ctx context.Context, roomID string) (models.JoinedRoom, error) {
	if err := c.requireSession(); err != nil {
		return models.JoinedRoom{}, err
	}
	joined, err := c.Directory.JoinRoom(ctx, roomID)
	if err != nil {
		return joined, err
	}
	c.scheduler.Trigger(poller.Rooms)
	return joined, c.SelectRoom(joined.ID)
}

// JoinByKey joins a private room by key and selects it.
func (c *Coordinator) JoinByKey(ctx context.Context, key string) (models.JoinedRoom, error) {
	if err := c.requireSession(); err != nil {
		return models.JoinedRoom{}, err
	}
	joined, err := c.Directory.JoinByKey(ctx, key)
	if err != nil {
		return joined, err
	}
	c.scheduler.Trigger(poller.Rooms)
	return joined, c.SelectRoom(joined.ID)
}

// LeaveRoom leaves roomID, dropping the selection if it was selected.
func (c *Coordinator) LeaveRoom(ctx context.Context, roomID string) error {
	if err := c.requireSession(); err != nil {
		return err
	}
	if err := c.Directory.LeaveRoom(ctx, roomID); err != nil {
		return err
	}
	if c.Conversations.Selected() == models.RoomRef(roomID) {
		c.ClearSelection()
	}
	c.scheduler.Trigger(poller.Rooms)
	return nil
}

// OpenAdminView starts polling the admin dashboard. Non-admins are refused
// locally.
func (c *Coordinator) OpenAdminView() error {
	if err := c.requireSession(); err != nil {
		return err
	}
	if id, _ := c.Session.Identity(); !id.IsAdmin {
		return fmt.Errorf("%w: admin access required", client.ErrForbidden)
	}
	c.mu.Lock()
	c.adminOpen = true
	c.mu.Unlock()
	c.start(poller.AdminDashboard, c.Admin.Refresh)
	return nil
}

func (c *Coordinator) CloseAdminView() {
	c.mu.Lock()
	c.adminOpen = false
	c.mu.Unlock()
	c.scheduler.Stop(poller.AdminDashboard)
}

func (c *Coordinator) AdminViewOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.adminOpen
}

// RefreshAll refreshes the directories and the threat status concurrently.
func (c *Coordinator) RefreshAll(ctx context.Context) error {
	if err := c.requireSession(); err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Directory.RefreshUsers(ctx) })
	g.Go(func() error { return c.Directory.RefreshRooms(ctx) })
	g.Go(func() error { return c.Threat.Refresh(ctx) })
	return g.Wait()
}

// Logout ends the session; all channels stop before state is cleared.
func (c *Coordinator) Logout(ctx context.Context) error {
	return c.Session.Logout(ctx)
}
