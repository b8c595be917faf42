package poller

import (
	"context"
	"time"

	"github.com/dmitrijs2005/tacticallink/internal/client/config"
)

// Channel names a polling task.
type Channel string

const (
	DirectMessages Channel = "direct-messages"
	RoomMessages   Channel = "room-messages"
	Inbox          Channel = "inbox"
	Users          Channel = "users"
	Rooms          Channel = "rooms"
	ThreatStatus   Channel = "threat-status"
	AdminDashboard Channel = "admin-dashboard"
	EphemeralSweep Channel = "ephemeral-sweep"
)

// AllChannels lists every channel the client knows about.
var AllChannels = []Channel{
	DirectMessages, RoomMessages, Inbox, Users, Rooms, ThreatStatus, AdminDashboard, EphemeralSweep,
}

// FetchFunc performs one poll. ctx is cancelled when the channel stops.
type FetchFunc func(ctx context.Context) error

// Periods maps channels to their configured intervals.
type Periods map[Channel]time.Duration

func PeriodsFromConfig(p config.PollIntervals) Periods {
	return Periods{
		DirectMessages: p.DirectMessages,
		RoomMessages:   p.RoomMessages,
		Inbox:          p.Inbox,
		Users:          p.Users,
		Rooms:          p.Rooms,
		ThreatStatus:   p.ThreatStatus,
		AdminDashboard: p.AdminDashboard,
		EphemeralSweep: p.EphemeralSweep,
	}
}
