package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/tacticallink/internal/client/models"
)

func TestApplyEphemeralRules(t *testing.T) {
	msgs := []models.Message{
		{ID: "plain", Timestamp: t0},
		{ID: "sd60", Timestamp: t0, SelfDestructSeconds: 60},
		{ID: "once-unread", Timestamp: t0, ReadOnce: true},
		{ID: "once-read", Timestamp: t0, ReadOnce: true, IsRead: true},
		{ID: "read", Timestamp: t0, IsRead: true},
	}

	tests := []struct {
		name       string
		now        time.Time
		wantIDs    []string
		wantHidden []string
	}{
		{"before deadline", t0.Add(59 * time.Second), []string{"plain", "sd60", "once-unread", "read"}, []string{"once-read"}},
		{"at deadline", t0.Add(60 * time.Second), []string{"plain", "once-unread", "read"}, []string{"sd60", "once-read"}},
		{"after deadline", t0.Add(61 * time.Second), []string{"plain", "once-unread", "read"}, []string{"sd60", "once-read"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			visible, hidden := ApplyEphemeralRules(msgs, tt.now)
			ids := make([]string, 0, len(visible))
			for _, m := range visible {
				ids = append(ids, m.ID)
			}
			require.Equal(t, tt.wantIDs, ids)
			require.Equal(t, tt.wantHidden, hidden)
		})
	}
}

func TestApplyEphemeralRules_Empty(t *testing.T) {
	visible, hidden := ApplyEphemeralRules(nil, t0)
	require.Empty(t, visible)
	require.Empty(t, hidden)
}
