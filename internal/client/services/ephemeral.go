package services

import (
	"time"

	"github.com/dmitrijs2005/tacticallink/internal/client/models"
)

// Hidden reports whether m must no longer be shown at now: a self-destruct
// message is gone from the instant its deadline is reached, and a read-once
// message is gone once it has been read.
func Hidden(m models.Message, now time.Time) bool {
	if m.ReadOnce && m.IsRead {
		return true
	}
	if deadline, ok := m.ExpiresAt(); ok && !now.Before(deadline) {
		return true
	}
	return false
}

// ApplyEphemeralRules splits msgs into those still visible at now and the
// ids of those that are not. Order of visible is preserved.
func ApplyEphemeralRules(msgs []models.Message, now time.Time) (visible []models.Message, hidden []string) {
	visible = make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if Hidden(m, now) {
			hidden = append(hidden, m.ID)
			continue
		}
		visible = append(visible, m)
	}
	return visible, hidden
}
