package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/tacticallink/internal/client/client"
	"github.com/dmitrijs2005/tacticallink/internal/client/models"
	"github.com/dmitrijs2005/tacticallink/internal/clock"
)

// ThreatMonitor holds the session-level threat status. It is unrelated to
// the per-message scores returned on send.
type ThreatMonitor struct {
	client client.Client
	clock  clock.Clock

	mu      sync.Mutex
	status  models.ThreatStatus
	issued  uint64
	applied uint64
}

func NewThreatMonitor(c client.Client, clk clock.Clock) *ThreatMonitor {
	if clk == nil {
		clk = clock.Real()
	}
	return &ThreatMonitor{
		client: c,
		clock:  clk,
		status: models.NewThreatStatus(0),
	}
}

// Refresh fetches the current status.
func (t *ThreatMonitor) Refresh(ctx context.Context) error {
	_, err := t.update(ctx, t.client.Status)
	if err != nil {
		return fmt.Errorf("threat status: %w", err)
	}
	return nil
}

// Analyze asks the server to re-score the current user and records the
// result.
func (t *ThreatMonitor) Analyze(ctx context.Context) (models.ThreatStatus, error) {
	st, err := t.update(ctx, t.client.AnalyzeThreat)
	if err != nil {
		return models.ThreatStatus{}, fmt.Errorf("threat analysis: %w", err)
	}
	return st, nil
}

func (t *ThreatMonitor) update(ctx context.Context, fetch func(context.Context) (models.ThreatStatus, error)) (models.ThreatStatus, error) {
	t.mu.Lock()
	t.issued++
	seq := t.issued
	t.mu.Unlock()

	st, err := fetch(ctx)
	if err != nil {
		return models.ThreatStatus{}, err
	}

	fresh := models.NewThreatStatus(st.Score)
	fresh.ActiveUsers = st.ActiveUsers
	fresh.UpdatedAt = st.UpdatedAt
	if fresh.UpdatedAt.IsZero() {
		fresh.UpdatedAt = t.clock.Now().UTC()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if ctx.Err() != nil || seq <= t.applied {
		return fresh, nil
	}
	t.applied = seq
	t.status = fresh
	return fresh, nil
}

func (t *ThreatMonitor) Current() models.ThreatStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Reset returns to score 0, level LOW.
func (t *ThreatMonitor) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = models.NewThreatStatus(0)
	t.applied = t.issued
}
