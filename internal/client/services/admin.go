package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/tacticallink/internal/client/client"
	"github.com/dmitrijs2005/tacticallink/internal/client/models"
)

// AdminMonitor holds the latest admin dashboard.
type AdminMonitor struct {
	client client.Client

	mu        sync.Mutex
	dashboard *models.AdminDashboard
	issued    uint64
	applied   uint64
}

func NewAdminMonitor(c client.Client) *AdminMonitor {
	return &AdminMonitor{client: c}
}

func (a *AdminMonitor) Refresh(ctx context.Context) error {
	a.mu.Lock()
	a.issued++
	seq := a.issued
	a.mu.Unlock()

	d, err := a.client.AdminDashboard(ctx)
	if err != nil {
		return fmt.Errorf("admin dashboard: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if ctx.Err() != nil || seq <= a.applied {
		return nil
	}
	a.applied = seq
	a.dashboard = &d
	return nil
}

func (a *AdminMonitor) Current() (models.AdminDashboard, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dashboard == nil {
		return models.AdminDashboard{}, false
	}
	return *a.dashboard, true
}

func (a *AdminMonitor) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dashboard = nil
	a.applied = a.issued
}
