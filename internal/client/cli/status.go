package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dmitrijs2005/tacticallink/internal/client/client"
	"github.com/dmitrijs2005/tacticallink/internal/client/models"
)

// Status prints the last polled threat status.
func (a *App) Status(context.Context) error {
	st := a.coord.Threat.Current()
	a.printf("Threat level %s (%.0f)\n", st.Level, st.Score)
	if len(st.ActiveUsers) > 0 {
		a.printf("Active users: %s\n", strings.Join(st.ActiveUsers, ", "))
	}
	if !st.UpdatedAt.IsZero() {
		a.printf("Updated %s\n", st.UpdatedAt.Local().Format(timeLayout))
	}
	return nil
}

// Analyze asks the backend to score the user's recent activity now.
func (a *App) Analyze(ctx context.Context) error {
	st, err := a.coord.Threat.Analyze(ctx)
	if err != nil {
		return err
	}
	a.printf("Threat level %s (%.0f)\n", st.Level, st.Score)
	return nil
}

// Admin opens the admin dashboard and prints it; "admin close" stops
// polling it.
func (a *App) Admin(ctx context.Context, args []string) error {
	if len(args) > 0 && args[0] == "close" {
		a.coord.CloseAdminView()
		return nil
	}
	if !a.coord.AdminViewOpen() {
		if err := a.coord.OpenAdminView(); err != nil {
			return err
		}
	}
	if err := a.coord.Admin.Refresh(ctx); err != nil {
		return err
	}
	d, ok := a.coord.Admin.Current()
	if !ok {
		return fmt.Errorf("%w: dashboard not loaded", client.ErrUnavailable)
	}
	a.printDashboard(d)
	return nil
}

func (a *App) printDashboard(d models.AdminDashboard) {
	a.printf("Users: %d total, %d active\n", d.TotalUsers, d.ActiveUsers)
	a.printf("Messages: %d total, %d today\n", d.MessageStats.TotalMessages, d.MessageStats.MessagesToday)

	if len(d.ThreatScores) > 0 {
		a.println("Threat scores:")
		ids := make([]string, 0, len(d.ThreatScores))
		for id := range d.ThreatScores {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return d.ThreatScores[ids[i]] > d.ThreatScores[ids[j]] })
		for _, id := range ids {
			score := d.ThreatScores[id]
			a.printf("  %-20s %3.0f %s\n", a.userName(id), score, models.LevelForScore(score))
		}
	}

	if len(d.RecentThreats) > 0 {
		a.println("Recent threats:")
		for _, t := range d.RecentThreats {
			a.printf("  [%s] %s %.0f %s\n", t.Timestamp.Local().Format(timeLayout), a.userName(t.UserID), t.Score, t.Reason)
		}
	}

	var busy []string
	for _, h := range d.MessageStats.Hourly {
		if h.Count > 0 {
			busy = append(busy, fmt.Sprintf("%02d:00=%d", h.Hour, h.Count))
		}
	}
	if len(busy) > 0 {
		a.printf("Last 24h: %s\n", strings.Join(busy, " "))
	}
}

// Stats prints the polling metrics and the circuit breaker state.
func (a *App) Stats(context.Context) error {
	families, err := a.scheduler.Metrics().Registry().Gather()
	if err != nil {
		return err
	}
	a.printf("Connection: %s, breaker %s\n", a.mode(), a.http.BreakerState())
	for _, mf := range families {
		a.println(mf.GetName())
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			var v float64
			switch {
			case m.GetCounter() != nil:
				v = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				v = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				v = float64(m.GetHistogram().GetSampleCount())
			}
			a.printf("  {%s} %g\n", strings.Join(labels, ","), v)
		}
	}
	return nil
}

func (a *App) userName(id string) string {
	if me, ok := a.session.Identity(); ok && me.ID == id {
		return me.Username
	}
	for _, u := range a.coord.Directory.Users() {
		if u.ID == id {
			return u.Username
		}
	}
	return id
}
