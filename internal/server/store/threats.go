package store

import (
	"maps"
	"slices"
	"time"

	"github.com/dmitrijs2005/tacticallink/internal/server/models"
	"github.com/dmitrijs2005/tacticallink/internal/server/threat"
)

const (
	analyzeWindow  = 50
	monitorWindow  = 10
	recentThreats  = 20
	dashboardHours = 24
)

// AnalyzeUser scores userID from its latest messages, sent or received,
// and records the result as the user's current score.
func (s *Store) AnalyzeUser(userID string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now().UTC()
	score := s.analyzeLocked(userID, analyzeWindow, now)
	s.threatScores[userID] = score
	return score
}

// ThreatScore is the user's last recorded score, 0 if never analyzed.
func (s *Store) ThreatScore(userID string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threatScores[userID]
}

// MonitorActive re-scores every active user and logs scores above
// threat.MonitorThreshold. It returns the logs it wrote.
func (s *Store) MonitorActive() []models.ThreatLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now().UTC()
	var logged []models.ThreatLog
	for _, id := range slices.Sorted(maps.Keys(s.active)) {
		score := s.analyzeLocked(id, monitorWindow, now)
		s.threatScores[id] = score
		if score > threat.MonitorThreshold {
			logged = append(logged, s.logThreatLocked(id, score, threat.MonitorReason, now))
		}
	}
	return logged
}

// Dashboard aggregates what administrators see.
func (s *Store) Dashboard() models.Dashboard {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clk.Now().UTC()
	d := models.Dashboard{
		TotalUsers:   len(s.users),
		ActiveUsers:  len(s.active),
		ThreatScores: maps.Clone(s.threatScores),
	}
	for i := len(s.threatLogs) - 1; i >= 0 && len(d.RecentThreats) < recentThreats; i-- {
		d.RecentThreats = append(d.RecentThreats, s.threatLogs[i])
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	hourly := make([]int, dashboardHours)
	for _, m := range s.messages {
		if m.Deleted {
			continue
		}
		d.MessageStats.TotalMessages++
		if !m.Timestamp.Before(midnight) {
			d.MessageStats.MessagesToday++
		}
		age := now.Sub(m.Timestamp)
		if age > 0 && age <= dashboardHours*time.Hour {
			// bucket i covers [now-(i+1)h, now-ih)
			i := int((age - 1) / time.Hour)
			hourly[i]++
		}
	}
	for i, n := range hourly {
		start := now.Add(-time.Duration(i+1) * time.Hour)
		d.MessageStats.Hourly = append(d.MessageStats.Hourly, models.HourlyCount{Hour: start.Hour(), Count: n})
	}
	return d
}

func (s *Store) analyzeLocked(userID string, window int, now time.Time) float64 {
	var recent []*models.Message
	for i := len(s.messages) - 1; i >= 0 && len(recent) < window; i-- {
		m := s.messages[i]
		if !m.Deleted && (m.SenderID == userID || m.RecipientID == userID) {
			recent = append(recent, m)
		}
	}
	if len(recent) == 0 {
		return 0
	}
	samples := make([]threat.Sample, 0, len(recent))
	for _, m := range recent {
		samples = append(samples, threat.Sample{Length: len(m.Content), At: m.Timestamp})
	}
	return s.scorer.Score(threat.Extract(samples, now))
}

func (s *Store) logThreatLocked(userID string, score float64, reason string, now time.Time) models.ThreatLog {
	l := models.ThreatLog{ID: s.newID(), UserID: userID, Score: score, Reason: reason, Timestamp: now}
	s.threatLogs = append(s.threatLogs, l)
	return l
}
