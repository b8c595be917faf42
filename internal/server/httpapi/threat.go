package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) registerThreatRoutes(r chi.Router) {
	r.Post("/threat/analyze", s.handleAnalyze)
	r.Get("/ws/status", s.handleStatus)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Get("/admin/dashboard", s.handleDashboard)
		r.Get("/admin/users", s.handleAdminUsers)
	})
}

func riskLevel(score float64) string {
	switch {
	case score > 70:
		return "HIGH"
	case score > 40:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	score := s.store.AnalyzeUser(currentUserID(r.Context()))
	respondJSON(w, http.StatusOK, map[string]any{
		"threat_score": score,
		"risk_level":   riskLevel(score),
		"timestamp":    isoTime(s.clk.Now()),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	me := currentUserID(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":      me,
		"threat_score": s.store.ThreatScore(me),
		"active_users": s.store.ActiveUsers(),
		"timestamp":    isoTime(s.clk.Now()),
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.store.UserByID(currentUserID(r.Context()))
		if err != nil || !user.IsAdmin {
			respondError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d := s.store.Dashboard()

	threats := make([]map[string]any, 0, len(d.RecentThreats))
	for _, t := range d.RecentThreats {
		threats = append(threats, map[string]any{
			"_id":          t.ID,
			"user_id":      t.UserID,
			"threat_score": t.Score,
			"reason":       t.Reason,
			"timestamp":    isoTime(t.Timestamp),
		})
	}
	hourly := make([]map[string]int, 0, len(d.MessageStats.Hourly))
	for _, h := range d.MessageStats.Hourly {
		hourly = append(hourly, map[string]int{"hour": h.Hour, "count": h.Count})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"total_users":    d.TotalUsers,
		"active_users":   d.ActiveUsers,
		"threat_scores":  d.ThreatScores,
		"recent_threats": threats,
		"message_stats": map[string]any{
			"total_messages": d.MessageStats.TotalMessages,
			"messages_today": d.MessageStats.MessagesToday,
			"hourly_stats":   hourly,
		},
		"timestamp": isoTime(s.clk.Now()),
	})
}

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	users := []map[string]any{}
	for _, u := range s.store.Users() {
		users = append(users, userJSON(u))
	}
	respondJSON(w, http.StatusOK, map[string]any{"users": users, "count": len(users)})
}
