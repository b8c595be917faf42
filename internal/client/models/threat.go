package models

import "time"

type ThreatLevel string

const (
	ThreatLow    ThreatLevel = "LOW"
	ThreatMedium ThreatLevel = "MEDIUM"
	ThreatHigh   ThreatLevel = "HIGH"
)

const (
	mediumThreshold = 40
	highThreshold   = 70
)

// LevelForScore classifies a 0-100 threat score. It is the only place the
// thresholds live; per-message scores and the status feed both use it.
func LevelForScore(score float64) ThreatLevel {
	switch {
	case score > highThreshold:
		return ThreatHigh
	case score > mediumThreshold:
		return ThreatMedium
	default:
		return ThreatLow
	}
}

// ClampScore limits a score reported by the backend to 0-100.
func ClampScore(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}

// ThreatStatus is the aggregate threat read model.
type ThreatStatus struct {
	Score       float64
	Level       ThreatLevel
	ActiveUsers []string
	UpdatedAt   time.Time
}

func NewThreatStatus(score float64) ThreatStatus {
	score = ClampScore(score)
	return ThreatStatus{Score: score, Level: LevelForScore(score)}
}

// ThreatLogEntry is one recorded high-threat event.
type ThreatLogEntry struct {
	ID        string
	UserID    string
	Score     float64
	Reason    string
	Timestamp time.Time
}

// HourlyCount is the message count for one hour of the day (0-23).
type HourlyCount struct {
	Hour  int
	Count int
}

type MessageStats struct {
	TotalMessages int
	MessagesToday int
	Hourly        []HourlyCount
}

// AdminDashboard is the aggregate view only administrators may fetch.
type AdminDashboard struct {
	TotalUsers    int
	ActiveUsers   int
	ThreatScores  map[string]float64
	RecentThreats []ThreatLogEntry
	MessageStats  MessageStats
	Timestamp     time.Time
}
