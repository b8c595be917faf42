package models

import "time"

// ThreatLog records a score that crossed the logging threshold.
type ThreatLog struct {
	ID        string
	UserID    string
	Score     float64
	Reason    string
	Timestamp time.Time
}

type HourlyCount struct {
	Hour  int
	Count int
}

type MessageStats struct {
	TotalMessages int
	MessagesToday int
	Hourly        []HourlyCount
}

type Dashboard struct {
	TotalUsers    int
	ActiveUsers   int
	ThreatScores  map[string]float64
	RecentThreats []ThreatLog
	MessageStats  MessageStats
}
