// Package threat scores user behaviour on a 0-100 scale.
package threat

import "time"

const (
	// LogThreshold is the per-message score above which a threat log is written.
	LogThreshold = 70
	// MonitorThreshold is the score above which the background monitor logs.
	MonitorThreshold = 80

	MessageReason = "High message frequency or suspicious pattern"
	MonitorReason = "Automated threat detection - high risk"
)

// Features summarise recent activity of one user.
type Features struct {
	MessagesPerHour float64
	AvgLength       float64
	LengthVariance  float64
	Hour            int
}

// Scorer turns activity features into a score.
type Scorer interface {
	Score(f Features) float64
}

// Rules is the rule-based scorer.
type Rules struct{}

func (Rules) Score(f Features) float64 {
	var score float64
	if f.MessagesPerHour > 20 {
		score += 30
	}
	if f.Hour < 5 || f.Hour > 22 {
		score += 20
	}
	if f.AvgLength < 10 || f.AvgLength > 500 {
		score += 15
	}
	if f.LengthVariance > 1000 {
		score += 10
	}
	return min(score, 100)
}

// Sample is one message in a user's history.
type Sample struct {
	Length int
	At     time.Time
}

// Extract builds features from a user's messages as seen at now. Samples
// older than an hour only contribute to the length statistics.
func Extract(samples []Sample, now time.Time) Features {
	f := Features{Hour: now.Hour()}
	if len(samples) == 0 {
		return f
	}

	var sum float64
	cutoff := now.Add(-time.Hour)
	for _, s := range samples {
		sum += float64(s.Length)
		if s.At.After(cutoff) {
			f.MessagesPerHour++
		}
	}
	n := float64(len(samples))
	f.AvgLength = sum / n

	if len(samples) > 1 {
		var sq float64
		for _, s := range samples {
			d := float64(s.Length) - f.AvgLength
			sq += d * d
		}
		f.LengthVariance = sq / n
	}
	return f
}
