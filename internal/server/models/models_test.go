package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMessage_ExpiredAndVisible(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	m := Message{Timestamp: t0, SelfDestructSeconds: 30}

	assert.False(t, m.Expired(t0.Add(29*time.Second)))
	assert.True(t, m.Expired(t0.Add(30*time.Second)))
	assert.False(t, m.Visible(t0.Add(time.Minute)))

	m.SelfDestructSeconds = 0
	assert.False(t, m.Expired(t0.Add(24*time.Hour)))
	assert.True(t, m.Visible(t0))

	m.Deleted = true
	assert.False(t, m.Visible(t0))
}

func TestRoom_CloneAndFull(t *testing.T) {
	r := Room{Members: []string{"a"}, MaxMembers: 2}
	assert.False(t, r.Full())
	assert.True(t, r.IsMember("a"))

	c := r.Clone()
	c.Members = append(c.Members, "b")
	c.Members[0] = "z"
	assert.Equal(t, []string{"a"}, r.Members)
	assert.True(t, c.Full())
}
