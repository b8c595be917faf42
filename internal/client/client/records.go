package client

import (
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/tacticallink/internal/client/models"
)

// Wire records, one per endpoint. They are decoded as-is and then
// normalized into models values; anything the stores rely on is checked
// here so a bad record never reaches them.

type errorRecord struct {
	Error   string `json:"error"`
	Msg     string `json:"msg"`
	Message string `json:"message"`
}

func (r errorRecord) reason() string {
	switch {
	case r.Error != "":
		return r.Error
	case r.Msg != "":
		return r.Msg
	default:
		return r.Message
	}
}

type authRecord struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	PublicKey   string `json:"public_key"`
}

func (r authRecord) normalize(fallbackUsername string) (AuthResult, error) {
	if r.AccessToken == "" || r.UserID == "" {
		return AuthResult{}, fmt.Errorf("%w: auth response without token or user id", ErrMalformedResponse)
	}
	username := r.Username
	if username == "" {
		username = fallbackUsername
	}
	return AuthResult{
		Token:     r.AccessToken,
		Identity:  models.Identity{ID: r.UserID, Username: username},
		PublicKey: r.PublicKey,
	}, nil
}

type verifyRecord struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

func (r verifyRecord) normalize() (models.Identity, error) {
	if r.UserID == "" || r.Username == "" {
		return models.Identity{}, fmt.Errorf("%w: verify response without user", ErrMalformedResponse)
	}
	return models.Identity{ID: r.UserID, Username: r.Username, IsAdmin: r.IsAdmin}, nil
}

type userRecord struct {
	ID       string `json:"id"`
	MongoID  string `json:"_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsAdmin  bool   `json:"is_admin"`
}

type usersRecord struct {
	Users []userRecord `json:"users"`
}

func (r usersRecord) normalize() ([]models.User, error) {
	out := make([]models.User, 0, len(r.Users))
	for _, u := range r.Users {
		id := firstNonEmpty(u.ID, u.MongoID)
		if id == "" || u.Username == "" {
			return nil, fmt.Errorf("%w: user without id or username", ErrMalformedResponse)
		}
		out = append(out, models.User{ID: id, Username: u.Username, Email: u.Email, IsAdmin: u.IsAdmin})
	}
	return out, nil
}

type messageRecord struct {
	ID               string  `json:"id"`
	MongoID          string  `json:"_id"`
	SenderID         string  `json:"sender_id"`
	SenderUsername   string  `json:"sender_username"`
	RecipientID      string  `json:"recipient_id"`
	RoomID           string  `json:"room_id"`
	Content          string  `json:"content"`
	MessageType      string  `json:"message_type"`
	Timestamp        string  `json:"timestamp"`
	SelfDestructTime float64 `json:"self_destruct_time"`
	ReadOnce         bool    `json:"read_once"`
	IsRead           bool    `json:"is_read"`
	ThreatScore      float64 `json:"threat_score"`
}

func (r messageRecord) normalize(ref models.ConversationRef) (models.Message, error) {
	id := firstNonEmpty(r.ID, r.MongoID)
	if id == "" || r.SenderID == "" {
		return models.Message{}, fmt.Errorf("%w: message without id or sender", ErrMalformedResponse)
	}
	ts, err := ParseTimestamp(r.Timestamp)
	if err != nil {
		return models.Message{}, fmt.Errorf("%w: message %s: %v", ErrMalformedResponse, id, err)
	}
	sd := 0
	if r.SelfDestructTime > 0 {
		sd = int(math.Ceil(r.SelfDestructTime))
	}
	return models.Message{
		ID:                  id,
		Conversation:        ref,
		SenderID:            r.SenderID,
		SenderUsername:      r.SenderUsername,
		RecipientID:         r.RecipientID,
		Content:             r.Content,
		MessageType:         r.MessageType,
		Timestamp:           ts,
		SelfDestructSeconds: sd,
		ReadOnce:            r.ReadOnce,
		IsRead:              r.IsRead,
		ThreatScore:         models.ClampScore(r.ThreatScore),
	}, nil
}

type messagesRecord struct {
	Messages []messageRecord `json:"messages"`
}

// normalize decodes every message. refFor picks the conversation a record
// belongs to.
func (r messagesRecord) normalize(refFor func(messageRecord) models.ConversationRef) ([]models.Message, error) {
	out := make([]models.Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		msg, err := m.normalize(refFor(m))
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

type sendRecord struct {
	MessageID   string  `json:"message_id"`
	ThreatScore float64 `json:"threat_score"`
}

func (r sendRecord) normalize() (models.SendReceipt, error) {
	if r.MessageID == "" {
		return models.SendReceipt{}, fmt.Errorf("%w: send response without message id", ErrMalformedResponse)
	}
	return models.SendReceipt{MessageID: r.MessageID, ThreatScore: models.ClampScore(r.ThreatScore)}, nil
}

type roomRecord struct {
	ID          string   `json:"id"`
	MongoID     string   `json:"_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	IsPublic    *bool    `json:"is_public"`
	Members     []string `json:"members"`
	MaxMembers  int      `json:"max_members"`
	JoinKey     string   `json:"join_key"`
	CreatedBy   string   `json:"created_by"`
}

type roomsRecord struct {
	Rooms []roomRecord `json:"rooms"`
}

func (r roomsRecord) normalize() ([]models.Room, error) {
	out := make([]models.Room, 0, len(r.Rooms))
	for _, rr := range r.Rooms {
		id := firstNonEmpty(rr.ID, rr.MongoID)
		if id == "" || rr.Name == "" {
			return nil, fmt.Errorf("%w: room without id or name", ErrMalformedResponse)
		}
		public := rr.IsPublic == nil || *rr.IsPublic
		room := models.Room{
			ID:          id,
			Name:        rr.Name,
			Description: rr.Description,
			IsPublic:    public,
			MemberIDs:   append([]string(nil), rr.Members...),
			MaxMembers:  rr.MaxMembers,
			CreatedBy:   rr.CreatedBy,
		}
		if !public {
			room.JoinKey = strings.ToUpper(rr.JoinKey)
		}
		out = append(out, room)
	}
	return out, nil
}

type createRoomRecord struct {
	RoomID   string `json:"room_id"`
	RoomName string `json:"room_name"`
	IsPublic bool   `json:"is_public"`
	JoinKey  string `json:"join_key"`
}

func (r createRoomRecord) normalize(req CreateRoomRequest) (models.CreatedRoom, error) {
	if r.RoomID == "" {
		return models.CreatedRoom{}, fmt.Errorf("%w: create room response without room id", ErrMalformedResponse)
	}
	if !req.IsPublic && r.JoinKey == "" {
		return models.CreatedRoom{}, fmt.Errorf("%w: private room created without join key", ErrMalformedResponse)
	}
	return models.CreatedRoom{
		ID:       r.RoomID,
		Name:     firstNonEmpty(r.RoomName, req.Name),
		IsPublic: req.IsPublic,
		JoinKey:  strings.ToUpper(r.JoinKey),
	}, nil
}

type joinRecord struct {
	RoomID   string `json:"room_id"`
	RoomName string `json:"room_name"`
	Message  string `json:"message"`
}

func (r joinRecord) normalize(fallbackID string) JoinResult {
	res := JoinResult{Room: models.JoinedRoom{ID: firstNonEmpty(r.RoomID, fallbackID), Name: r.RoomName}}
	if r.RoomName == "" && strings.Contains(strings.ToLower(r.Message), "already a member") {
		res.AlreadyMember = true
	}
	return res
}

type statusRecord struct {
	UserID      string   `json:"user_id"`
	ThreatScore *float64 `json:"threat_score"`
	ActiveUsers []string `json:"active_users"`
	Timestamp   string   `json:"timestamp"`
}

func (r statusRecord) normalize() (models.ThreatStatus, error) {
	if r.ThreatScore == nil {
		return models.ThreatStatus{}, fmt.Errorf("%w: status without threat score", ErrMalformedResponse)
	}
	st := models.NewThreatStatus(*r.ThreatScore)
	st.ActiveUsers = r.ActiveUsers
	if ts, err := ParseTimestamp(r.Timestamp); err == nil {
		st.UpdatedAt = ts
	}
	return st, nil
}

type analyzeRecord struct {
	ThreatScore *float64 `json:"threat_score"`
	RiskLevel   string   `json:"risk_level"`
	Timestamp   string   `json:"timestamp"`
}

// normalize ignores risk_level: levels are always derived locally.
func (r analyzeRecord) normalize() (models.ThreatStatus, error) {
	return statusRecord{ThreatScore: r.ThreatScore, Timestamp: r.Timestamp}.normalize()
}

type threatLogRecord struct {
	ID          string  `json:"id"`
	MongoID     string  `json:"_id"`
	UserID      string  `json:"user_id"`
	ThreatScore float64 `json:"threat_score"`
	Reason      string  `json:"reason"`
	Timestamp   string  `json:"timestamp"`
}

type dashboardRecord struct {
	TotalUsers    int                `json:"total_users"`
	ActiveUsers   int                `json:"active_users"`
	ThreatScores  map[string]float64 `json:"threat_scores"`
	RecentThreats []threatLogRecord  `json:"recent_threats"`
	MessageStats  struct {
		TotalMessages int `json:"total_messages"`
		MessagesToday int `json:"messages_today"`
		HourlyStats   []struct {
			Hour  int `json:"hour"`
			Count int `json:"count"`
		} `json:"hourly_stats"`
	} `json:"message_stats"`
	Timestamp string `json:"timestamp"`
}

func (r dashboardRecord) normalize() models.AdminDashboard {
	d := models.AdminDashboard{
		TotalUsers:   r.TotalUsers,
		ActiveUsers:  r.ActiveUsers,
		ThreatScores: make(map[string]float64, len(r.ThreatScores)),
		MessageStats: models.MessageStats{
			TotalMessages: r.MessageStats.TotalMessages,
			MessagesToday: r.MessageStats.MessagesToday,
		},
	}
	for user, score := range r.ThreatScores {
		d.ThreatScores[user] = models.ClampScore(score)
	}
	for _, t := range r.RecentThreats {
		ts, _ := ParseTimestamp(t.Timestamp)
		d.RecentThreats = append(d.RecentThreats, models.ThreatLogEntry{
			ID:        firstNonEmpty(t.ID, t.MongoID),
			UserID:    t.UserID,
			Score:     models.ClampScore(t.ThreatScore),
			Reason:    t.Reason,
			Timestamp: ts,
		})
	}
	for _, h := range r.MessageStats.HourlyStats {
		d.MessageStats.Hourly = append(d.MessageStats.Hourly, models.HourlyCount{Hour: h.Hour, Count: h.Count})
	}
	d.Timestamp, _ = ParseTimestamp(r.Timestamp)
	return d
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	http.TimeFormat,
	time.RFC1123Z,
	time.RFC1123,
}

// ParseTimestamp accepts the formats the backend emits: RFC 3339, ISO 8601
// without zone (taken as UTC) and RFC 1123. The result is always UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
