package models

import "time"

// MediaKind is the type of media attached to a risk or post
type MediaKind string

const (
	MediaPhoto MediaKind = "photo"
	MediaVideo MediaKind = "video"
	MediaVoice MediaKind = "voice"
)

// Media is a reference to media already uploaded to Telegram
type Media struct {
	Kind   MediaKind `json:"media_type"`
	FileID string    `json:"file_id"`
}

// Outcome is the result of the random draw made when a risk is created
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomePosted    Outcome = "posted"
	OutcomeNotPosted Outcome = "not_posted"
)

// Risk represents one media wager made by a user
type Risk struct {
	ID              string  `json:"risk_id"`
	UserID          int64   `json:"user_id"`
	Username        string  `json:"username,omitempty"`
	GroupID         int64   `json:"group_id,string"`
	Media                   // media_type, file_id
	Outcome         Outcome `json:"outcome"`
	PostedMessageID *int    `json:"posted_message_id"`
	Purged          bool    `json:"purged"`
	Timestamp       int64   `json:"timestamp"`
}

// CreatedAt returns the creation time of the risk
func (r Risk) CreatedAt() time.Time {
	return time.Unix(r.Timestamp, 0)
}

// IsPublished reports whether the risk has a live message in its group
func (r Risk) IsPublished() bool {
	return r.PostedMessageID != nil
}

// MarkPurged voids the risk. The published message reference is cleared
// so a purged risk never points at a message.
func (r *Risk) MarkPurged() {
	r.Purged = true
	r.PostedMessageID = nil
}

// Condition is an admin-defined requirement gating purge approval in a group
type Condition struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Group is a chat the bot has seen traffic in
type Group struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}
