// Package report holds the civic report domain model and its persistence
// adapter over the path-addressable store.
package report

import (
	"regexp"
	"time"
)

// Status is the lifecycle state of a report. Draft states are owned by the
// intake flow; the review desk moves reports past Verified/Pending.
type Status string

const (
	// StatusAwaitingName waits for the reporter's name.
	StatusAwaitingName Status = "Draft_Waiting_Name"
	// StatusAwaitingLocation waits for the issue location.
	StatusAwaitingLocation Status = "Draft_Waiting_Location"
	// StatusVerified marks a report that cleared the confidence threshold.
	StatusVerified Status = "Verified"
	// StatusPendingReview marks a completed report below the threshold.
	StatusPendingReview Status = "Pending"
	StatusAccepted      Status = "Accepted"
	StatusRejected      Status = "Rejected"
	StatusResolved      Status = "Resolved"
	// StatusExpired is set by the sweep on drafts abandoned mid-conversation.
	StatusExpired Status = "Expired"
)

// Draft reports whether the status is an in-conversation draft state.
func (s Status) Draft() bool {
	return s == StatusAwaitingName || s == StatusAwaitingLocation
}

// PendingWindow is how long a draft stays active after creation.
const PendingWindow = 2 * time.Hour

// Location is where the reported issue is.
type Location struct {
	Lat     float64 `json:"lat,omitempty"`
	Lng     float64 `json:"lng,omitempty"`
	Address string  `json:"address"`
}

// Report is a citizen report. Field names on the wire follow the store
// schema shared with the dashboard.
type Report struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"userPhone"`
	UserName    string    `json:"userName,omitempty"`
	IssueType   string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Priority    string    `json:"priority,omitempty"`
	Department  string    `json:"department,omitempty"`
	MediaURL    string    `json:"imageUrl,omitempty"`
	MediaKind   string    `json:"mediaType,omitempty"`
	Status      Status    `json:"status"`
	Confidence  int       `json:"aiConfidence"`
	Analysis    string    `json:"aiAnalysis,omitempty"`
	Source      string    `json:"source,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	Location    *Location `json:"location,omitempty"`
}

// Active reports whether r still blocks a new draft for its sender at the
// given time: a draft status younger than the pending window.
func (r Report) Active(now time.Time, window time.Duration) bool {
	return r.Status.Draft() && now.Sub(r.CreatedAt) < window
}

// UserProfile is a chat reporter's profile, keyed by channel address. Fields
// fill in incrementally as reports complete.
type UserProfile struct {
	Name           string `json:"name,omitempty"`
	Phone          string `json:"phone,omitempty"`
	DefaultAddress string `json:"defaultAddress,omitempty"`
	Email          string `json:"email,omitempty"`
}

// RegistryUser is an account-registration profile maintained outside the bot
// flow; broadcasts also match against these.
type RegistryUser struct {
	Name    string `json:"name,omitempty"`
	Mobile  string `json:"mobile,omitempty"`
	Address string `json:"address,omitempty"`
	Email   string `json:"email,omitempty"`
}

// BroadcastRecord is one append-only broadcast history entry.
type BroadcastRecord struct {
	Area       string    `json:"area"`
	Type       string    `json:"type"`
	Message    string    `json:"message"`
	Department string    `json:"department,omitempty"`
	Sender     string    `json:"sender"`
	Reach      int       `json:"reach"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
}

// Citizen tracks contribution points for the gamification ladder.
type Citizen struct {
	Points       int       `json:"points"`
	ReportsCount int       `json:"reportsCount"`
	Level        int       `json:"level"`
	JoinedAt     time.Time `json:"joinedAt"`
}

var unsafeKeyChars = regexp.MustCompile(`[/.#$\[\]]`)

// SanitizeKey makes a value safe to embed in a store path segment.
func SanitizeKey(key string) string {
	if key == "" {
		return "General"
	}
	return unsafeKeyChars.ReplaceAllString(key, "_")
}
