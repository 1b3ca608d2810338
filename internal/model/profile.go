package model

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// Profile is the directory record shown next to a thread.
type Profile struct {
	UserID      string `json:"userId" bson:"user_id"`
	DisplayName string `json:"displayName" bson:"display_name"`
	AvatarURL   string `json:"avatarUrl" bson:"avatar"`
	Email       string `json:"email" bson:"email"`
}

// PlaceholderProfile stands in for a counterpart whose lookup failed or
// timed out. The chat list still renders; only the identity is unknown.
func PlaceholderProfile(userID string) Profile {
	return Profile{UserID: userID, DisplayName: "Unknown"}
}

// DecodeProfile maps a raw user document onto a Profile.
func DecodeProfile(id string, data bson.Raw) (Profile, error) {
	var p Profile
	if err := bson.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("decode profile %s: %w", id, err)
	}
	if p.UserID == "" {
		p.UserID = id
	}
	return p, nil
}

// AgeBucket is the coarse recency label derived from lastActivityAt.
type AgeBucket string

const (
	AgeJustNow AgeBucket = "just_now"
	AgeMinutes AgeBucket = "minutes"
	AgeHours   AgeBucket = "hours"
	AgeDays    AgeBucket = "days"
)

// BucketAge classifies the distance between now and then.
func BucketAge(now, then time.Time) AgeBucket {
	d := now.Sub(then)
	switch {
	case d < time.Minute:
		return AgeJustNow
	case d < time.Hour:
		return AgeMinutes
	case d < 24*time.Hour:
		return AgeHours
	default:
		return AgeDays
	}
}

// EnrichedThread is a chat-list row: the thread plus the resolved
// counterpart identity and UI-agnostic derived fields.
type EnrichedThread struct {
	Thread      ChatThread `json:"thread"`
	Counterpart Profile    `json:"counterpart"`
	IsSelf      bool       `json:"isSelf"`
	IsUnread    bool       `json:"isUnread"`
	Age         AgeBucket  `json:"age"`
}
