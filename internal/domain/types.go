package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"latitude" bson:"latitude"`
	Lon float64 `json:"longitude" bson:"longitude"`
}

// Rating is one user's rating of a post, embedded in the post document.
// A user has at most one entry per post; re-rating replaces the value.
type Rating struct {
	UserID primitive.ObjectID `json:"user" bson:"user"`
	Value  float64            `json:"rating" bson:"rating"`
}

// Post is a community-authored report, optionally serving as the discussion
// thread for an external incident.
type Post struct {
	ID        primitive.ObjectID   `json:"_id,omitempty" bson:"_id,omitempty"`
	Title     string               `json:"title" bson:"title"`
	Body      string               `json:"body,omitempty" bson:"body,omitempty"`
	Photo     string               `json:"photo,omitempty" bson:"photo,omitempty"`
	Location  Geo                  `json:"location" bson:"location"`
	AuthorID  primitive.ObjectID   `json:"user" bson:"user"`
	CreatedAt time.Time            `json:"date" bson:"date"`
	Sensitive bool                 `json:"sensitive" bson:"sensitive"`
	Anonymous bool                 `json:"anonymous" bson:"anonymous"`
	Hidden    bool                 `json:"isHidden" bson:"isHidden"`

	// Score is derived by the aggregator, never set directly by clients.
	Score    float64              `json:"post_score" bson:"post_score"`
	Ratings  []Rating             `json:"ratings" bson:"ratings"`
	Comments []primitive.ObjectID `json:"comments" bson:"comments"`
}

// Comment belongs to exactly one post; deleting the post deletes its comments.
type Comment struct {
	ID       primitive.ObjectID `json:"_id,omitempty" bson:"_id,omitempty"`
	PostID   primitive.ObjectID `json:"post" bson:"post"`
	AuthorID primitive.ObjectID `json:"user" bson:"user"`
	Text     string             `json:"text" bson:"text"`
	Score    float64            `json:"score" bson:"score"`
}

// User carries only the fields the engine reads; account data lives elsewhere.
type User struct {
	ID                   primitive.ObjectID   `json:"_id,omitempty" bson:"_id,omitempty"`
	Location             *Geo                 `json:"location,omitempty" bson:"location,omitempty"`
	NotificationRadius   float64              `json:"notificationRadius,omitempty" bson:"notificationRadius,omitempty"`
	NotificationsEnabled bool                 `json:"notificationsEnabled" bson:"notificationsEnabled"`
	BlockedUsers         []primitive.ObjectID `json:"blocked_users,omitempty" bson:"blocked_users,omitempty"`
}

// DefaultNotificationRadius is applied when a user has no radius set.
const DefaultNotificationRadius = 1.0 // miles

// Radius returns the user's notification radius in miles, defaulted.
func (u User) Radius() float64 {
	if u.NotificationRadius > 0 {
		return u.NotificationRadius
	}
	return DefaultNotificationRadius
}

// Notification records that a report appeared near a user's saved location.
// Created by the dispatcher only; read/unread is the only user-mutable field.
type Notification struct {
	ID        primitive.ObjectID `json:"_id,omitempty" bson:"_id,omitempty"`
	UserID    primitive.ObjectID `json:"userId" bson:"userId"`
	PostID    primitive.ObjectID `json:"postId" bson:"postId"`
	PostTitle string             `json:"postTitle" bson:"postTitle"`
	Distance  float64            `json:"distance" bson:"distance"` // miles, rounded to 2 decimals
	Location  Geo                `json:"location" bson:"location"`
	Read      bool               `json:"read" bson:"read"`
	CreatedAt time.Time          `json:"createdAt" bson:"createdAt"`
}

// Flag is a moderation report against a post or user.
type Flag struct {
	ID         primitive.ObjectID `json:"_id,omitempty" bson:"_id,omitempty"`
	Types      []string           `json:"type" bson:"type"`
	Text       string             `json:"text" bson:"text"`
	EntityID   primitive.ObjectID `json:"reported_entity" bson:"reported_entity"`
	ReporterID primitive.ObjectID `json:"reporter" bson:"reporter"`
}

// ExternalIncident is a third-party shooting record. Ephemeral: parsed from
// the feed, used to locate or derive a discussion post, never stored.
type ExternalIncident struct {
	Key          string
	Date         string
	Time         string
	Borough      string
	LocationDesc string
	Geo          Geo
}
