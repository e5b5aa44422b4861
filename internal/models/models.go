package models

import (
	"time"
)

// User represents an externally provisioned client account. The relay never
// creates users; it only authenticates against them.
type User struct {
	ID             int64  `json:"id"`
	Username       string `json:"username"`
	Token          string `json:"-"` // Opaque long-lived credential, never echoed
	OrganizationID int64  `json:"organization_id"`
	DeviceTokens   string `json:"-"` // Serialized JSON list of {"token": "..."} objects
}

// DeviceToken is one entry of the serialized device_token column.
type DeviceToken struct {
	Token string `json:"token"`
}

// Room represents a named conversation scoped to one organization.
type Room struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	OrganizationID int64     `json:"organization_id"`
	OwnerID        int64     `json:"owner_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RoomSummary is a room joined with the caller's participant row, as listed
// by GetRooms.
type RoomSummary struct {
	ID                  int64  `json:"id"`
	Name                string `json:"name"`
	Description         string `json:"description"`
	LastMessageSeen     int64  `json:"last_message_seen"`
	OwnerID             int64  `json:"owner_id"`
	SilentNotifications int    `json:"silent_notifications"`
}

// RoomUser is a member (or owner) of a room annotated with live presence.
type RoomUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

// Message is a chat message as returned by the listing operations.
// Timestamps are rendered to clients as ISO-8601 strings.
type Message struct {
	ID                 int64  `json:"id"`
	UserID             int64  `json:"user_id"`
	Username           string `json:"username"`
	RoomID             int64  `json:"room_id"`
	Message            string `json:"message"`
	MessageInformation string `json:"message_information"`
	CreatedAt          string `json:"created_at"`
	UpdatedAt          string `json:"updated_at"`
}

// Notification message types recorded in the client_notifications audit table.
const (
	NotificationTypeChat    = 1
	NotificationTypeGeneral = 2
)

// ClientNotification is the audit row written for every out-of-band push.
// Its created_at drives the per-user push cooldown.
type ClientNotification struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	OrganizationID int64     `json:"organization_id"`
	MsgType        int       `json:"msg_type"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"created_at"`
}
