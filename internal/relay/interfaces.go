package relay

import (
	"context"
	"time"

	"github.com/ConsistentClient/ccsswebsockets/internal/models"
)

// Store is the persistence contract the relay depends on. It is implemented
// by *db.Database; tests substitute an in-memory fake.
type Store interface {
	FindUser(ctx context.Context, username, token string) (*models.User, error)
	FindUserID(ctx context.Context, username string, organizationID int64) (int64, bool, error)
	ListUserRooms(ctx context.Context, userID int64) ([]models.RoomSummary, error)
	ListUsersInRoom(ctx context.Context, roomID int64) ([]models.RoomUser, error)
	ListRoomOwner(ctx context.Context, roomID int64) ([]models.RoomUser, error)
	ListActiveParticipantIDs(ctx context.Context, roomID int64) ([]int64, error)
	CreateOrUpdateRoom(ctx context.Context, ownerUserID int64, roomName string, memberIdentifiers []string, description string, organizationID int64) (int64, bool, error)
	InsertMessage(ctx context.Context, roomID, userID, organizationID int64, message, messageInformation string) (int64, error)
	EditMessage(ctx context.Context, msgID, roomID, userID, organizationID int64, message, messageInformation string) (int64, error)
	DeleteMessage(ctx context.Context, msgID, roomID, userID, organizationID int64) (bool, error)
	LastMessages(ctx context.Context, roomID, organizationID int64) ([]models.Message, error)
	MessagesAfter(ctx context.Context, roomID, organizationID, lastID int64) ([]models.Message, error)
	MessagesBefore(ctx context.Context, roomID, organizationID, lastID int64) ([]models.Message, error)
	UpdateLastSeen(ctx context.Context, roomID, userID, msgID int64) (bool, error)
	ClearLastSeen(ctx context.Context, roomID, userID int64) error
	LeaveRoom(ctx context.Context, roomID, userID int64) (bool, error)
	SetSilent(ctx context.Context, roomID, userID int64, silent bool) (bool, error)
	LastNotificationTime(ctx context.Context, userID, organizationID int64) (*time.Time, error)
	ParticipantSilent(ctx context.Context, roomID, userID, organizationID int64) (bool, error)
	DeviceTokens(ctx context.Context, userID, organizationID int64) ([]string, error)
	RecordNotification(ctx context.Context, userID, organizationID int64, title string, msgType int) error
}

// Sender is the push-provider capability. Delivery is fire-and-forget:
// implementations log failures and never return them.
type Sender interface {
	Deliver(ctx context.Context, deviceToken, title, body string, data map[string]string)
}
