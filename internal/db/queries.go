package db

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ConsistentClient/ccsswebsockets/internal/models"
)

// messagePageSize caps every message listing operation.
const messagePageSize = 20

// FindUser authenticates a registration attempt: exact match on username and
// the long-lived opaque token. Returns nil when no such user exists.
func (db *Database) FindUser(ctx context.Context, username, token string) (*models.User, error) {
	var user models.User
	var deviceTokens *string
	err := db.QueryRow(ctx,
		`SELECT id, username, token, organization_id, device_token
		 FROM clients WHERE username = $1 AND token = $2`,
		username, token,
	).Scan(&user.ID, &user.Username, &user.Token, &user.OrganizationID, &deviceTokens)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if deviceTokens != nil {
		user.DeviceTokens = *deviceTokens
	}
	return &user, nil
}

// FindUserID resolves a username within an organization. Returns (0, false)
// when the username is unknown.
func (db *Database) FindUserID(ctx context.Context, username string, organizationID int64) (int64, bool, error) {
	var id int64
	err := db.QueryRow(ctx,
		`SELECT id FROM clients WHERE username = $1 AND organization_id = $2 LIMIT 1`,
		username, organizationID,
	).Scan(&id)
	if err == pgx.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (db *Database) IsRoomOwner(ctx context.Context, roomID, userID, organizationID int64) (bool, error) {
	var id int64
	err := db.QueryRow(ctx,
		`SELECT id FROM rooms WHERE id = $1 AND owner_id = $2 AND organization_id = $3`,
		roomID, userID, organizationID,
	).Scan(&id)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListUserRooms returns the caller's active rooms joined with the caller's
// participant state.
func (db *Database) ListUserRooms(ctx context.Context, userID int64) ([]models.RoomSummary, error) {
	rows, err := db.Query(ctx,
		`SELECT r.id, COALESCE(r.name, ''), COALESCE(r.description, ''), COALESCE(ru.last_message_seen, 0), r.owner_id, ru.silent_notifications
		 FROM rooms r
		 JOIN room_participants ru ON ru.room_id = r.id
		 WHERE ru.user_id = $1
		 AND ru.deleted_at IS NULL`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := []models.RoomSummary{}
	for rows.Next() {
		var room models.RoomSummary
		if err := rows.Scan(&room.ID, &room.Name, &room.Description, &room.LastMessageSeen, &room.OwnerID, &room.SilentNotifications); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// ListUsersInRoom returns active members of a room. Presence is annotated by
// the caller, not here.
func (db *Database) ListUsersInRoom(ctx context.Context, roomID int64) ([]models.RoomUser, error) {
	rows, err := db.Query(ctx,
		`SELECT u.id, u.username
		 FROM room_participants rp
		 JOIN clients u ON rp.user_id = u.id
		 WHERE rp.room_id = $1
		 AND rp.deleted_at IS NULL`,
		roomID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.RoomUser{}
	for rows.Next() {
		var user models.RoomUser
		if err := rows.Scan(&user.ID, &user.Username); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// ListRoomOwner returns the owning user of a room (zero or one rows).
func (db *Database) ListRoomOwner(ctx context.Context, roomID int64) ([]models.RoomUser, error) {
	rows, err := db.Query(ctx,
		`SELECT u.id, u.username
		 FROM rooms r
		 JOIN clients u ON r.owner_id = u.id
		 WHERE r.id = $1`,
		roomID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.RoomUser{}
	for rows.Next() {
		var user models.RoomUser
		if err := rows.Scan(&user.ID, &user.Username); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// ListActiveParticipantIDs returns the user ids of a room's active members.
// Fan-out calls this on every broadcast, so results are cached when a cache
// is attached; membership mutations invalidate the entry.
func (db *Database) ListActiveParticipantIDs(ctx context.Context, roomID int64) ([]int64, error) {
	if db.cache != nil {
		if ids, ok := db.cache.GetParticipantIDs(ctx, roomID); ok {
			return ids, nil
		}
	}

	rows, err := db.Query(ctx,
		`SELECT user_id
		 FROM room_participants
		 WHERE room_id = $1
		 AND deleted_at IS NULL`,
		roomID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if db.cache != nil {
		db.cache.SetParticipantIDs(ctx, roomID, ids)
	}
	return ids, nil
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// CreateOrUpdateRoom creates a room or, when a room with that name already
// exists in the organization, rebuilds it. Only the owner may update an
// existing room; a denial returns ok=false. The membership rebuild is
// destructive: all prior participant rows for the room are hard-deleted and
// re-inserted with a zero watermark.
func (db *Database) CreateOrUpdateRoom(ctx context.Context, ownerUserID int64, roomName string, memberIdentifiers []string, description string, organizationID int64) (int64, bool, error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback(ctx)

	var roomID int64
	err = tx.QueryRow(ctx,
		`SELECT id FROM rooms WHERE name = $1 AND organization_id = $2`,
		roomName, organizationID,
	).Scan(&roomID)

	switch {
	case err == nil:
		var owned int64
		err = tx.QueryRow(ctx,
			`SELECT id FROM rooms WHERE id = $1 AND owner_id = $2 AND organization_id = $3`,
			roomID, ownerUserID, organizationID,
		).Scan(&owned)
		if err == pgx.ErrNoRows {
			return 0, false, nil
		}
		if err != nil {
			return 0, false, err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE rooms SET description = $1, name = $2, updated_at = NOW() WHERE id = $3`,
			description, roomName, roomID,
		); err != nil {
			return 0, false, err
		}
		// Hard delete for the membership rebuild
		if _, err := tx.Exec(ctx,
			`DELETE FROM room_participants WHERE room_id = $1`,
			roomID,
		); err != nil {
			return 0, false, err
		}
	case err == pgx.ErrNoRows:
		if err := tx.QueryRow(ctx,
			`INSERT INTO rooms (name, organization_id, description, owner_id) VALUES ($1, $2, $3, $4) RETURNING id`,
			roomName, organizationID, description, ownerUserID,
		).Scan(&roomID); err != nil {
			return 0, false, err
		}
	default:
		return 0, false, err
	}

	callerPresent := false
	for _, ident := range memberIdentifiers {
		var uid int64
		if isAllDigits(ident) {
			uid = parseDigits(ident)
		} else {
			var found bool
			err := tx.QueryRow(ctx,
				`SELECT id FROM clients WHERE username = $1 AND organization_id = $2 LIMIT 1`,
				ident, organizationID,
			).Scan(&uid)
			if err == pgx.ErrNoRows {
				found = false
			} else if err != nil {
				return 0, false, err
			} else {
				found = true
			}
			if !found {
				continue
			}
		}
		if uid == ownerUserID {
			callerPresent = true
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO room_participants (room_id, user_id, last_message_seen, organization_id) VALUES ($1, $2, $3, $4)`,
			roomID, uid, 0, organizationID,
		); err != nil {
			return 0, false, err
		}
	}

	// The owner is always a member
	if !callerPresent {
		if _, err := tx.Exec(ctx,
			`INSERT INTO room_participants (room_id, user_id, last_message_seen, organization_id) VALUES ($1, $2, $3, $4)`,
			roomID, ownerUserID, 0, organizationID,
		); err != nil {
			return 0, false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, false, err
	}

	if db.cache != nil {
		db.cache.InvalidateParticipants(ctx, roomID)
	}
	return roomID, true, nil
}

func parseDigits(s string) int64 {
	var n int64
	for _, r := range s {
		n = n*10 + int64(r-'0')
	}
	return n
}

// InsertMessage persists a new chat message and returns its id.
func (db *Database) InsertMessage(ctx context.Context, roomID, userID, organizationID int64, message, messageInformation string) (int64, error) {
	var id int64
	err := db.QueryRow(ctx,
		`INSERT INTO room_messages (room_id, user_id, organization_id, message, message_information)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		roomID, userID, organizationID, message, messageInformation,
	).Scan(&id)
	return id, err
}

// EditMessage updates a message's text in place. Author identity is enforced
// here: the update matches the caller's user id or touches nothing.
func (db *Database) EditMessage(ctx context.Context, msgID, roomID, userID, organizationID int64, message, messageInformation string) (int64, error) {
	tag, err := db.Exec(ctx,
		`UPDATE room_messages SET message = $1, message_information = $2, updated_at = NOW()
		 WHERE id = $3 AND user_id = $4 AND room_id = $5 AND organization_id = $6`,
		message, messageInformation, msgID, userID, roomID, organizationID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteMessage tombstones a message. Author-only, like EditMessage.
func (db *Database) DeleteMessage(ctx context.Context, msgID, roomID, userID, organizationID int64) (bool, error) {
	tag, err := db.Exec(ctx,
		`UPDATE room_messages SET is_deleted = 1, updated_at = NOW()
		 WHERE room_id = $1 AND organization_id = $2 AND user_id = $3 AND id = $4`,
		roomID, organizationID, userID, msgID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (db *Database) scanMessages(rows pgx.Rows) ([]models.Message, error) {
	defer rows.Close()
	msgs := []models.Message{}
	for rows.Next() {
		var msg models.Message
		var info *string
		var createdAt, updatedAt time.Time
		if err := rows.Scan(&msg.ID, &msg.UserID, &msg.Username, &msg.RoomID, &msg.Message, &info, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if info != nil {
			msg.MessageInformation = *info
		}
		msg.CreatedAt = createdAt.Format(time.RFC3339)
		msg.UpdatedAt = updatedAt.Format(time.RFC3339)
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// LastMessages returns the most recent messages of a room, newest first.
func (db *Database) LastMessages(ctx context.Context, roomID, organizationID int64) ([]models.Message, error) {
	rows, err := db.Query(ctx,
		`SELECT m.id, m.user_id, u.username, m.room_id, m.message, m.message_information, m.created_at, m.updated_at
		 FROM room_messages m
		 JOIN clients u ON m.user_id = u.id
		 WHERE m.room_id = $1
		   AND m.organization_id = $2
		   AND m.is_deleted = 0
		 ORDER BY m.id DESC
		 LIMIT $3`,
		roomID, organizationID, messagePageSize,
	)
	if err != nil {
		return nil, err
	}
	return db.scanMessages(rows)
}

// MessagesAfter returns messages with id strictly greater than lastID,
// oldest first.
func (db *Database) MessagesAfter(ctx context.Context, roomID, organizationID, lastID int64) ([]models.Message, error) {
	rows, err := db.Query(ctx,
		`SELECT m.id, m.user_id, u.username, m.room_id, m.message, m.message_information, m.created_at, m.updated_at
		 FROM room_messages m
		 JOIN clients u ON m.user_id = u.id
		 WHERE m.room_id = $1
		   AND m.organization_id = $2
		   AND m.is_deleted = 0
		   AND m.id > $3
		 ORDER BY m.id ASC
		 LIMIT $4`,
		roomID, organizationID, lastID, messagePageSize,
	)
	if err != nil {
		return nil, err
	}
	return db.scanMessages(rows)
}

// MessagesBefore returns messages with id strictly less than lastID,
// newest first.
func (db *Database) MessagesBefore(ctx context.Context, roomID, organizationID, lastID int64) ([]models.Message, error) {
	rows, err := db.Query(ctx,
		`SELECT m.id, m.user_id, u.username, m.room_id, m.message, m.message_information, m.created_at, m.updated_at
		 FROM room_messages m
		 JOIN clients u ON m.user_id = u.id
		 WHERE m.room_id = $1
		   AND m.organization_id = $2
		   AND m.is_deleted = 0
		   AND m.id < $3
		 ORDER BY m.id DESC
		 LIMIT $4`,
		roomID, organizationID, lastID, messagePageSize,
	)
	if err != nil {
		return nil, err
	}
	return db.scanMessages(rows)
}

// UpdateLastSeen advances the caller's read watermark in a room.
func (db *Database) UpdateLastSeen(ctx context.Context, roomID, userID, msgID int64) (bool, error) {
	tag, err := db.Exec(ctx,
		`UPDATE room_participants
		 SET last_message_seen = $1
		 WHERE room_id = $2
		 AND user_id = $3`,
		msgID, roomID, userID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ClearLastSeen resets the caller's read watermark in a room to zero.
func (db *Database) ClearLastSeen(ctx context.Context, roomID, userID int64) error {
	_, err := db.Exec(ctx,
		`UPDATE room_participants
		 SET last_message_seen = 0
		 WHERE room_id = $1 AND user_id = $2
		 AND deleted_at IS NULL`,
		roomID, userID,
	)
	return err
}

// MarkUnreadOnBroadcast rewinds recipients' watermarks to just before a new
// message so the room shows as unread.
func (db *Database) MarkUnreadOnBroadcast(ctx context.Context, roomID int64, userIDs []int64, msgID int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := db.Exec(ctx,
		`UPDATE room_participants
		 SET last_message_seen = $1
		 WHERE room_id = $2
		 AND user_id = ANY($3)`,
		msgID-1, roomID, userIDs,
	)
	return err
}

// LeaveRoom soft-leaves: every matching participant row gets a deleted_at
// timestamp.
func (db *Database) LeaveRoom(ctx context.Context, roomID, userID int64) (bool, error) {
	tag, err := db.Exec(ctx,
		`UPDATE room_participants
		 SET deleted_at = NOW()
		 WHERE room_id = $1
		 AND user_id = $2`,
		roomID, userID,
	)
	if err != nil {
		return false, err
	}
	if db.cache != nil {
		db.cache.InvalidateParticipants(ctx, roomID)
	}
	return tag.RowsAffected() > 0, nil
}

// SetSilent flips push suppression for a (room, user) pair.
func (db *Database) SetSilent(ctx context.Context, roomID, userID int64, silent bool) (bool, error) {
	flag := 0
	if silent {
		flag = 1
	}
	tag, err := db.Exec(ctx,
		`UPDATE room_participants
		 SET silent_notifications = $1
		 WHERE room_id = $2
		 AND user_id = $3`,
		flag, roomID, userID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// LastNotificationTime returns when the user was last pushed to, or nil if
// never.
func (db *Database) LastNotificationTime(ctx context.Context, userID, organizationID int64) (*time.Time, error) {
	var created time.Time
	err := db.QueryRow(ctx,
		`SELECT created_at FROM client_notifications
		 WHERE user_id = $1 AND organization_id = $2
		 ORDER BY id DESC LIMIT 1`,
		userID, organizationID,
	).Scan(&created)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// ParticipantSilent reads the most recent active participant row's silence
// flag.
func (db *Database) ParticipantSilent(ctx context.Context, roomID, userID, organizationID int64) (bool, error) {
	var silent int
	err := db.QueryRow(ctx,
		`SELECT silent_notifications FROM room_participants
		 WHERE user_id = $1 AND organization_id = $2 AND room_id = $3 AND deleted_at IS NULL
		 ORDER BY id DESC LIMIT 1`,
		userID, organizationID, roomID,
	).Scan(&silent)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return silent == 1, nil
}

// DeviceTokens returns the user's push-provider device tokens. The column
// holds a serialized list of {"token": ...} objects; a malformed payload is
// treated as empty.
func (db *Database) DeviceTokens(ctx context.Context, userID, organizationID int64) ([]string, error) {
	if db.cache != nil {
		if tokens, ok := db.cache.GetDeviceTokens(ctx, userID, organizationID); ok {
			return tokens, nil
		}
	}

	var raw *string
	err := db.QueryRow(ctx,
		`SELECT device_token FROM clients WHERE id = $1 AND organization_id = $2`,
		userID, organizationID,
	).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	tokens := ParseDeviceTokens(userID, raw)

	if db.cache != nil {
		db.cache.SetDeviceTokens(ctx, userID, organizationID, tokens)
	}
	return tokens, nil
}

// ParseDeviceTokens decodes the serialized device_token column value.
func ParseDeviceTokens(userID int64, raw *string) []string {
	if raw == nil || *raw == "" {
		return nil
	}
	var entries []models.DeviceToken
	if err := json.Unmarshal([]byte(*raw), &entries); err != nil {
		log.Printf("invalid device_token JSON for user %d: %v", userID, err)
		return nil
	}
	tokens := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Token != "" {
			tokens = append(tokens, e.Token)
		}
	}
	return tokens
}

// RecordNotification writes the audit row that drives the push cooldown.
func (db *Database) RecordNotification(ctx context.Context, userID, organizationID int64, title string, msgType int) error {
	_, err := db.Exec(ctx,
		`INSERT INTO client_notifications (user_id, organization_id, message, msg_type) VALUES ($1, $2, $3, $4)`,
		userID, organizationID, title, msgType,
	)
	return err
}
