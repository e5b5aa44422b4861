package relay

import (
	"context"
	"sync"
	"time"

	"github.com/ConsistentClient/ccsswebsockets/internal/models"
)

// fakeStore is an in-memory Store for relay tests.
type fakeStore struct {
	mu sync.Mutex

	users map[string]*models.User // keyed by username

	nextRoomID int64
	rooms      map[int64]*fakeRoom

	participants []*fakeParticipant

	nextMsgID int64
	messages  []*fakeMessage

	notifications []fakeNotification

	deviceTokens map[int64][]string

	now func() time.Time

	// fault injection
	findUserErr  error
	listRoomsErr error
}

type fakeRoom struct {
	id          int64
	name        string
	description string
	orgID       int64
	ownerID     int64
}

type fakeParticipant struct {
	roomID   int64
	userID   int64
	orgID    int64
	lastSeen int64
	silent   int
	deleted  bool
}

type fakeMessage struct {
	id        int64
	roomID    int64
	userID    int64
	orgID     int64
	message   string
	msgInfo   string
	isDeleted bool
	createdAt time.Time
	updatedAt time.Time
}

type fakeNotification struct {
	userID    int64
	orgID     int64
	title     string
	msgType   int
	createdAt time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:        make(map[string]*models.User),
		rooms:        make(map[int64]*fakeRoom),
		deviceTokens: make(map[int64][]string),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (f *fakeStore) addUser(id int64, username, token string, orgID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[username] = &models.User{ID: id, Username: username, Token: token, OrganizationID: orgID}
}

func (f *fakeStore) addRoom(name string, orgID, ownerID int64, memberIDs ...int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextRoomID++
	id := f.nextRoomID
	f.rooms[id] = &fakeRoom{id: id, name: name, orgID: orgID, ownerID: ownerID}
	for _, uid := range memberIDs {
		f.participants = append(f.participants, &fakeParticipant{roomID: id, userID: uid, orgID: orgID})
	}
	return id
}

func (f *fakeStore) addMessage(roomID, userID, orgID int64, message, msgInfo string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMsgID++
	f.messages = append(f.messages, &fakeMessage{
		id: f.nextMsgID, roomID: roomID, userID: userID, orgID: orgID,
		message: message, msgInfo: msgInfo,
		createdAt: f.now(), updatedAt: f.now(),
	})
	return f.nextMsgID
}

func (f *fakeStore) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakeStore) notificationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.notifications)
}

func (f *fakeStore) activeParticipant(roomID, userID int64) *fakeParticipant {
	for i := len(f.participants) - 1; i >= 0; i-- {
		p := f.participants[i]
		if p.roomID == roomID && p.userID == userID && !p.deleted {
			return p
		}
	}
	return nil
}

func (f *fakeStore) FindUser(ctx context.Context, username, token string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findUserErr != nil {
		return nil, f.findUserErr
	}
	u, ok := f.users[username]
	if !ok || u.Token != token {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (f *fakeStore) FindUserID(ctx context.Context, username string, organizationID int64) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[username]
	if !ok || u.OrganizationID != organizationID {
		return 0, false, nil
	}
	return u.ID, true, nil
}

func (f *fakeStore) ListUserRooms(ctx context.Context, userID int64) ([]models.RoomSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listRoomsErr != nil {
		return nil, f.listRoomsErr
	}
	out := []models.RoomSummary{}
	for _, p := range f.participants {
		if p.userID != userID || p.deleted {
			continue
		}
		room := f.rooms[p.roomID]
		out = append(out, models.RoomSummary{
			ID: room.id, Name: room.name, Description: room.description,
			LastMessageSeen: p.lastSeen, OwnerID: room.ownerID, SilentNotifications: p.silent,
		})
	}
	return out, nil
}

func (f *fakeStore) ListUsersInRoom(ctx context.Context, roomID int64) ([]models.RoomUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.RoomUser{}
	for _, p := range f.participants {
		if p.roomID != roomID || p.deleted {
			continue
		}
		for _, u := range f.users {
			if u.ID == p.userID {
				out = append(out, models.RoomUser{ID: u.ID, Username: u.Username})
			}
		}
	}
	return out, nil
}

func (f *fakeStore) ListRoomOwner(ctx context.Context, roomID int64) ([]models.RoomUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[roomID]
	if !ok {
		return []models.RoomUser{}, nil
	}
	for _, u := range f.users {
		if u.ID == room.ownerID {
			return []models.RoomUser{{ID: u.ID, Username: u.Username}}, nil
		}
	}
	return []models.RoomUser{}, nil
}

func (f *fakeStore) ListActiveParticipantIDs(ctx context.Context, roomID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []int64{}
	for _, p := range f.participants {
		if p.roomID == roomID && !p.deleted {
			out = append(out, p.userID)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateOrUpdateRoom(ctx context.Context, ownerUserID int64, roomName string, memberIdentifiers []string, description string, organizationID int64) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var room *fakeRoom
	for _, r := range f.rooms {
		if r.name == roomName && r.orgID == organizationID {
			room = r
			break
		}
	}
	if room != nil {
		if room.ownerID != ownerUserID {
			return 0, false, nil
		}
		room.description = description
		kept := f.participants[:0]
		for _, p := range f.participants {
			if p.roomID != room.id {
				kept = append(kept, p)
			}
		}
		f.participants = kept
	} else {
		f.nextRoomID++
		room = &fakeRoom{id: f.nextRoomID, name: roomName, description: description, orgID: organizationID, ownerID: ownerUserID}
		f.rooms[room.id] = room
	}

	callerPresent := false
	for _, ident := range memberIdentifiers {
		var uid int64
		if isAllDigits(ident) {
			uid = parseDigits(ident)
		} else {
			u, ok := f.users[ident]
			if !ok || u.OrganizationID != organizationID {
				continue
			}
			uid = u.ID
		}
		if uid == ownerUserID {
			callerPresent = true
		}
		f.participants = append(f.participants, &fakeParticipant{roomID: room.id, userID: uid, orgID: organizationID})
	}
	if !callerPresent {
		f.participants = append(f.participants, &fakeParticipant{roomID: room.id, userID: ownerUserID, orgID: organizationID})
	}
	return room.id, true, nil
}

func (f *fakeStore) InsertMessage(ctx context.Context, roomID, userID, organizationID int64, message, messageInformation string) (int64, error) {
	return f.addMessage(roomID, userID, organizationID, message, messageInformation), nil
}

func (f *fakeStore) EditMessage(ctx context.Context, msgID, roomID, userID, organizationID int64, message, messageInformation string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.id == msgID && m.roomID == roomID && m.userID == userID && m.orgID == organizationID {
			m.message = message
			m.msgInfo = messageInformation
			m.updatedAt = f.now()
			return 1, nil
		}
	}
	return 0, nil
}

func (f *fakeStore) DeleteMessage(ctx context.Context, msgID, roomID, userID, organizationID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.id == msgID && m.roomID == roomID && m.userID == userID && m.orgID == organizationID {
			m.isDeleted = true
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) listMessages(roomID, organizationID int64, keep func(*fakeMessage) bool, desc bool) []models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	selected := []*fakeMessage{}
	for _, m := range f.messages {
		if m.roomID == roomID && m.orgID == organizationID && !m.isDeleted && keep(m) {
			selected = append(selected, m)
		}
	}
	if desc {
		for i, j := 0, len(selected)-1; i < j; i, j = i+1, j-1 {
			selected[i], selected[j] = selected[j], selected[i]
		}
	}
	if len(selected) > 20 {
		selected = selected[:20]
	}
	out := []models.Message{}
	for _, m := range selected {
		var username string
		for _, u := range f.users {
			if u.ID == m.userID {
				username = u.Username
			}
		}
		out = append(out, models.Message{
			ID: m.id, UserID: m.userID, Username: username, RoomID: m.roomID,
			Message: m.message, MessageInformation: m.msgInfo,
			CreatedAt: m.createdAt.Format(time.RFC3339),
			UpdatedAt: m.updatedAt.Format(time.RFC3339),
		})
	}
	return out
}

func (f *fakeStore) LastMessages(ctx context.Context, roomID, organizationID int64) ([]models.Message, error) {
	return f.listMessages(roomID, organizationID, func(*fakeMessage) bool { return true }, true), nil
}

func (f *fakeStore) MessagesAfter(ctx context.Context, roomID, organizationID, lastID int64) ([]models.Message, error) {
	return f.listMessages(roomID, organizationID, func(m *fakeMessage) bool { return m.id > lastID }, false), nil
}

func (f *fakeStore) MessagesBefore(ctx context.Context, roomID, organizationID, lastID int64) ([]models.Message, error) {
	return f.listMessages(roomID, organizationID, func(m *fakeMessage) bool { return m.id < lastID }, true), nil
}

func (f *fakeStore) UpdateLastSeen(ctx context.Context, roomID, userID, msgID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	updated := false
	for _, p := range f.participants {
		if p.roomID == roomID && p.userID == userID {
			p.lastSeen = msgID
			updated = true
		}
	}
	return updated, nil
}

func (f *fakeStore) ClearLastSeen(ctx context.Context, roomID, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.participants {
		if p.roomID == roomID && p.userID == userID && !p.deleted {
			p.lastSeen = 0
		}
	}
	return nil
}

func (f *fakeStore) LeaveRoom(ctx context.Context, roomID, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	left := false
	for _, p := range f.participants {
		if p.roomID == roomID && p.userID == userID {
			p.deleted = true
			left = true
		}
	}
	return left, nil
}

func (f *fakeStore) SetSilent(ctx context.Context, roomID, userID int64, silent bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	flag := 0
	if silent {
		flag = 1
	}
	updated := false
	for _, p := range f.participants {
		if p.roomID == roomID && p.userID == userID {
			p.silent = flag
			updated = true
		}
	}
	return updated, nil
}

func (f *fakeStore) LastNotificationTime(ctx context.Context, userID, organizationID int64) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.notifications) - 1; i >= 0; i-- {
		n := f.notifications[i]
		if n.userID == userID && n.orgID == organizationID {
			at := n.createdAt
			return &at, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ParticipantSilent(ctx context.Context, roomID, userID, organizationID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.activeParticipant(roomID, userID)
	return p != nil && p.silent == 1, nil
}

func (f *fakeStore) DeviceTokens(ctx context.Context, userID, organizationID int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deviceTokens[userID], nil
}

func (f *fakeStore) RecordNotification(ctx context.Context, userID, organizationID int64, title string, msgType int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, fakeNotification{
		userID: userID, orgID: organizationID, title: title, msgType: msgType, createdAt: f.now(),
	})
	return nil
}

// fakeSender records every push instead of delivering it.
type fakeSender struct {
	mu        sync.Mutex
	delivered []fakePush
}

type fakePush struct {
	token string
	title string
	body  string
	data  map[string]string
}

func (f *fakeSender) Deliver(ctx context.Context, deviceToken, title, body string, data map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, fakePush{token: deviceToken, title: title, body: body, data: data})
}

func (f *fakeSender) pushes() []fakePush {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fakePush, len(f.delivered))
	copy(out, f.delivered)
	return out
}
