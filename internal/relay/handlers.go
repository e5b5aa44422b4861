package relay

import (
	"context"
)

// storageDrop logs a storage fault and drops the frame without a reply.
// Clients retry or reconnect.
func (s *Session) storageDrop(ctx context.Context, op string, err error) {
	s.hub.logger.Error(ctx, "storage error in %s, frame dropped: %v", op, err)
}

// handleRegister is the only path for an unregistered session. Anything but
// a Register event is refused; a valid (username, token) pair promotes the
// session and hands back a fresh session token.
func (s *Session) handleRegister(ctx context.Context, env *envelope) {
	if env.Event != EventRegister {
		s.hub.logger.Debug(ctx, "event %q before registration", env.Event)
		s.reply(ctx, eventReply{Event: replyRegisterError, Data: "You must send a register event first"})
		return
	}

	user, err := s.hub.store.FindUser(ctx, env.Username, env.Token)
	if err != nil {
		s.storageDrop(ctx, "FindUser", err)
		return
	}
	if user == nil {
		s.reply(ctx, eventReply{Event: replyRegisterError, Data: "invalid user"})
		return
	}

	token, err := newSessionToken()
	if err != nil {
		s.hub.logger.Error(ctx, "session token generation failed: %v", err)
		return
	}

	s.register(user.ID, user.Username, user.OrganizationID, token)
	s.hub.logger.Info(ctx, "user %d (%s) registered", user.ID, user.Username)
	s.reply(ctx, eventReply{Event: replyRegisterSuccess, Data: token})
}

func (s *Session) handleGetRooms(ctx context.Context, env *envelope, data *eventData) {
	uid, _, _, _, _ := s.identity()
	rooms, err := s.hub.store.ListUserRooms(ctx, uid)
	if err != nil {
		s.storageDrop(ctx, "ListUserRooms", err)
		return
	}
	s.reply(ctx, eventReply{Event: replyGetRooms, Data: rooms})
}

func (s *Session) handleUpdateOrMakeRoom(ctx context.Context, env *envelope, data *eventData) {
	uid, _, org, _, _ := s.identity()

	// A zero organization id would scope the room to no tenant at all;
	// refuse instead.
	if org == 0 {
		s.reply(ctx, eventReply{Event: replyUpdateOrMakeRoom, Data: roomReply{
			Room: nil, Status: "failed", Msg: "Failed to create a room",
		}})
		return
	}

	roomID, ok, err := s.hub.store.CreateOrUpdateRoom(ctx, uid, data.Name, data.Users, data.Description, org)
	if err != nil {
		s.storageDrop(ctx, "CreateOrUpdateRoom", err)
		return
	}
	if !ok {
		s.reply(ctx, eventReply{Event: replyUpdateOrMakeRoom, Data: roomReply{
			Room: nil, Status: "failed", Msg: "Failed to create a room",
		}})
		return
	}
	s.reply(ctx, eventReply{Event: replyUpdateOrMakeRoom, Data: roomReply{
		Room: roomID, Name: data.Name, Status: "success",
	}})
}

func (s *Session) handleGetUsersInRoom(ctx context.Context, env *envelope, data *eventData) {
	owners, err := s.hub.store.ListRoomOwner(ctx, data.Room)
	if err != nil {
		s.storageDrop(ctx, "ListRoomOwner", err)
		return
	}
	users, err := s.hub.store.ListUsersInRoom(ctx, data.Room)
	if err != nil {
		s.storageDrop(ctx, "ListUsersInRoom", err)
		return
	}
	for i := range owners {
		owners[i].Online = s.hub.registry.IsUserOnline(owners[i].ID)
	}
	for i := range users {
		users[i].Online = s.hub.registry.IsUserOnline(users[i].ID)
	}
	s.reply(ctx, roomUsersReply{Event: replyRoomUsers, Room: data.Room, Users: users, Owners: owners})
}

func (s *Session) handleLeaveRoom(ctx context.Context, env *envelope, data *eventData) {
	uid, _, _, _, _ := s.identity()
	ok, err := s.hub.store.LeaveRoom(ctx, data.Room, uid)
	if err != nil {
		s.storageDrop(ctx, "LeaveRoom", err)
		return
	}
	if ok {
		s.reply(ctx, bareReply{Event: replyLeaveRoomSuccess})
	} else {
		s.reply(ctx, bareReply{Event: replyLeaveRoomFailed})
	}
}

func (s *Session) handleSilentRoom(ctx context.Context, env *envelope, data *eventData) {
	uid, _, _, _, _ := s.identity()
	ok, err := s.hub.store.SetSilent(ctx, data.Room, uid, true)
	if err != nil {
		s.storageDrop(ctx, "SetSilent", err)
		return
	}
	if ok {
		s.reply(ctx, bareReply{Event: replySilentRoomSuccess})
	} else {
		s.reply(ctx, bareReply{Event: replySilentRoomFailed})
	}
}

func (s *Session) handleUnSilentRoom(ctx context.Context, env *envelope, data *eventData) {
	uid, _, _, _, _ := s.identity()
	ok, err := s.hub.store.SetSilent(ctx, data.Room, uid, false)
	if err != nil {
		s.storageDrop(ctx, "SetSilent", err)
		return
	}
	if ok {
		s.reply(ctx, bareReply{Event: replyUnSilentRoomSuccess})
	} else {
		s.reply(ctx, bareReply{Event: replyUnSilentRoomFailed})
	}
}

func (s *Session) handleClearLastSeen(ctx context.Context, env *envelope, data *eventData) {
	uid, _, _, _, _ := s.identity()
	if err := s.hub.store.ClearLastSeen(ctx, data.Room, uid); err != nil {
		s.storageDrop(ctx, "ClearLastSeen", err)
		return
	}
	s.reply(ctx, eventReply{Event: replyClearedLastSeen, Data: ""})
}

func (s *Session) handleLastSeenMsg(ctx context.Context, env *envelope, data *eventData) {
	uid, _, _, _, _ := s.identity()
	ok, err := s.hub.store.UpdateLastSeen(ctx, data.Room, uid, data.MsgID)
	if err != nil {
		s.storageDrop(ctx, "UpdateLastSeen", err)
		return
	}
	s.reply(ctx, statusReply{Event: replyUpdateLastSeen, Status: ok})
}

func (s *Session) handleGetLastMessages(ctx context.Context, env *envelope, data *eventData) {
	_, _, org, _, _ := s.identity()
	msgs, err := s.hub.store.LastMessages(ctx, data.Room, org)
	if err != nil {
		s.storageDrop(ctx, "LastMessages", err)
		return
	}
	s.reply(ctx, eventReply{Event: replyLastMessages, Data: msgs})
}

func (s *Session) handleGetMessages(ctx context.Context, env *envelope, data *eventData) {
	_, _, org, _, _ := s.identity()
	msgs, err := s.hub.store.MessagesAfter(ctx, data.Room, org, data.LastID)
	if err != nil {
		s.storageDrop(ctx, "MessagesAfter", err)
		return
	}
	s.reply(ctx, eventReply{Event: replyMessages, Data: msgs})
}

func (s *Session) handleGetPrevMessages(ctx context.Context, env *envelope, data *eventData) {
	_, _, org, _, _ := s.identity()
	msgs, err := s.hub.store.MessagesBefore(ctx, data.Room, org, data.LastID)
	if err != nil {
		s.storageDrop(ctx, "MessagesBefore", err)
		return
	}
	s.reply(ctx, eventReply{Event: replyPrevMessages, Data: msgs})
}

func (s *Session) handleDeleteMessage(ctx context.Context, env *envelope, data *eventData) {
	uid, _, org, _, _ := s.identity()
	ok, err := s.hub.store.DeleteMessage(ctx, data.MsgID, data.Room, uid, org)
	if err != nil {
		s.storageDrop(ctx, "DeleteMessage", err)
		return
	}
	s.reply(ctx, successReply{Event: replyDeleteMessages, Success: ok})
}

func (s *Session) handleEditMessage(ctx context.Context, env *envelope, data *eventData) {
	uid, username, org, _, _ := s.identity()
	affected, err := s.hub.store.EditMessage(ctx, data.MsgID, data.Room, uid, org, data.Message, data.MsgInfo)
	if err != nil {
		s.storageDrop(ctx, "EditMessage", err)
		return
	}
	if affected == 0 {
		s.reply(ctx, eventReply{Event: replyEditMessage, Data: "failed"})
		return
	}
	s.reply(ctx, eventReply{Event: replyEditMessage, Data: affected})

	frame := mustMarshal(eventReply{Event: pushChatMessageUpdated, Data: chatPayload{
		Username: username,
		MsgID:    data.MsgID,
		Room:     data.Room,
		Message:  data.Message,
		MsgInfo:  data.MsgInfo,
	}})
	if _, err := s.hub.fanOut(ctx, uid, data.Room, org, frame); err != nil {
		s.hub.logger.Error(ctx, "edit fan-out failed: %v", err)
	}
}

func (s *Session) handleBroadcast(ctx context.Context, env *envelope, data *eventData) {
	uid, username, org, _, _ := s.identity()

	recipients, member, err := s.hub.recipients(ctx, data.Room, uid)
	if err != nil {
		s.storageDrop(ctx, "ListActiveParticipantIDs", err)
		return
	}
	if !member {
		s.reply(ctx, broadcastReply{Event: replyBroadcastResponse, Status: false})
		return
	}

	msgID, err := s.hub.store.InsertMessage(ctx, data.Room, uid, org, data.Message, data.MsgInfo)
	if err != nil {
		s.storageDrop(ctx, "InsertMessage", err)
		return
	}

	frame := mustMarshal(eventReply{Event: pushChatMessage, Data: chatPayload{
		Username: username,
		MsgID:    msgID,
		Room:     data.Room,
		Message:  data.Message,
		MsgInfo:  data.MsgInfo,
	}})
	s.hub.deliver(ctx, recipients, org, data.Room, frame)

	s.reply(ctx, broadcastReply{Event: replyBroadcastResponse, Status: true, MsgID: &msgID})
}

func (s *Session) handlePing(ctx context.Context, env *envelope, data *eventData) {
	uid, _, _, _, _ := s.identity()
	s.reply(ctx, pingReply{Event: replyPing, Status: true, UserID: uid})
}

// handleGetUserStatus reports the caller's own status; the requested user id
// in the payload is ignored, as the source does.
func (s *Session) handleGetUserStatus(ctx context.Context, env *envelope, data *eventData) {
	uid, _, _, _, _ := s.identity()
	s.reply(ctx, userStatusReply{Event: replyUserStatus, UserID: uid, Status: s.hub.registry.IsUserOnline(uid)})
}

// handleNotification sends a general push-style notification to another user
// in the caller's organization. Callers in organization 0 may target any
// organization.
func (s *Session) handleNotification(ctx context.Context, env *envelope, data *eventData) {
	_, _, callerOrg, _, _ := s.identity()

	if env.OrganizationID == nil {
		s.reply(ctx, errorReply{Error: "invalid organization id", Data: "organization id is missing"})
		return
	}
	targetOrg := *env.OrganizationID
	if callerOrg > 0 && callerOrg != targetOrg {
		s.reply(ctx, errorReply{Error: "invalid organization id", Data: "invalid organization id"})
		return
	}

	targetID, found, err := s.hub.store.FindUserID(ctx, env.Username, targetOrg)
	if err != nil {
		s.storageDrop(ctx, "FindUserID", err)
		return
	}
	if !found {
		s.hub.logger.Debug(ctx, "notification target %q not found", env.Username)
		s.reply(ctx, eventReply{Event: replyNotificationFailed, Data: "username is not found"})
		return
	}

	frame := mustMarshal(eventReply{Event: pushNotification, Data: notificationPayload{
		Title:   env.Title,
		Body:    env.Body,
		Message: data.Notification,
	}})
	s.hub.deliverGeneral(ctx, targetID, targetOrg, env.Title, env.Body, frame)

	s.reply(ctx, bareReply{Event: replyNotificationOK})
}
