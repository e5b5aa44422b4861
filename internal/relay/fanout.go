package relay

import (
	"context"
	"strconv"
	"time"

	"github.com/ConsistentClient/ccsswebsockets/internal/models"
	"github.com/ConsistentClient/ccsswebsockets/internal/push"
)

// pushCooldown is the minimum interval between consecutive pushes to the
// same user within an organization.
const pushCooldown = 5 * time.Minute

const (
	chatPushTitle = "New Message"
	chatPushBody  = "A new chat message is sent to you"
)

// recipients computes a room's fan-out set: the active participants minus
// the sender. member reports whether the sender was among them.
func (h *Hub) recipients(ctx context.Context, roomID, senderID int64) ([]int64, bool, error) {
	ids, err := h.store.ListActiveParticipantIDs(ctx, roomID)
	if err != nil {
		return nil, false, err
	}
	member := false
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == senderID {
			member = true
			continue
		}
		out = append(out, id)
	}
	return out, member, nil
}

// fanOut is the full spec operation: compute recipients, abort when the
// sender is not a member, otherwise deliver. Callers that already replied on
// their own (edit) ignore the member flag.
func (h *Hub) fanOut(ctx context.Context, senderID, roomID, organizationID int64, frame []byte) (bool, error) {
	recipients, member, err := h.recipients(ctx, roomID, senderID)
	if err != nil {
		return false, err
	}
	if !member {
		return false, nil
	}
	h.deliver(ctx, recipients, organizationID, roomID, frame)
	return true, nil
}

// deliver routes one frame to each recipient: online users get it on one
// live connection, offline users go through the push gateway subject to the
// cooldown policy. Live sends never block; a slow peer's frame is dropped
// without affecting the others.
func (h *Hub) deliver(ctx context.Context, recipients []int64, organizationID, roomID int64, frame []byte) {
	for _, uid := range recipients {
		if conn, ok := h.registry.FirstConnOf(uid); ok {
			if !conn.Enqueue(frame) {
				h.logger.Debug(ctx, "frame to user %d dropped: send buffer full", uid)
			}
			continue
		}

		allowed, err := h.canPush(ctx, uid, organizationID, roomID)
		if err != nil {
			h.logger.Error(ctx, "push policy check failed for user %d: %v", uid, err)
			continue
		}
		if !allowed {
			continue
		}
		h.pushChat(ctx, uid, organizationID, roomID)
	}
	messagesBroadcast.Add(ctx, 1)
}

// canPush applies the offline-notification policy: a silenced room always
// wins, otherwise the user must not have been pushed to within the cooldown
// window.
func (h *Hub) canPush(ctx context.Context, userID, organizationID, roomID int64) (bool, error) {
	silent, err := h.store.ParticipantSilent(ctx, roomID, userID, organizationID)
	if err != nil {
		return false, err
	}
	if silent {
		return false, nil
	}
	last, err := h.store.LastNotificationTime(ctx, userID, organizationID)
	if err != nil {
		return false, err
	}
	if last == nil {
		return true, nil
	}
	return h.now().Sub(*last) > pushCooldown, nil
}

// pushChat notifies one offline recipient of a new chat message via every
// device token they have, then records the audit row driving the cooldown.
func (h *Hub) pushChat(ctx context.Context, userID, organizationID, roomID int64) {
	tokens, err := h.store.DeviceTokens(ctx, userID, organizationID)
	if err != nil {
		h.logger.Error(ctx, "device token lookup failed for user %d: %v", userID, err)
		return
	}
	if len(tokens) == 0 {
		return
	}
	data := map[string]string{
		"type": push.PayloadTypeChat,
		"data": strconv.FormatInt(roomID, 10),
	}
	for _, tok := range tokens {
		h.sender.Deliver(ctx, tok, chatPushTitle, chatPushBody, data)
	}
	if err := h.store.RecordNotification(ctx, userID, organizationID, chatPushTitle, models.NotificationTypeChat); err != nil {
		h.logger.Error(ctx, "recording notification for user %d failed: %v", userID, err)
	}
}

// deliverGeneral routes a general notification to one user: live connection
// when online, otherwise a push carrying the whole notification frame. The
// cooldown does not apply to general notifications.
func (h *Hub) deliverGeneral(ctx context.Context, userID, organizationID int64, title, body string, frame []byte) {
	if conn, ok := h.registry.FirstConnOf(userID); ok {
		if !conn.Enqueue(frame) {
			h.logger.Debug(ctx, "notification to user %d dropped: send buffer full", userID)
		}
		return
	}

	tokens, err := h.store.DeviceTokens(ctx, userID, organizationID)
	if err != nil {
		h.logger.Error(ctx, "device token lookup failed for user %d: %v", userID, err)
		return
	}
	if len(tokens) == 0 {
		return
	}
	data := map[string]string{
		"type": push.PayloadTypeNotification,
		"data": string(frame),
	}
	for _, tok := range tokens {
		h.sender.Deliver(ctx, tok, title, body, data)
	}
	if err := h.store.RecordNotification(ctx, userID, organizationID, title, models.NotificationTypeGeneral); err != nil {
		h.logger.Error(ctx, "recording notification for user %d failed: %v", userID, err)
	}
}
