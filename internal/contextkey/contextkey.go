package contextkey

type contextKey string

const (
	// ContextKeyConnectionID carries the uuid assigned to a socket connection.
	ContextKeyConnectionID contextKey = "connection_id"
	// ContextKeyUserID carries the registered user's id, if any.
	ContextKeyUserID contextKey = "user_id"
)
