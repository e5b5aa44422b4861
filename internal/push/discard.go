package push

import (
	"context"

	"github.com/ConsistentClient/ccsswebsockets/internal/utils"
)

// Discard is the gateway used when no push provider is configured. Offline
// recipients simply miss out; everything else behaves normally.
type Discard struct {
	Logger *utils.Logger
}

func (d Discard) Deliver(ctx context.Context, deviceToken, title, body string, data map[string]string) {
	if d.Logger != nil {
		d.Logger.Debug(ctx, "push gateway disabled, dropping notification for token %s", deviceToken)
	}
}
