package push

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ConsistentClient/ccsswebsockets/internal/utils"
)

// Data payload types understood by the mobile clients.
const (
	PayloadTypeChat         = "chat_msg"
	PayloadTypeNotification = "notification"
)

var pushesSent metric.Int64Counter

// FCMGateway delivers push notifications through Firebase Cloud Messaging.
// Delivery is fire-and-forget: failures are logged and never surfaced to the
// originating client.
type FCMGateway struct {
	client *messaging.Client
	logger *utils.Logger
}

// NewFCMGateway initializes the Firebase app from a service-account
// credentials file and returns a messaging gateway.
func NewFCMGateway(ctx context.Context, credentialsPath string, logger *utils.Logger) (*FCMGateway, error) {
	var err error
	meter := otel.Meter("push-gateway")
	pushesSent, err = meter.Int64Counter("push.delivered")
	if err != nil {
		return nil, fmt.Errorf("failed to create push.delivered instrument: %w", err)
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize FCM client: %w", err)
	}
	return &FCMGateway{client: client, logger: logger}, nil
}

// Deliver sends one push to one device token.
func (g *FCMGateway) Deliver(ctx context.Context, deviceToken, title, body string, data map[string]string) {
	msg := &messaging.Message{
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Token: deviceToken,
		Data:  data,
	}
	resp, err := g.client.Send(ctx, msg)
	if err != nil {
		pushesSent.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
		g.logger.Error(ctx, "FCM send failed for token %s: %v", deviceToken, err)
		return
	}
	pushesSent.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "ok")))
	g.logger.Debug(ctx, "FCM message sent: %s", resp)
}
