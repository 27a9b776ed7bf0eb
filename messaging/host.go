package messaging

import (
	"context"
	"fmt"
)

// Sink receives push events. *Service implements it.
type Sink interface {
	NewToken(token string)
	MessageReceived(msg RemoteMessage)
	DeletedMessages()
}

var _ Sink = (*Service)(nil)

// Source is a push transport.
type Source interface {
	// Register obtains the token the backend addresses this client with.
	Register(ctx context.Context) (string, error)
	// Listen delivers push events to sink until ctx is cancelled.
	Listen(ctx context.Context, sink Sink) error
}

// Run hosts svc on src: it creates the service, registers with the source,
// starts the service and listens until ctx is cancelled or the source fails.
// The service is destroyed before Run returns.
func Run(ctx context.Context, svc *Service, src Source) error {
	svc.Create()
	defer svc.Destroy()

	token, err := src.Register(ctx)
	if err != nil {
		return fmt.Errorf("registering push source: %w", err)
	}
	svc.NewToken(token)
	svc.Start()

	if err := src.Listen(ctx, svc); err != nil && ctx.Err() == nil {
		return fmt.Errorf("listening for push messages: %w", err)
	}
	return nil
}
