// Package notify delivers MFA codes and security alerts through an external
// collaborator. Delivery is fire-and-forget: failures are logged and never
// fail the auth flow itself.
package notify

import (
	"context"
	"log"
)

// Notifier sends a one-time code or alert to the user's enrolled channel.
type Notifier interface {
	SendCode(ctx context.Context, phone, code string) error
	SendAlert(ctx context.Context, email, subject, body string) error
}

// Noop discards all notifications. Used in tests and when no provider is configured.
type Noop struct{}

func (Noop) SendCode(ctx context.Context, phone, code string) error { return nil }

func (Noop) SendAlert(ctx context.Context, email, subject, body string) error { return nil }

// Async dispatches through n in a goroutine and logs failures. The code value
// itself is never logged.
func Async(n Notifier, phone, code string) {
	if n == nil {
		return
	}
	go func() {
		if err := n.SendCode(context.Background(), phone, code); err != nil {
			log.Printf("notify: code delivery failed: %v", err)
		}
	}()
}
