// Package notify mirrors operator-facing notices (registration requests,
// open-ticket reminders) to an out-of-band channel. Notifications are a
// courtesy: failures are for the caller to log and swallow, never to
// propagate.
package notify

import "context"

// Notifier delivers a short operator notice.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}
