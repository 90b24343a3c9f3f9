package notify

import (
	"errors"
	"fmt"

	"github.com/yourusername/billflow/models"
)

var (
	ErrRecipientResolution = errors.New("recipient resolution failed")
	ErrTransportFailure    = errors.New("notification transport failed")
	ErrUnknownRecipient    = errors.New("unknown recipient")
	ErrInvalidPolicy       = errors.New("invalid notification policy")
	ErrNotificationMissing = errors.New("notification not found")
)

// RecipientResolutionError reports an event nobody can be notified about.
// The state change behind the event is unaffected.
type RecipientResolutionError struct {
	EventID   string
	EventType models.EventType
	Reason    string
	Err       error
}

func (e *RecipientResolutionError) Error() string {
	msg := fmt.Sprintf("resolve recipients for %s (%s): %s", e.EventType, e.EventID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RecipientResolutionError) Is(target error) bool {
	return target == ErrRecipientResolution
}

func (e *RecipientResolutionError) Unwrap() error {
	return e.Err
}

// TransportError wraps a channel failure for one recipient.
type TransportError struct {
	Channel   Channel
	Recipient string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s delivery to %s: %v", e.Channel, e.Recipient, e.Err)
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransportFailure
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
