package escalation

import (
	"errors"
	"fmt"
)

var ErrNotificationDelivery = errors.New("notification delivery failed")

// NotificationDeliveryError is returned once every retry has been spent.
type NotificationDeliveryError struct {
	EscalationID string
	Attempts     int
	Err          error
}

func (e *NotificationDeliveryError) Error() string {
	return fmt.Sprintf("notify escalation %s: gave up after %d attempts: %v", e.EscalationID, e.Attempts, e.Err)
}

func (e *NotificationDeliveryError) Unwrap() error { return e.Err }

func (e *NotificationDeliveryError) Is(target error) bool {
	return target == ErrNotificationDelivery
}
