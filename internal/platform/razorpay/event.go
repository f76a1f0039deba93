package razorpay

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

type EventType string

const (
	EventPaymentCaptured           EventType = "payment.captured"
	EventPaymentFailed             EventType = "payment.failed"
	EventOrderPaid                 EventType = "order.paid"
	EventSubscriptionAuthenticated EventType = "subscription.authenticated"
	EventSubscriptionActivated     EventType = "subscription.activated"
	EventSubscriptionCharged       EventType = "subscription.charged"
	EventSubscriptionPending       EventType = "subscription.pending"
	EventSubscriptionPaused        EventType = "subscription.paused"
	EventSubscriptionResumed       EventType = "subscription.resumed"
	EventSubscriptionHalted        EventType = "subscription.halted"
	EventSubscriptionCancelled     EventType = "subscription.cancelled"
	EventSubscriptionCompleted     EventType = "subscription.completed"
)

var ErrMalformedPayload = errors.New("razorpay: malformed webhook payload")

// Header carries the envelope fields shared by every event.
type Header struct {
	Type      EventType
	AccountID string
	// CreatedAt is the gateway time of the event, nil when absent.
	CreatedAt *time.Time
}

func (h Header) EventHeader() Header { return h }

// Event is one of PaymentEvent, OrderEvent, SubscriptionEvent or
// UnknownEvent.
type Event interface {
	EventHeader() Header
}

type PaymentEvent struct {
	Header
	Payment Payment
}

type OrderEvent struct {
	Header
	Order Order
	// Payment is present when the gateway includes the paying payment.
	Payment *Payment
}

type SubscriptionEvent struct {
	Header
	Subscription Subscription
	// Payment accompanies activated and charged events.
	Payment *Payment
}

// UnknownEvent is a well-formed delivery of a type this service ignores.
type UnknownEvent struct {
	Header
}

type entityWrapper struct {
	Entity json.RawMessage `json:"entity"`
}

type envelope struct {
	Entity    string `json:"entity"`
	AccountID string `json:"account_id"`
	Event     string `json:"event"`
	CreatedAt *int64 `json:"created_at"`
	Payload   struct {
		Payment      *entityWrapper `json:"payment"`
		Order        *entityWrapper `json:"order"`
		Subscription *entityWrapper `json:"subscription"`
	} `json:"payload"`
}

var validate = validator.New()

// ParseEvent decodes a verified webhook body into its typed variant. Errors
// wrap ErrMalformedPayload.
func ParseEvent(body []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrMalformedPayload)
	}
	h := Header{Type: EventType(env.Event), AccountID: env.AccountID, CreatedAt: unixTime(env.CreatedAt)}

	switch h.Type {
	case EventPaymentCaptured, EventPaymentFailed:
		ev := &PaymentEvent{Header: h}
		if err := decodeEntity(env.Payload.Payment, "payment", &ev.Payment); err != nil {
			return nil, err
		}
		return ev, nil
	case EventOrderPaid:
		ev := &OrderEvent{Header: h}
		if err := decodeEntity(env.Payload.Order, "order", &ev.Order); err != nil {
			return nil, err
		}
		if env.Payload.Payment != nil {
			ev.Payment = &Payment{}
			if err := decodeEntity(env.Payload.Payment, "payment", ev.Payment); err != nil {
				return nil, err
			}
		}
		return ev, nil
	case EventSubscriptionAuthenticated, EventSubscriptionActivated, EventSubscriptionCharged,
		EventSubscriptionPending, EventSubscriptionPaused, EventSubscriptionResumed,
		EventSubscriptionHalted, EventSubscriptionCancelled, EventSubscriptionCompleted:
		ev := &SubscriptionEvent{Header: h}
		if err := decodeEntity(env.Payload.Subscription, "subscription", &ev.Subscription); err != nil {
			return nil, err
		}
		if env.Payload.Payment != nil {
			ev.Payment = &Payment{}
			if err := decodeEntity(env.Payload.Payment, "payment", ev.Payment); err != nil {
				return nil, err
			}
		}
		return ev, nil
	default:
		return &UnknownEvent{Header: h}, nil
	}
}

func decodeEntity(w *entityWrapper, name string, dst interface{}) error {
	if w == nil || len(w.Entity) == 0 || string(w.Entity) == "null" {
		return fmt.Errorf("%w: missing %s entity", ErrMalformedPayload, name)
	}
	if err := json.Unmarshal(w.Entity, dst); err != nil {
		return fmt.Errorf("%w: decode %s entity: %v", ErrMalformedPayload, name, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: invalid %s entity: %v", ErrMalformedPayload, name, err)
	}
	return nil
}
