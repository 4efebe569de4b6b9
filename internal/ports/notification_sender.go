package ports

import "context"

type Template string

const (
	TemplateAgentNearby   Template = "agent_nearby"
	TemplateOrderAssigned Template = "order_assigned"
)

// Message addressed to a customer phone number.
type Message struct {
	Phone    string
	Template Template
	Data     map[string]string
}

// Contract for the outbound notification channel. Callers treat delivery as
// best effort and never propagate Send errors.
type NotificationSender interface {
	Send(ctx context.Context, msg Message) error
}
