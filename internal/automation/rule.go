// Package automation matches appointment lifecycle events against configured
// rules and sends templated notifications through the email/SMS collaborators,
// honoring each client's per-category opt-in flags.
package automation

import "time"

// Trigger is the closed set of lifecycle events a rule can subscribe to.
type Trigger string

const (
	TriggerBookingConfirmation Trigger = "booking_confirmation"
	TriggerAppointmentReminder Trigger = "appointment_reminder"
	TriggerCancellation        Trigger = "cancellation"
	TriggerAfterPayment        Trigger = "after_payment"
	TriggerFollowUp            Trigger = "follow_up"
	TriggerCustom              Trigger = "custom"
)

// Valid reports whether t is a defined trigger.
func (t Trigger) Valid() bool {
	switch t {
	case TriggerBookingConfirmation, TriggerAppointmentReminder,
		TriggerCancellation, TriggerAfterPayment, TriggerFollowUp, TriggerCustom:
		return true
	}
	return false
}

// Channel selects the delivery medium.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Valid reports whether c is a defined channel.
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelSMS
}

// Rule is a configured notification. SentCount and LastRunAt are bookkeeping
// mutated by the dispatcher after each send, never by the booking flow.
type Rule struct {
	ID                int64      `json:"id"`
	Trigger           Trigger    `json:"trigger"`
	CustomTriggerName string     `json:"custom_trigger_name,omitempty"`
	Channel           Channel    `json:"channel"`
	Active            bool       `json:"active"`
	Subject           string     `json:"subject,omitempty"`
	Template          string     `json:"template"`
	SentCount         int64      `json:"sent_count"`
	LastRunAt         *time.Time `json:"last_run_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
