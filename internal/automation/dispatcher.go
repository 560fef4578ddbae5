package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/glowdesk/salon-platform/internal/clock"
	"github.com/glowdesk/salon-platform/internal/directory"
	"github.com/glowdesk/salon-platform/internal/events"
	"github.com/glowdesk/salon-platform/internal/notify"
	"github.com/glowdesk/salon-platform/internal/observability/metrics"
	"github.com/glowdesk/salon-platform/pkg/logging"
)

var dispatchTracer = otel.Tracer("glowdesk.internal.automation")

// RuleStore is the rule persistence surface the dispatcher needs.
type RuleStore interface {
	ListActive(ctx context.Context, trigger Trigger, customName string) ([]Rule, error)
	MarkSent(ctx context.Context, id int64) error
}

// Directory resolves the entities referenced by a lifecycle event.
type Directory interface {
	GetClient(ctx context.Context, id int64) (*directory.Client, error)
	GetStaff(ctx context.Context, id int64) (*directory.Staff, error)
	GetService(ctx context.Context, id int64) (*directory.Service, error)
}

// Deduper claims an (event, rule) pair before sending.
type Deduper interface {
	Claim(ctx context.Context, eventID string, ruleID int64) (bool, error)
}

// BusinessIdentity carries the fields templates can reference.
type BusinessIdentity struct {
	Name  string
	Phone string
	Email string
}

// Dispatcher fires configured rules for lifecycle events. Delivery is best
// effort: one rule failing never aborts the remaining rules, and nothing
// here can fail the booking that produced the event.
type Dispatcher struct {
	rules    RuleStore
	dir      Directory
	email    notify.EmailSender
	sms      notify.SMSSender
	dedup    Deduper
	norm     *clock.Normalizer
	business BusinessIdentity
	logger   *logging.Logger
	metrics  *metrics.BookingMetrics
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(rules RuleStore, dir Directory, email notify.EmailSender, sms notify.SMSSender, dedup Deduper, norm *clock.Normalizer, business BusinessIdentity, logger *logging.Logger, m *metrics.BookingMetrics) *Dispatcher {
	if rules == nil {
		panic("automation: rule store required")
	}
	if dir == nil {
		panic("automation: directory required")
	}
	if norm == nil {
		panic("automation: clock normalizer required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		rules:    rules,
		dir:      dir,
		email:    email,
		sms:      sms,
		dedup:    dedup,
		norm:     norm,
		business: business,
		logger:   logger,
		metrics:  m,
	}
}

// Handle implements events.DeliveryHandler for the outbox poller.
func (d *Dispatcher) Handle(ctx context.Context, entry events.OutboxEntry) error {
	var evt events.LifecycleEvent
	if err := json.Unmarshal(entry.Payload, &evt); err != nil {
		// A malformed payload can never succeed; drop it rather than wedge
		// the outbox.
		d.logger.Error("automation: undeliverable outbox payload", "event_id", entry.ID, "error", err)
		return nil
	}
	if evt.EventID == uuid.Nil {
		evt.EventID = entry.ID
	}
	return d.Fire(ctx, evt)
}

// Fire evaluates every active rule subscribed to the event's trigger.
func (d *Dispatcher) Fire(ctx context.Context, evt events.LifecycleEvent) error {
	ctx, span := dispatchTracer.Start(ctx, "automation.fire")
	defer span.End()
	span.SetAttributes(
		attribute.String("glowdesk.trigger", evt.Trigger),
		attribute.Int64("glowdesk.appointment_id", evt.AppointmentID),
	)

	trigger := Trigger(evt.Trigger)
	customName := ""
	if !trigger.Valid() {
		// Unknown trigger names address custom rules.
		customName = evt.Trigger
		trigger = TriggerCustom
	}

	rules, err := d.rules.ListActive(ctx, trigger, customName)
	if err != nil {
		return fmt.Errorf("automation: load rules: %w", err)
	}
	if len(rules) == 0 {
		return nil
	}

	// All referenced entities must resolve before anything is sent; partial
	// notifications are worse than none.
	client, err := d.dir.GetClient(ctx, evt.ClientID)
	if err != nil {
		return fmt.Errorf("automation: load client: %w", err)
	}
	service, err := d.dir.GetService(ctx, evt.ServiceID)
	if err != nil {
		return fmt.Errorf("automation: load service: %w", err)
	}
	staff, err := d.dir.GetStaff(ctx, evt.StaffID)
	if err != nil {
		return fmt.Errorf("automation: load staff: %w", err)
	}
	if client == nil || service == nil || staff == nil {
		d.logger.Warn("automation: referenced entity missing, aborting dispatch",
			"event_id", evt.EventID, "trigger", evt.Trigger,
			"client_id", evt.ClientID, "service_id", evt.ServiceID, "staff_id", evt.StaffID)
		return nil
	}

	vars := d.templateVars(evt, client, service, staff)

	for _, rule := range rules {
		d.fireRule(ctx, evt, rule, client, vars)
	}
	return nil
}

func (d *Dispatcher) fireRule(ctx context.Context, evt events.LifecycleEvent, rule Rule, client *directory.Client, vars map[string]string) {
	trigger := string(rule.Trigger)
	channel := string(rule.Channel)

	if !d.eligible(rule, client) {
		d.metrics.ObserveDispatch(trigger, channel, "suppressed")
		d.logger.Debug("automation: rule suppressed by opt-in policy",
			"rule_id", rule.ID, "client_id", client.ID, "trigger", trigger, "channel", channel)
		return
	}

	if d.dedup != nil {
		claimed, err := d.dedup.Claim(ctx, evt.EventID.String(), rule.ID)
		if err != nil {
			d.metrics.ObserveDispatch(trigger, channel, "failed")
			d.logger.Error("automation: dedup claim failed", "rule_id", rule.ID, "error", err)
			return
		}
		if !claimed {
			d.metrics.ObserveDispatch(trigger, channel, "duplicate")
			return
		}
	}

	body := Substitute(rule.Template, vars)
	subject := Substitute(rule.Subject, vars)

	var sendErr error
	switch rule.Channel {
	case ChannelEmail:
		if d.email == nil {
			sendErr = fmt.Errorf("automation: email sender not configured")
			break
		}
		sendErr = d.email.Send(ctx, notify.EmailMessage{
			To:      client.Email,
			ToName:  client.FullName(),
			Subject: subject,
			Body:    body,
		})
	case ChannelSMS:
		if d.sms == nil {
			sendErr = fmt.Errorf("automation: sms sender not configured")
			break
		}
		sendErr = d.sms.SendSMS(ctx, client.Phone, body)
	default:
		sendErr = fmt.Errorf("automation: unknown channel %q", rule.Channel)
	}

	if sendErr != nil {
		// Best effort: log and keep going with the remaining rules.
		d.metrics.ObserveDispatch(trigger, channel, "failed")
		d.logger.Error("automation: send failed", "rule_id", rule.ID, "channel", channel, "error", sendErr)
		return
	}

	if err := d.rules.MarkSent(ctx, rule.ID); err != nil {
		d.logger.Error("automation: mark sent failed", "rule_id", rule.ID, "error", err)
	}
	d.metrics.ObserveDispatch(trigger, channel, "sent")
	d.logger.Info("automation: notification sent",
		"rule_id", rule.ID, "trigger", trigger, "channel", channel, "appointment_id", evt.AppointmentID)
}

// eligible applies the client's per-category opt-in flags. SMS booking
// confirmations are always suppressed: the booking flow sends a direct
// confirmation synchronously and a second text would duplicate it.
func (d *Dispatcher) eligible(rule Rule, client *directory.Client) bool {
	if rule.Channel == ChannelSMS && rule.Trigger == TriggerBookingConfirmation {
		return false
	}
	switch rule.Trigger {
	case TriggerAppointmentReminder:
		if rule.Channel == ChannelSMS {
			return client.SMSAppointmentReminders
		}
		return client.EmailAppointmentReminders
	case TriggerBookingConfirmation, TriggerCancellation, TriggerAfterPayment:
		if rule.Channel == ChannelSMS {
			return client.SMSAccountNotices
		}
		return client.EmailAccountNotices
	case TriggerFollowUp, TriggerCustom:
		if rule.Channel == ChannelSMS {
			return client.SMSPromotions
		}
		return client.EmailPromotions
	}
	return false
}

func (d *Dispatcher) templateVars(evt events.LifecycleEvent, client *directory.Client, service *directory.Service, staff *directory.Staff) map[string]string {
	return map[string]string{
		"client_first_name": client.FirstName,
		"client_last_name":  client.LastName,
		"client_name":       client.FullName(),
		"service_name":      service.Name,
		"staff_name":        staff.Name,
		"appointment_date":  d.norm.FormatDate(evt.StartAt),
		"appointment_time":  d.norm.FormatTime(evt.StartAt),
		"appointment_end":   d.norm.FormatTime(evt.EndAt),
		"business_name":     d.business.Name,
		"business_phone":    d.business.Phone,
		"business_email":    d.business.Email,
		"reason":            evt.Reason,
	}
}

// Substitute replaces {variable} placeholders in a template. Unknown
// placeholders are left untouched.
func Substitute(template string, vars map[string]string) string {
	if template == "" || len(vars) == 0 {
		return template
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
