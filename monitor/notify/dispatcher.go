package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vigilhq/vigil/monitor/event"
)

// Dispatcher delivers an eligible event to a subscriber across their enabled
// channels and records every attempt in the delivery log.
type Dispatcher struct {
	inApp      Channel
	email      Channel
	deliveries *DeliveryStore
	log        *zap.SugaredLogger
}

// NewDispatcher creates a dispatcher. Either channel may be nil; a nil
// channel disables that medium entirely.
func NewDispatcher(inApp, email Channel, deliveries *DeliveryStore, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		inApp:      inApp,
		email:      email,
		deliveries: deliveries,
		log:        log,
	}
}

// Dispatch delivers one event per the subscriber's decision. Instant
// eligibles go out immediately on each enabled channel; digest eligibles are
// recorded as pending digest rows for the external assembler. Returns the
// number of deliveries attempted.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *event.Event, pref *Preference, decision Decision) (int, error) {
	if !decision.Notify {
		return 0, nil
	}

	if decision.Bucket == FrequencyDigest {
		if err := d.enqueueDigest(ev, pref); err != nil {
			return 0, err
		}
		return 1, nil
	}

	msg := buildMessage(ev, pref)
	attempts := 0

	if pref.InAppEnabled && d.inApp != nil {
		attempts++
		d.deliver(ctx, d.inApp, msg, ev.ID)
	}
	if pref.EmailEnabled && d.email != nil {
		attempts++
		d.deliver(ctx, d.email, msg, ev.ID)
	}

	return attempts, nil
}

// deliver writes the pending row, attempts the send, and records the
// outcome. Send failures are logged, not propagated: the delivery log row
// carries the failure for later retry.
func (d *Dispatcher) deliver(ctx context.Context, ch Channel, msg Message, eventID string) {
	rec := &Delivery{
		ID:           uuid.New().String(),
		SubscriberID: msg.SubscriberID,
		EventID:      eventID,
		Channel:      ch.Name(),
		Recipient:    msg.Recipient,
		Status:       DeliveryPending,
	}
	if err := d.deliveries.Create(rec); err != nil {
		d.log.Errorw("Failed to write delivery record",
			"subscriber_id", msg.SubscriberID,
			"channel", ch.Name(),
			"error", err)
		return
	}

	receipt, err := ch.Send(ctx, msg)
	if err != nil {
		d.log.Warnw("Delivery failed",
			"delivery_id", rec.ID,
			"channel", ch.Name(),
			"error", err)
		if markErr := d.deliveries.MarkFailed(rec.ID, err.Error()); markErr != nil {
			d.log.Errorw("Failed to mark delivery failed",
				"delivery_id", rec.ID,
				"error", markErr)
		}
		return
	}

	if err := d.deliveries.MarkSent(rec.ID, receipt.ProviderMessageID); err != nil {
		d.log.Errorw("Failed to mark delivery sent",
			"delivery_id", rec.ID,
			"error", err)
	}
}

func (d *Dispatcher) enqueueDigest(ev *event.Event, pref *Preference) error {
	rec := &Delivery{
		ID:           uuid.New().String(),
		SubscriberID: pref.SubscriberID,
		EventID:      ev.ID,
		Channel:      ChannelDigest,
		Recipient:    pref.Email,
		Status:       DeliveryPending,
	}
	if err := d.deliveries.Create(rec); err != nil {
		return err
	}

	d.log.Debugw("Event queued for digest",
		"subscriber_id", pref.SubscriberID,
		"event_id", ev.ID,
		"digest_hour", pref.DigestHour)
	return nil
}

func buildMessage(ev *event.Event, pref *Preference) Message {
	body := ev.Summary
	if ev.Insight != "" {
		body += "\n\n" + ev.Insight
	}
	if ev.RecommendedAction != "" {
		body += "\n\nRecommended action: " + ev.RecommendedAction
	}
	if ev.URL != "" {
		body += "\n\n" + ev.URL
	}

	return Message{
		SubscriberID: pref.SubscriberID,
		Recipient:    pref.Email,
		Subject:      fmt.Sprintf("[%s] %s", ev.Category, ev.Title),
		Body:         body,
		Event:        ev,
	}
}
