package services

import (
	"log/slog"

	pubnub "github.com/pubnub/go"
)

// Notifier publishes sale lifecycle events for out-of-process consumers
// (email/SMS dispatch, activity logging). Delivery is best effort; the sale
// ledger never depends on it.
type Notifier interface {
	PublishSaleEvent(event string, payload map[string]any)
}

// PubNubNotifier publishes sale events to a PubNub channel.
type PubNubNotifier struct {
	pn      *pubnub.PubNub
	channel string
}

func NewPubNubNotifier(pn *pubnub.PubNub, channel string) *PubNubNotifier {
	return &PubNubNotifier{pn: pn, channel: channel}
}

func (n *PubNubNotifier) PublishSaleEvent(event string, payload map[string]any) {
	message := map[string]any{"type": event}
	for k, v := range payload {
		message[k] = v
	}

	_, _, err := n.pn.Publish().
		Channel(n.channel).
		Message(message).
		Execute()
	if err != nil {
		slog.Error("failed to publish sale event", "event", event, "error", err)
	}
}

// NopNotifier discards events. Used in tests and when PubNub is not
// configured.
type NopNotifier struct{}

func (NopNotifier) PublishSaleEvent(event string, payload map[string]any) {}
