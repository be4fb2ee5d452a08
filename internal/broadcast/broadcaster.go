// Package broadcast implements topic fan-out over the connection registry.
package broadcast

import (
	"log"

	"cvlive/internal/metrics"
	"cvlive/internal/registry"
)

// Broadcaster delivers events to every connection currently joined to a
// channel. Delivery is best-effort and at-most-once: connections that join
// after a publish never see it, and a failure on one connection never blocks
// the rest. Clients recover current truth by rejoining, which replays a full
// snapshot.
type Broadcaster struct {
	registry *registry.Registry
}

// NewBroadcaster creates a broadcaster over the given registry.
func NewBroadcaster(reg *registry.Registry) *Broadcaster {
	return &Broadcaster{registry: reg}
}

// Publish sends event with payload to all current members of channel.
// Send queues the message on each connection's writer, so this never blocks
// on client I/O. Failed deliveries are logged and dropped, not retried.
func (b *Broadcaster) Publish(channel, event string, payload any) {
	for _, conn := range b.registry.ChannelConnections(channel) {
		if err := conn.Send(event, payload); err != nil {
			metrics.BroadcastFailures.Inc()
			log.Printf("broadcast: delivery of %s to %s failed: %v", event, conn.ID(), err)
			continue
		}
		metrics.BroadcastsDelivered.Inc()
	}
}
