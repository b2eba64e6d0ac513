// Package bus implements the event bus: topic pub/sub with segment-based
// pattern matching, per-subscription priority queues, configurable
// ordering and concurrency, retry with backoff, exactly-once
// deduplication, dead-letter routing, and backpressure.
//
// Ordering and concurrency are configured per subscription (via
// SubscribeOption), since they describe how a subscription's queue is
// drained. Delivery mode, priority, timeout, retry budget, and
// persistence are configured per event (via event.DeliveryOptions), since
// they describe how one publish should be handled.
package bus
