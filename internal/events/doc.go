// Package events provides the in-process event bus for the pipeline.
//
// The orchestrator publishes an Event on every transformation state change
// of interest. The bus fans each event out on two independent paths: live
// in-process subscriptions (consumed by the SSE broadcast handler) and a
// bounded delivery queue consumed by the webhook dispatcher. A failure or
// slowdown on one path never affects the other.
//
// The primary components are:
// - Event: One immutable pipeline notification
// - Bus: Fan-out to subscriptions plus the webhook delivery queue
// - Dispatcher: Signed webhook delivery with bounded retry
package events
