// Package notifier delivers raid reminders, post-raid reports and pings.
//
// Notifications are queued and sent by a small worker pool behind a token
// bucket, with jittered exponential retry. Identical messages to the same
// chat within the dedup window are suppressed, so a retried trigger or a
// repeated ping does not spam the group.
//
// Outcomes are counted in metrics and published on the event bus as
// notifier.sent / notifier.failed. A short in-memory history backs the admin
// HTTP API.
package notifier
