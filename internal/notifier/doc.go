// Package notifier delivers short operator alerts about dispatch outcomes.
//
// Alerts go through a bounded queue served by a small worker pool. Sends are
// rate limited, retried with jittered backoff, and deduplicated by key so an
// event that fails every cycle produces one alert per dedup window instead of
// one per cycle. Dedup state can optionally be persisted in the event store so
// it survives restarts.
//
// Delivery is delegated to a Transport; the Telegram sender is the only one
// wired today.
package notifier
