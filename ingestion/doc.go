// Package ingestion turns incoming marketplace posts into stored listings.
//
// The Pipeline type manages the ingestion workflow for messages, including:
//   - Deduplicating on (source, message ID)
//   - Classifying the text and extracting listing attributes
//   - Embedding and persisting listings
//   - Evaluating priced listings against similar ones asynchronously
//
// Messages arrive from Connectors. Each watched source has a bounded queue
// drained into a shared worker pool, and the set of watched sources follows
// a registry.Registry that is reconciled periodically. Errors during
// processing are logged and reported to the notifier but never stop the
// pipeline; only an authorization failure of a connector is fatal.
package ingestion
