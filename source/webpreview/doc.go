// Package webpreview implements ingestion.Connector on top of the public
// web preview of channels (https://t.me/s/<name>).
//
// The preview needs no account and no session, so Connect never fails with
// ErrUnauthorized. Live updates are polled: Watch fetches the newest page at
// a fixed interval and delivers posts it has not seen. History walks older
// pages with the "before" cursor.
//
// Post bodies are converted from HTML to Markdown so links and line breaks
// survive classification. Pages served in a legacy charset are decoded
// before parsing. Every request goes through one rate limiter shared by all
// sources of the connector.
package webpreview
