// Package notify delivers operational events to an operator channel.
//
// A Notifier never blocks its caller: events are rendered to Telegram-HTML
// text and put on a bounded queue, and a background loop hands them to a
// Transport at a limited rate. When the queue is full the event is dropped
// and counted. Errors are not sent one by one; they are buffered and
// flushed periodically as a single message or a grouped summary.
//
// A Notifier created without a transport is disabled and every method is a
// no-op, so callers never need to check whether notifications are
// configured.
//
//	n := notify.New(notify.NewTelegramTransport(token, chatID))
//	n.Start(ctx)
//	defer n.Stop()
//	n.Startup("crawler")
//	n.Count(notify.CounterMessagesSeen, 1)
package notify
