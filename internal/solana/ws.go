package solana

import "context"

// LogStream is the live alternative to signature polling: a subscription to
// program log mentions that yields one notification per confirmed transaction.
type LogStream interface {
	// Subscribe starts the log subscription for transactions mentioning the
	// program. The channel is closed when the stream shuts down.
	Subscribe(ctx context.Context, program string) (<-chan LogNotification, error)

	// Close tears down the connection.
	Close() error
}

// LogNotification is one logsSubscribe message.
type LogNotification struct {
	Signature string
	Slot      int64
	Logs      []string
	Err       interface{}
}
