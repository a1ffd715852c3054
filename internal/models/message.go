package models

import "time"

// Message represents an indexed message. The raw content lives in the
// content-addressed store; the index only records correlation state.
// Bug is 0 while the message is still unassigned, which must be
// resolved within the same import transaction.
type Message struct {
	ID   string // unquoted Message-ID, unique across the index
	Bug  int64
	Spam bool
	Date time.Time
}
