package email

import (
	"context"
	"time"
)

// DefaultSubject is used for messages without a Subject header
const DefaultSubject = "No Subject"

// MailClient is the mailbox API consumed by ingestion. Every call is made
// with the caller's current access token so a refreshed token takes effect
// on the next call.
type MailClient interface {
	ListMessageIDs(ctx context.Context, accessToken, query string) ([]string, error)
	GetMessage(ctx context.Context, accessToken, id string) (*Message, error)
}

// Message is a fetched mailbox message with its body decoded to text
type Message struct {
	ID       string    `json:"id"`
	ThreadID string    `json:"thread_id"`
	From     string    `json:"from"`
	Subject  string    `json:"subject"`
	Date     time.Time `json:"date"`
	Snippet  string    `json:"snippet"`
	Body     string    `json:"body"`
}
