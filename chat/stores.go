// Package chat implements the marketplace chat session controller: thread
// discovery across responses the user participates in, message history and
// live-push reconciliation, outbound sends, and the deal completion workflow.
// It talks to the communication and marketplace services through the
// collaborator interfaces below, so it can be embedded against HTTP clients
// (see the client package) or against fakes in tests.
package chat

import (
	"context"
	"encoding/json"
	"time"
)

// Tab selects which side of the thread list is shown: responses the user
// sent, or responses received on the user's own listings.
type Tab string

const (
	TabSent  Tab = "sent"
	TabOwned Tab = "owned"
)

// Response statuses as the stores report them.
const (
	StatusActive   = "ACTIVE"
	StatusArchived = "ARCHIVED"
)

// User is a marketplace profile as the directory reports it.
type User struct {
	ID      uint     `json:"id"`
	Email   string   `json:"email"`
	Name    string   `json:"name"`
	Surname string   `json:"surname"`
	Rate    *float64 `json:"rate"`
}

// DisplayName returns "Surname Name", falling back to the email.
func (u User) DisplayName() string {
	switch {
	case u.Surname != "" && u.Name != "":
		return u.Surname + " " + u.Name
	case u.Name != "":
		return u.Name
	default:
		return u.Email
	}
}

// Service is the read-only listing record used to resolve thread titles and
// ownership.
type Service struct {
	ID      uint   `json:"id"`
	OwnerID uint   `json:"owner_id"`
	Title   string `json:"title"`
}

// Response is one user's expression of interest in a listing.
type Response struct {
	ID        uint      `json:"id"`
	ServiceID uint      `json:"service_id"`
	SenderID  uint      `json:"sender_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary is one thread-list row: a response joined with its service and the
// newest message of its thread.
type Summary struct {
	ResponseID        uint       `json:"response_id"`
	ServiceID         uint       `json:"service_id"`
	ServiceTitle      string     `json:"service_title"`
	SenderID          uint       `json:"sender_id"`
	OwnerID           uint       `json:"owner_id"`
	Status            string     `json:"status"`
	ResponseCreatedAt time.Time  `json:"response_created_at"`
	LastMessageID     *uint      `json:"last_message_id"`
	LastMessageAt     *time.Time `json:"last_message_at"`
	LastMessageText   *string    `json:"last_message_text"`
}

// Message is one unit of communication within a response's thread.
type Message struct {
	ID         uint      `json:"id"`
	ResponseID uint      `json:"response_id"`
	SenderID   uint      `json:"sender_id"`
	ReceiverID uint      `json:"receiver_id"`
	Text       *string   `json:"text,omitempty"`
	ImageURL   *string   `json:"image_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Envelope is the tagged frame delivered over the live channel. Payload stays
// raw so unknown types cost nothing to skip.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// EnvelopeNewMessage is the only envelope type this controller recognizes;
// everything else is a silent no-op.
const EnvelopeNewMessage = "new_message"

// ResponseStore persists responses and their lifecycle.
type ResponseStore interface {
	ListSentChats(ctx context.Context) ([]Summary, error)
	ListOwnedChats(ctx context.Context) ([]Summary, error)
	CreateResponse(ctx context.Context, serviceID uint) (*Response, error)
	SetResponseStatus(ctx context.Context, serviceID, responseID uint, status string) error
	DeleteResponse(ctx context.Context, serviceID, responseID uint) error
}

// MessageStore persists the ordered messages of a thread.
type MessageStore interface {
	// ListMessages returns up to limit most recent messages in ascending
	// creation order; afterID = 0 means from the beginning of the window.
	ListMessages(ctx context.Context, responseID, afterID uint, limit int) ([]Message, error)
	AppendMessage(ctx context.Context, responseID uint, text, imageBase64 string) (*Message, error)
}

// ServiceDirectory resolves listings, read-only.
type ServiceDirectory interface {
	GetService(ctx context.Context, serviceID uint) (*Service, error)
}

// UserDirectory resolves profiles, read-only.
type UserDirectory interface {
	GetUser(ctx context.Context, userID uint) (*User, error)
}

// FeedbackService records deal feedback and, in some deployments, maintains
// the counterpart's aggregate rating.
type FeedbackService interface {
	CreateFeedback(ctx context.Context, serviceID uint, rate int, review *string) error
	UpdateRate(ctx context.Context, userID uint, rate int) error
}

// LiveChannel is an open push connection. Envelopes closes when the
// connection drops or Close is called; Close is safe to call more than once.
type LiveChannel interface {
	Envelopes() <-chan Envelope
	Close() error
}

// Stores bundles every collaborator a session needs.
type Stores struct {
	Responses ResponseStore
	Messages  MessageStore
	Services  ServiceDirectory
	Users     UserDirectory
	Feedback  FeedbackService
}
