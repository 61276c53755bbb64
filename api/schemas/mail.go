package schemas

import "time"

// -- Mailbox Schemas --

// User is a mailbox owner known to the repository.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	// AccessToken is an OAuth2 bearer token for the mailbox, if one is on file.
	AccessToken string `json:"-"`
	// AppPassword is used for IMAP PLAIN login when no token is available.
	AppPassword string `json:"-"`
}

// Credentials returns the mailbox credentials of the user.
func (u User) Credentials() MailCredentials {
	return MailCredentials{
		Address:     u.Email,
		AccessToken: u.AccessToken,
		Password:    u.AppPassword,
	}
}

// Email is a stored message reference.
type Email struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	GoogleMessageID string    `json:"googleMessageId"`
	Subject         string    `json:"subject"`
	Sender          string    `json:"sender"`
	ReceivedAt      time.Time `json:"receivedAt"`
}

// MailCredentials authenticate a mailbox session.
type MailCredentials struct {
	Address     string
	AccessToken string
	Password    string
}

// OriginalMessage is the full content of a message as fetched from the mailbox.
type OriginalMessage struct {
	ID      string            `json:"id"`
	Subject string            `json:"subject"`
	From    string            `json:"from"`
	To      string            `json:"to"`
	Date    string            `json:"date"`
	Body    string            `json:"body"`
	IsHTML  bool              `json:"isHtml"`
	Headers map[string]string `json:"headers,omitempty"`
}
