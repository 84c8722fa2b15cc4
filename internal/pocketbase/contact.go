package pocketbase

import (
	"context"
	"net/http"
	"net/mail"
	"strings"

	"github.com/design2deploy2025/inventory-management-sub000/dashboard"
)

// ContactPath is the backend route that relays contact form messages.
const ContactPath = "/api/sellerdesk/contact"

// ContactMessage is a contact form submission.
type ContactMessage struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// Validate checks the fields the relay requires. Missing or malformed
// fields are reported as a dashboard.ValidationError.
func (m ContactMessage) Validate() error {
	var missing []string
	if strings.TrimSpace(m.Name) == "" {
		missing = append(missing, "name")
	}
	if _, err := mail.ParseAddress(m.Email); err != nil {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(m.Message) == "" {
		missing = append(missing, "message")
	}
	if len(missing) > 0 {
		return &dashboard.ValidationError{Fields: missing}
	}
	return nil
}

// SendContact relays a contact message. It needs no session.
func (c *Client) SendContact(ctx context.Context, m ContactMessage) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return c.doJSON(ctx, http.MethodPost, ContactPath, m, nil)
}
