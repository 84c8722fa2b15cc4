// ABOUTME: Public contact relay: stores the message and mails it to the
// ABOUTME: operator address. Rate limited per client IP.

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/mail"
	"strings"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/mailer"
	"go.uber.org/zap"

	"github.com/design2deploy2025/inventory-management-sub000/cmd/sellerdeskd/migrations"
	pbclient "github.com/design2deploy2025/inventory-management-sub000/internal/pocketbase"
)

const maxContactBody = 16 << 10

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	var msg pbclient.ContactMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxContactBody)).Decode(&msg); err != nil {
		fail(w, http.StatusBadRequest, "invalid json")
		return
	}
	msg.Name = strings.TrimSpace(msg.Name)
	msg.Email = strings.TrimSpace(msg.Email)
	msg.Message = strings.TrimSpace(msg.Message)
	if err := msg.Validate(); err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}

	col, err := s.app.FindCollectionByNameOrId(migrations.ContactMessages)
	if err != nil {
		fail(w, http.StatusInternalServerError, "collection not found")
		return
	}
	rec := core.NewRecord(col)
	rec.Set("name", msg.Name)
	rec.Set("email", msg.Email)
	rec.Set("message", msg.Message)
	rec.Set("ip", getClientIP(r))
	if err := s.app.Save(rec); err != nil {
		s.log.Error("store contact message", zap.Error(err))
		fail(w, http.StatusInternalServerError, "db error")
		return
	}

	// The message is stored; a mail failure is logged and retried by nobody.
	if err := s.deliverContact(msg); err != nil {
		s.log.Warn("deliver contact message", zap.String("id", rec.Id), zap.Error(err))
	} else {
		rec.Set("delivered", true)
		if err := s.app.Save(rec); err != nil {
			s.log.Warn("mark contact delivered", zap.String("id", rec.Id), zap.Error(err))
		}
	}

	ok(w, map[string]any{"ok": true, "id": rec.Id})
}

func (s *Server) deliverContact(msg pbclient.ContactMessage) error {
	settings := s.app.Settings()
	from := mail.Address{Name: settings.Meta.SenderName, Address: settings.Meta.SenderAddress}
	to := s.mailTo
	if to == "" {
		to = settings.Meta.SenderAddress
	}
	if to == "" {
		return fmt.Errorf("no contact recipient configured")
	}

	return s.app.NewMailClient().Send(&mailer.Message{
		From:    from,
		To:      []mail.Address{{Address: to}},
		Subject: "Contact form: " + msg.Name,
		Text:    fmt.Sprintf("From: %s <%s>\n\n%s\n", msg.Name, msg.Email, msg.Message),
		Headers: map[string]string{"Reply-To": msg.Email},
	})
}
