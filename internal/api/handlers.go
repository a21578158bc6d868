package api

import (
	"context"
	"encoding/json"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// ConversationService is what the webhook needs from the orchestrator.
type ConversationService interface {
	HandleStart(ctx context.Context, chatID, userID int64) error
	HandleMessage(ctx context.Context, chatID, userID int64, text string) error
}

type APIHandler struct {
	chatService ConversationService
	logger      zerolog.Logger
}

func NewAPIHandler(cs ConversationService, logger zerolog.Logger) *APIHandler {
	return &APIHandler{
		chatService: cs,
		logger:      logger.With().Str("component", "webhook").Logger(),
	}
}

// WebhookHandler receives one Telegram update per request. It always
// acknowledges with 200 "OK": Telegram retries non-2xx responses forever,
// and the user-facing reply travels over the outbound bot API, not this
// response body. Malformed or non-message updates are dropped after the ack.
func (h *APIHandler) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	defer acknowledge(w)

	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.logger.Warn().Err(err).Msg("Dropping malformed update payload")
		return
	}

	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || msg.Text == "" {
		h.logger.Debug().Int("update_id", update.UpdateID).Msg("Ignoring update without a text message")
		return
	}

	ctx := r.Context()
	chatID := msg.Chat.ID
	userID := msg.From.ID

	var err error
	if msg.IsCommand() && msg.Command() == "start" {
		err = h.chatService.HandleStart(ctx, chatID, userID)
	} else {
		err = h.chatService.HandleMessage(ctx, chatID, userID, msg.Text)
	}
	if err != nil {
		// The orchestrator already replied to the user with something; this
		// is operator diagnostics only.
		h.logger.Error().Err(err).Int64("user_id", userID).Msg("Update processing failed")
	}
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func acknowledge(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
