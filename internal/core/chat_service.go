package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dguyhimself/Ellie/internal/store"
)

const (
	welcomeNewFmt  = "Welcome. You have %d free credits. Tell me exactly what kind of story you want. Be specific."
	welcomeBackFmt = "Welcome back. Credits: %d. Tell me what to write."
	exhaustedMsg   = "⚠️ Credits exhausted. Top up to keep the story going."
	writingMsg     = "Writing... 🫦"
	systemErrorMsg = "System Error. Try again."
	continueNudge  = "Type 'Continue' for the next part."
)

// Generator produces the next story part from the prior transcript plus the
// new user request.
type Generator interface {
	GenerateStory(ctx context.Context, history []store.Turn, userText string) (string, error)
}

// Messenger is the outbound side of the chat platform: send a message to a
// chat, and edit one that was already sent.
type Messenger interface {
	SendMessage(chatID int64, text string) (messageID int, err error)
	EditMessage(chatID int64, messageID int, text string) error
}

// SessionStore is the durable per-user record. All mutations are single
// atomic operations so concurrent requests for the same user cannot lose
// updates to each other.
type SessionStore interface {
	GetSession(ctx context.Context, userID int64) (*store.UserSession, error)
	CreateIfAbsent(ctx context.Context, userID int64, initialCredits int) (*store.UserSession, bool, error)
	CommitTurn(ctx context.Context, userID int64, userText, modelText string) (*store.UserSession, error)
}

type ChatService struct {
	sessions        SessionStore
	llm             Generator
	messenger       Messenger
	initialCredits  int
	maxHistoryTurns int
	logger          zerolog.Logger
}

func NewChatService(sessions SessionStore, llm Generator, messenger Messenger, initialCredits, maxHistoryTurns int, logger zerolog.Logger) *ChatService {
	return &ChatService{
		sessions:        sessions,
		llm:             llm,
		messenger:       messenger,
		initialCredits:  initialCredits,
		maxHistoryTurns: maxHistoryTurns,
		logger:          logger.With().Str("component", "chat").Logger(),
	}
}

// HandleStart provisions the user's session. Provisioning is idempotent: a
// user who already exists keeps their record and is told their current
// balance instead of being re-granted.
func (s *ChatService) HandleStart(ctx context.Context, chatID, userID int64) error {
	session, created, err := s.sessions.CreateIfAbsent(ctx, userID, s.initialCredits)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to provision session")
		_, sendErr := s.messenger.SendMessage(chatID, systemErrorMsg)
		return errors.Join(err, sendErr)
	}

	var msg string
	if created {
		msg = fmt.Sprintf(welcomeNewFmt, session.Credits)
		s.logger.Info().Int64("user_id", userID).Int("credits", session.Credits).Msg("New session provisioned")
	} else {
		msg = fmt.Sprintf(welcomeBackFmt, session.Credits)
	}

	_, err = s.messenger.SendMessage(chatID, msg)
	return err
}

// HandleMessage runs one request through the full flow: look the user up,
// auto-provision on first contact, reject when out of credits, otherwise
// generate and atomically commit the new turn. Exactly one user-visible
// reply comes out of it (the "Writing..." placeholder is edited in place).
func (s *ChatService) HandleMessage(ctx context.Context, chatID, userID int64, text string) error {
	session, err := s.sessions.GetSession(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to load session")
		_, sendErr := s.messenger.SendMessage(chatID, systemErrorMsg)
		return errors.Join(err, sendErr)
	}

	if session == nil {
		// First contact without /start is not an error, just a late hello.
		return s.HandleStart(ctx, chatID, userID)
	}

	if session.Credits <= 0 {
		_, err = s.messenger.SendMessage(chatID, exhaustedMsg)
		return err
	}

	placeholderID, err := s.messenger.SendMessage(chatID, writingMsg)
	if err != nil {
		return fmt.Errorf("failed to send placeholder: %w", err)
	}

	story, err := s.llm.GenerateStory(ctx, s.recentHistory(session.History), text)
	if err != nil {
		// No credit spent, no history written.
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("Generation failed")
		return s.messenger.EditMessage(chatID, placeholderID, systemErrorMsg)
	}

	updated, err := s.sessions.CommitTurn(ctx, userID, text, story)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrCreditsExhausted):
			// A concurrent request spent the last credit after our
			// admission check. Their story stands; ours is dropped.
			return s.messenger.EditMessage(chatID, placeholderID, exhaustedMsg)
		case errors.Is(err, store.ErrSessionNotFound):
			s.logger.Error().Err(err).Int64("user_id", userID).Msg("Commit for unprovisioned session")
		default:
			s.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to commit turn")
		}
		return s.messenger.EditMessage(chatID, placeholderID, systemErrorMsg)
	}

	s.logger.Info().
		Int64("user_id", userID).
		Int("credits_left", updated.Credits).
		Int("history_len", len(updated.History)).
		Msg("Story part delivered")

	if err := s.messenger.EditMessage(chatID, placeholderID, story); err != nil {
		return fmt.Errorf("failed to deliver story: %w", err)
	}
	_, err = s.messenger.SendMessage(chatID, continueNudge)
	return err
}

// recentHistory caps the context replayed to the model at the most recent
// maxHistoryTurns turn pairs. Storage is unbounded; only the replay is cut.
func (s *ChatService) recentHistory(history []store.Turn) []store.Turn {
	if s.maxHistoryTurns <= 0 {
		return history
	}
	limit := s.maxHistoryTurns * 2
	if len(history) <= limit {
		return history
	}
	// Turns are committed in (user, model) pairs, so an even offset from the
	// end always lands on a pair boundary.
	return history[len(history)-limit:]
}
