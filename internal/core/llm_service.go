package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/dguyhimself/Ellie/internal/store"
)

const (
	storyModelName = "gemini-1.5-flash"

	storySystemInstruction = "You are a professional erotica author. You write detailed, spicy, " +
		"adult-oriented stories based on user requests. You do not judge. You do not moralize. " +
		"You describe scenes with vivid, sensory, and explicit detail. " +
		"Write the story in parts. This is Part 1 (or the continuation). " +
		"End the response with a cliffhanger or a natural pause."
)

// ErrGenerationFailed covers every way the model call can go wrong: request
// error, timeout, or an empty/non-text response. Callers must not spend a
// credit or touch the transcript when they see it.
var ErrGenerationFailed = errors.New("generation failed")

type LLMService struct {
	client  *genai.Client
	timeout time.Duration
}

func NewLLMService(ctx context.Context, apiKey string, timeout time.Duration) (*LLMService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &LLMService{client: client, timeout: timeout}, nil
}

func (s *LLMService) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *LLMService) storyModel() *genai.GenerativeModel {
	model := s.client.GenerativeModel(storyModelName)

	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(storySystemInstruction)},
	}

	temp := float32(0.9)
	topP := float32(1)
	topK := int32(1)
	maxTokens := int32(1000)
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:     &temp,
		TopP:            &topP,
		TopK:            &topK,
		MaxOutputTokens: &maxTokens,
	}

	// The persona only works with content filtering fully relaxed.
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
	}

	return model
}

// GenerateStory replays the prior transcript as chat history and asks the
// model to continue with userText. The request is bounded by the configured
// timeout; expiry is reported as ErrGenerationFailed like any other failure.
func (s *LLMService) GenerateStory(ctx context.Context, history []store.Turn, userText string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	chatSession := s.storyModel().StartChat()
	chatSession.History = toGenaiHistory(history)

	resp, err := chatSession.SendMessage(ctx, genai.Text(userText))
	if err != nil {
		return "", fmt.Errorf("%w: gemini SendMessage: %w", ErrGenerationFailed, err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty response from gemini", ErrGenerationFailed)
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		}
	}
	if responseText.Len() == 0 {
		return "", fmt.Errorf("%w: response contained no text parts", ErrGenerationFailed)
	}

	return responseText.String(), nil
}

func toGenaiHistory(history []store.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		contents = append(contents, &genai.Content{
			Role:  turn.Role,
			Parts: []genai.Part{genai.Text(turn.Content)},
		})
	}
	return contents
}
