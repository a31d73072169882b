package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/sitereply/sitereply/internal/domain/entity"
)

var ErrEmptyQuestion = errors.New("question is empty")

// ChatCompleter is the slice of the OpenAI client the answer service needs.
// *openai.Client satisfies it.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// AnswerService turns a widget's summary into a constrained persona prompt
// and delegates to the completion API. Each call is independent; nothing is
// remembered between requests.
type AnswerService struct {
	Client  ChatCompleter
	Model   string
	Timeout time.Duration
	Logger  *logrus.Logger
}

func NewAnswerService(client ChatCompleter, model string, timeout time.Duration, logger *logrus.Logger) *AnswerService {
	return &AnswerService{Client: client, Model: model, Timeout: timeout, Logger: logger}
}

// FallbackAnswer is the exact reply the persona must give when the summary
// does not cover the question.
func FallbackAnswer(contactEmail string) string {
	return fmt.Sprintf("I don't know. Please leave a message at %s.", contactEmail)
}

// SystemPrompt builds the persona instruction: answer only from the summary,
// fall back to the fixed contact line, never fabricate.
func SystemPrompt(w *entity.Widget) string {
	var b strings.Builder
	b.WriteString("You are now acting as the owner of this business.\n")
	b.WriteString("The name of the business is " + w.Name + ".\n")
	b.WriteString("You must ONLY use the following summary to answer questions:\n\n")
	b.WriteString(w.Summary)
	b.WriteString("\n\nRules:\n")
	b.WriteString("- If the answer is found in the summary, respond as if you are the business.\n")
	b.WriteString("- If the answer is NOT in the summary, say exactly:\n")
	b.WriteString("  \"" + FallbackAnswer(w.Email) + "\"\n")
	b.WriteString("- Do not make up or guess any information not in the summary.\n")
	b.WriteString("- Always stay in character as the business.\n")
	return b.String()
}

// Answer sends the system+user exchange with deterministic sampling and
// returns the single reply text.
func (s *AnswerService) Answer(ctx context.Context, w *entity.Widget, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", ErrEmptyQuestion
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	resp, err := s.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt(w)},
			{Role: openai.ChatMessageRoleUser, Content: question},
		},
		Temperature: 0,
	})
	if err != nil {
		if s.Logger != nil {
			s.Logger.WithError(err).WithField("widget_key", w.PublicKey).Error("completion call failed")
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
