package application

import (
	"context"
	"errors"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitereply/sitereply/internal/domain/entity"
)

type stubCompleter struct {
	lastReq openai.ChatCompletionRequest
	reply   string
	err     error
}

func (s *stubCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.lastReq = req
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: s.reply}},
		},
	}, nil
}

func testWidget() *entity.Widget {
	return &entity.Widget{
		ID:        1,
		Name:      "Springfield Bakery",
		Email:     "owner@springfieldbakery.test",
		Summary:   "We sell sourdough bread. Open 7am-3pm.",
		PublicKey: "key123",
		Plan:      entity.PlanFree,
	}
}

func TestFallbackAnswer(t *testing.T) {
	got := FallbackAnswer("owner@springfieldbakery.test")
	assert.Equal(t, "I don't know. Please leave a message at owner@springfieldbakery.test.", got)
}

func TestSystemPrompt(t *testing.T) {
	w := testWidget()
	prompt := SystemPrompt(w)

	assert.Contains(t, prompt, w.Name)
	assert.Contains(t, prompt, w.Summary)
	assert.Contains(t, prompt, FallbackAnswer(w.Email))
	assert.Contains(t, prompt, "Do not make up or guess")
}

func TestAnswer(t *testing.T) {
	stub := &stubCompleter{reply: "We open at 7am."}
	svc := NewAnswerService(stub, "gpt-4.1-mini", 5*time.Second, nil)
	w := testWidget()

	got, err := svc.Answer(context.Background(), w, "When do you open?")
	require.NoError(t, err)
	assert.Equal(t, "We open at 7am.", got)

	require.Len(t, stub.lastReq.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, stub.lastReq.Messages[0].Role)
	assert.Equal(t, SystemPrompt(w), stub.lastReq.Messages[0].Content)
	assert.Equal(t, openai.ChatMessageRoleUser, stub.lastReq.Messages[1].Role)
	assert.Equal(t, "When do you open?", stub.lastReq.Messages[1].Content)
	assert.Equal(t, "gpt-4.1-mini", stub.lastReq.Model)
	assert.Zero(t, stub.lastReq.Temperature)
}

func TestAnswerEmptyQuestion(t *testing.T) {
	stub := &stubCompleter{reply: "should not be called"}
	svc := NewAnswerService(stub, "gpt-4.1-mini", 0, nil)

	_, err := svc.Answer(context.Background(), testWidget(), "   \n\t ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Empty(t, stub.lastReq.Messages, "completion must not be called for empty questions")
}

func TestAnswerUpstreamError(t *testing.T) {
	stub := &stubCompleter{err: errors.New("upstream down")}
	svc := NewAnswerService(stub, "gpt-4.1-mini", 0, nil)

	_, err := svc.Answer(context.Background(), testWidget(), "When do you open?")
	assert.Error(t, err)
}
