package infrastructure

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient generates replies through the chat completions API. Model
// name and sampling parameters come from the per-business template, not
// from here.
type OpenAIClient struct {
	client *openai.Client
}

func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{client: openai.NewClient(apiKey)}
}

func (c *OpenAIClient) GenerateResponse(
	ctx context.Context,
	prompt, modelName string,
	temperature, topP, frequencyPenalty, presencePenalty float64,
) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: modelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature:      float32(temperature),
		TopP:             float32(topP),
		FrequencyPenalty: float32(frequencyPenalty),
		PresencePenalty:  float32(presencePenalty),
		MaxTokens:        200,
	})
	if err != nil {
		return "", fmt.Errorf("generate response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generate response: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
