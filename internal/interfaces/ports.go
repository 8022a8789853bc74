package interfaces

import (
	"context"

	"github.com/google/uuid"

	"omnichat/internal/entities"
)

// BotConfig is the per-business pipeline configuration served by the
// bot-settings service.
type BotConfig struct {
	EmbeddingModelName  string  `json:"embedding_model_name"`
	SearchTopK          int     `json:"search_top_k"`
	SearchMinSimilarity float64 `json:"search_min_similarity"`
	LLMModelName        string  `json:"llm_model_name"`
}

// BotTemplate is a response template plus its sampling parameters.
type BotTemplate struct {
	PromptTemplate   string  `json:"prompt_template"`
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"top_p"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
	PresencePenalty  float64 `json:"presence_penalty"`
}

// ConfigLoader serves bot configuration and templates, keyed by business.
type ConfigLoader interface {
	LoadBotConfig(ctx context.Context, businessID uuid.UUID) (BotConfig, error)
	LoadBotTemplate(ctx context.Context, businessID uuid.UUID, templateType string) (BotTemplate, error)
}

// EmbeddingClient vectorizes text with a named embedding model.
type EmbeddingClient interface {
	VectorizeText(ctx context.Context, text, modelName string) ([]float64, error)
}

// ContextRetriever searches stored context by vector similarity. The payload
// is kept loosely typed; the use case validates its shape (a "results" list)
// before building the prompt.
type ContextRetriever interface {
	RetrieveDocumentContext(ctx context.Context, vector []float64, businessID uuid.UUID, topK int, minSimilarity float64) (map[string]interface{}, error)
}

// LLMClient generates the reply for an assembled prompt.
type LLMClient interface {
	GenerateResponse(ctx context.Context, prompt, modelName string, temperature, topP, frequencyPenalty, presencePenalty float64) (string, error)
}

type EndUserRepository interface {
	GetByExternalID(ctx context.Context, externalID, channel string, businessID uuid.UUID) (*entities.EndUser, error)
	Create(ctx context.Context, user *entities.EndUser) (*entities.EndUser, error)
}

type ConversationRepository interface {
	GetActiveByUser(ctx context.Context, endUserID, businessID uuid.UUID, thresholdMinutes int) (*entities.Conversation, error)
	Create(ctx context.Context, conv *entities.Conversation) (*entities.Conversation, error)
	CloseConversation(ctx context.Context, conversationID uuid.UUID) error
}

type MessageRepository interface {
	Create(ctx context.Context, msg *entities.Message) (*entities.Message, error)
	GetByConversation(ctx context.Context, conversationID uuid.UUID) ([]entities.Message, error)
}

// MessageReceiver is the single entry point the transports call. The
// returned Message is the generated bot reply, not the inbound message.
type MessageReceiver interface {
	HandleNewMessage(ctx context.Context, channel, externalID string, businessID uuid.UUID, content string, metadata map[string]interface{}) (*entities.EndUser, *entities.Conversation, *entities.Message, error)
}
