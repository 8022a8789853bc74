package usecases

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"omnichat/internal/entities"
	"omnichat/internal/interfaces"
)

const (
	// Trailing inactivity window for conversation continuity.
	DefaultWindowMinutes = 30

	// Template type requested from the bot-settings service for the
	// default reply flow.
	templateTypeDefault = "other"
)

// Validation failures of the RAG pipeline. These abort the pipeline before
// the generation call is made.
var (
	ErrInvalidContext  = errors.New("context payload must contain a results list")
	ErrInvalidTemplate = errors.New("invalid prompt template")
)

// ReceiveMessageUseCase drives one inbound message end to end: resolve the
// end user, resolve the conversation, persist the inbound message, run the
// retrieval-augmented generation pipeline and persist the reply. It holds no
// mutable state of its own; every collaborator manages its own concurrency.
type ReceiveMessageUseCase struct {
	configLoader     interfaces.ConfigLoader
	embeddingClient  interfaces.EmbeddingClient
	contextRetriever interfaces.ContextRetriever
	llmClient        interfaces.LLMClient
	endUserRepo      interfaces.EndUserRepository
	conversationRepo interfaces.ConversationRepository
	messageRepo      interfaces.MessageRepository

	// Channels whose external id is stable enough to key identity on.
	identifiedChannels map[string]bool
	windowMinutes      int
}

func NewReceiveMessageUseCase(
	configLoader interfaces.ConfigLoader,
	embeddingClient interfaces.EmbeddingClient,
	contextRetriever interfaces.ContextRetriever,
	llmClient interfaces.LLMClient,
	endUserRepo interfaces.EndUserRepository,
	conversationRepo interfaces.ConversationRepository,
	messageRepo interfaces.MessageRepository,
) *ReceiveMessageUseCase {
	return &ReceiveMessageUseCase{
		configLoader:     configLoader,
		embeddingClient:  embeddingClient,
		contextRetriever: contextRetriever,
		llmClient:        llmClient,
		endUserRepo:      endUserRepo,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		identifiedChannels: map[string]bool{
			entities.ChannelWhatsApp:  true,
			entities.ChannelTelegram:  true,
			entities.ChannelFacebook:  true,
			entities.ChannelInstagram: true,
		},
		windowMinutes: DefaultWindowMinutes,
	}
}

// HandleNewMessage is the inbound entry point for every transport. The
// returned Message is the generated bot reply. No step is retried: a failure
// leaves any already-committed side effects in place (an inbound message may
// end up persisted with no reply).
func (uc *ReceiveMessageUseCase) HandleNewMessage(
	ctx context.Context,
	channel, externalID string,
	businessID uuid.UUID,
	content string,
	metadata map[string]interface{},
) (*entities.EndUser, *entities.Conversation, *entities.Message, error) {
	endUser, err := uc.getOrCreateEndUser(ctx, externalID, channel, businessID, metadata)
	if err != nil {
		log.Printf("[usecase] resolve end user failed: %v", err)
		return nil, nil, nil, err
	}

	conversation, err := uc.getOrCreateConversation(ctx, endUser.ID, businessID, channel)
	if err != nil {
		log.Printf("[usecase] resolve conversation failed: %v", err)
		return nil, nil, nil, err
	}

	inbound := &entities.Message{
		ID:             uuid.New(),
		ConversationID: conversation.ID,
		SenderType:     entities.SenderUser,
		Content:        content,
		Timestamp:      time.Now().UTC(),
		Metadata:       entities.NormalizeMetadata(metadata),
	}
	if _, err := uc.messageRepo.Create(ctx, inbound); err != nil {
		log.Printf("[usecase] persist inbound message failed: %v", err)
		return nil, nil, nil, err
	}

	reply, err := uc.processMessage(ctx, inbound, businessID)
	if err != nil {
		return nil, nil, nil, err
	}

	return endUser, conversation, reply, nil
}

func (uc *ReceiveMessageUseCase) getOrCreateEndUser(
	ctx context.Context,
	externalID, channel string,
	businessID uuid.UUID,
	metadata map[string]interface{},
) (*entities.EndUser, error) {
	normalizedID := uc.normalizeExternalID(externalID, channel)

	endUser, err := uc.endUserRepo.GetByExternalID(ctx, normalizedID, channel, businessID)
	if err != nil {
		return nil, err
	}
	if endUser != nil {
		return endUser, nil
	}

	merged := make(map[string]interface{}, len(metadata)+2)
	for k, v := range metadata {
		merged[k] = v
	}
	merged["is_anonymous"] = !uc.identifiedChannels[strings.ToLower(strings.TrimSpace(channel))]
	merged["original_external_id"] = externalID

	phone, _ := metadata["phone_number"].(string)

	newUser := &entities.EndUser{
		ID:          uuid.New(),
		BusinessID:  businessID,
		ExternalID:  normalizedID,
		Channel:     channel,
		PhoneNumber: phone,
		Metadata:    merged,
	}
	// Create is an atomic insert-or-fetch; a concurrent first contact for
	// the same (business, channel, external_id) converges on one row.
	return uc.endUserRepo.Create(ctx, newUser)
}

func (uc *ReceiveMessageUseCase) getOrCreateConversation(
	ctx context.Context,
	endUserID, businessID uuid.UUID,
	channel string,
) (*entities.Conversation, error) {
	conversation, err := uc.conversationRepo.GetActiveByUser(ctx, endUserID, businessID, uc.windowMinutes)
	if err != nil {
		return nil, err
	}
	if conversation != nil {
		return conversation, nil
	}

	newConversation := &entities.Conversation{
		ID:         uuid.New(),
		EndUserID:  endUserID,
		BusinessID: businessID,
		Channel:    channel,
		StartedAt:  time.Now().UTC(),
		IsActive:   true,
	}
	return uc.conversationRepo.Create(ctx, newConversation)
}

// processMessage runs the RAG pipeline for one inbound message. Any step
// failing aborts the rest; nothing is retried here and no partial reply is
// persisted.
func (uc *ReceiveMessageUseCase) processMessage(ctx context.Context, inbound *entities.Message, businessID uuid.UUID) (*entities.Message, error) {
	botConfig, err := uc.configLoader.LoadBotConfig(ctx, businessID)
	if err != nil {
		log.Printf("[usecase] load bot config failed: %v", err)
		return nil, err
	}

	vector, err := uc.embeddingClient.VectorizeText(ctx, inbound.Content, botConfig.EmbeddingModelName)
	if err != nil {
		log.Printf("[usecase] vectorize message failed: %v", err)
		return nil, err
	}

	docContext, err := uc.contextRetriever.RetrieveDocumentContext(
		ctx, vector, businessID, botConfig.SearchTopK, botConfig.SearchMinSimilarity)
	if err != nil {
		log.Printf("[usecase] retrieve context failed: %v", err)
		return nil, err
	}

	template, err := uc.configLoader.LoadBotTemplate(ctx, businessID, templateTypeDefault)
	if err != nil {
		log.Printf("[usecase] load bot template failed: %v", err)
		return nil, err
	}

	prompt, err := uc.buildPrompt(inbound.Content, docContext, template.PromptTemplate)
	if err != nil {
		log.Printf("[usecase] build prompt failed: %v", err)
		return nil, err
	}

	response, err := uc.llmClient.GenerateResponse(
		ctx, prompt, botConfig.LLMModelName,
		template.Temperature, template.TopP,
		template.FrequencyPenalty, template.PresencePenalty)
	if err != nil {
		log.Printf("[usecase] generate response failed: %v", err)
		return nil, err
	}

	botMessage := &entities.Message{
		ID:             uuid.New(),
		ConversationID: inbound.ConversationID,
		SenderType:     entities.SenderBot,
		Content:        response,
		Timestamp:      time.Now().UTC(),
	}
	if _, err := uc.messageRepo.Create(ctx, botMessage); err != nil {
		log.Printf("[usecase] persist bot message failed: %v", err)
		return nil, err
	}

	return botMessage, nil
}

// buildPrompt substitutes {message} and {context} into the template. The
// context payload must carry its snippets under "results" as a list;
// anything else is rejected before the generation call.
func (uc *ReceiveMessageUseCase) buildPrompt(message string, docContext map[string]interface{}, promptTemplate string) (string, error) {
	raw, ok := docContext["results"]
	if !ok {
		raw = []interface{}{}
	}
	results, ok := raw.([]interface{})
	if !ok {
		log.Printf("[usecase] invalid context format: %v", docContext)
		return "", ErrInvalidContext
	}

	parts := make([]string, 0, len(results))
	for _, item := range results {
		record, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		content := record["content"]
		if content == nil {
			content = ""
		}
		parts = append(parts, fmt.Sprint(content))
	}
	contextStr := strings.Join(parts, "\n")

	return substitutePlaceholders(promptTemplate, map[string]string{
		"message": message,
		"context": contextStr,
	})
}

// substitutePlaceholders replaces {name} markers with their values. A marker
// without a value, or an unbalanced brace, fails the template.
func substitutePlaceholders(template string, values map[string]string) (string, error) {
	var sb strings.Builder
	for i := 0; i < len(template); i++ {
		switch template[i] {
		case '{':
			if i+1 < len(template) && template[i+1] == '{' {
				sb.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(template[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("%w: unbalanced brace", ErrInvalidTemplate)
			}
			name := template[i+1 : i+end]
			value, ok := values[name]
			if !ok {
				return "", fmt.Errorf("%w: missing key %q", ErrInvalidTemplate, name)
			}
			sb.WriteString(value)
			i += end
		case '}':
			if i+1 < len(template) && template[i+1] == '}' {
				sb.WriteByte('}')
				i++
				continue
			}
			return "", fmt.Errorf("%w: unbalanced brace", ErrInvalidTemplate)
		default:
			sb.WriteByte(template[i])
		}
	}
	return sb.String(), nil
}

// normalizeExternalID prefixes the id with the channel name for channels on
// the identified allow-list. Idempotent; other channels pass through.
func (uc *ReceiveMessageUseCase) normalizeExternalID(externalID, channel string) string {
	normalizedChannel := strings.ToLower(strings.TrimSpace(channel))
	if !uc.identifiedChannels[normalizedChannel] {
		return externalID
	}
	prefix := normalizedChannel + ":"
	if strings.HasPrefix(externalID, prefix) {
		return externalID
	}
	return prefix + externalID
}
