package usecases

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"omnichat/internal/entities"
	"omnichat/internal/interfaces"
)

// ---- fakes -------------------------------------------------------------

type fakeConfigLoader struct {
	config   interfaces.BotConfig
	template interfaces.BotTemplate
	err      error
}

func (f *fakeConfigLoader) LoadBotConfig(ctx context.Context, businessID uuid.UUID) (interfaces.BotConfig, error) {
	return f.config, f.err
}

func (f *fakeConfigLoader) LoadBotTemplate(ctx context.Context, businessID uuid.UUID, templateType string) (interfaces.BotTemplate, error) {
	return f.template, f.err
}

type fakeEmbeddingClient struct {
	vector []float64
	err    error
	calls  int
}

func (f *fakeEmbeddingClient) VectorizeText(ctx context.Context, text, modelName string) ([]float64, error) {
	f.calls++
	return f.vector, f.err
}

type fakeContextRetriever struct {
	payload map[string]interface{}
	err     error
}

func (f *fakeContextRetriever) RetrieveDocumentContext(ctx context.Context, vector []float64, businessID uuid.UUID, topK int, minSimilarity float64) (map[string]interface{}, error) {
	return f.payload, f.err
}

type fakeLLMClient struct {
	response string
	err      error
	calls    int
	prompts  []string
}

func (f *fakeLLMClient) GenerateResponse(ctx context.Context, prompt, modelName string, temperature, topP, frequencyPenalty, presencePenalty float64) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

type memEndUserRepo struct {
	mu    sync.Mutex
	users []*entities.EndUser
}

func (r *memEndUserRepo) GetByExternalID(ctx context.Context, externalID, channel string, businessID uuid.UUID) (*entities.EndUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ExternalID == externalID && u.Channel == channel && u.BusinessID == businessID {
			return u, nil
		}
	}
	return nil, nil
}

func (r *memEndUserRepo) Create(ctx context.Context, user *entities.EndUser) (*entities.EndUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ExternalID == user.ExternalID && u.Channel == user.Channel && u.BusinessID == user.BusinessID {
			return u, nil // insert-or-fetch
		}
	}
	r.users = append(r.users, user)
	return user, nil
}

type memConversationRepo struct {
	mu            sync.Mutex
	conversations []*entities.Conversation
}

func (r *memConversationRepo) GetActiveByUser(ctx context.Context, endUserID, businessID uuid.UUID, thresholdMinutes int) (*entities.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().UTC().Add(-time.Duration(thresholdMinutes) * time.Minute)
	var current *entities.Conversation
	for _, c := range r.conversations {
		if c.EndUserID != endUserID || c.BusinessID != businessID || !c.IsActive {
			continue
		}
		if c.StartedAt.Before(cutoff) {
			continue
		}
		if current == nil || c.StartedAt.After(current.StartedAt) {
			current = c
		}
	}
	return current, nil
}

func (r *memConversationRepo) Create(ctx context.Context, conv *entities.Conversation) (*entities.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversations = append(r.conversations, conv)
	return conv, nil
}

func (r *memConversationRepo) CloseConversation(ctx context.Context, conversationID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conversations {
		if c.ID == conversationID {
			now := time.Now().UTC()
			c.IsActive = false
			c.EndedAt = &now
		}
	}
	return nil
}

type memMessageRepo struct {
	mu       sync.Mutex
	messages []*entities.Message
	err      error
}

func (r *memMessageRepo) Create(ctx context.Context, msg *entities.Message) (*entities.Message, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return msg, nil
}

func (r *memMessageRepo) GetByConversation(ctx context.Context, conversationID uuid.UUID) ([]entities.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []entities.Message{}
	for _, m := range r.messages {
		if m.ConversationID == conversationID {
			out = append(out, *m)
		}
	}
	return out, nil
}

// ---- harness -----------------------------------------------------------

type harness struct {
	uc        *ReceiveMessageUseCase
	users     *memEndUserRepo
	convs     *memConversationRepo
	msgs      *memMessageRepo
	llm       *fakeLLMClient
	retriever *fakeContextRetriever
}

func newHarness() *harness {
	users := &memEndUserRepo{}
	convs := &memConversationRepo{}
	msgs := &memMessageRepo{}
	llm := &fakeLLMClient{response: "generated reply"}
	retriever := &fakeContextRetriever{payload: map[string]interface{}{
		"results": []interface{}{
			map[string]interface{}{"content": "a"},
			map[string]interface{}{"content": "b"},
		},
	}}

	uc := NewReceiveMessageUseCase(
		&fakeConfigLoader{
			config: interfaces.BotConfig{
				EmbeddingModelName:  "embed-small",
				SearchTopK:          5,
				SearchMinSimilarity: 0.7,
				LLMModelName:        "gpt-4o-mini",
			},
			template: interfaces.BotTemplate{
				PromptTemplate: "Q:{message} CTX:{context}",
				Temperature:    0.4,
				TopP:           0.9,
			},
		},
		&fakeEmbeddingClient{vector: []float64{0.1, 0.2}},
		retriever,
		llm,
		users,
		convs,
		msgs,
	)

	return &harness{uc: uc, users: users, convs: convs, msgs: msgs, llm: llm, retriever: retriever}
}

// ---- normalization -----------------------------------------------------

func TestNormalizeExternalIDIdentifiedChannels(t *testing.T) {
	uc := newHarness().uc

	cases := []struct {
		channel, in, want string
	}{
		{"whatsapp", "+123456", "whatsapp:+123456"},
		{"telegram", "98765", "telegram:98765"},
		{"facebook", "fb-user", "facebook:fb-user"},
		{"instagram", "ig-user", "instagram:ig-user"},
		{"Telegram", "98765", "telegram:98765"},
		{" whatsapp ", "+123456", "whatsapp:+123456"},
		{"whatsapp", "whatsapp:+123456", "whatsapp:+123456"}, // already prefixed
	}
	for _, tc := range cases {
		got := uc.normalizeExternalID(tc.in, tc.channel)
		if got != tc.want {
			t.Errorf("normalize(%q, %q) = %q, want %q", tc.in, tc.channel, got, tc.want)
		}
		// Idempotent
		if again := uc.normalizeExternalID(got, tc.channel); again != got {
			t.Errorf("normalize not idempotent for %q: %q -> %q", tc.in, got, again)
		}
	}
}

func TestNormalizeExternalIDUnidentifiedChannels(t *testing.T) {
	uc := newHarness().uc

	for _, channel := range []string{"websocket", "sms", "carrier-pigeon"} {
		for _, id := range []string{"session-1", "whatsapp:+123", ""} {
			if got := uc.normalizeExternalID(id, channel); got != id {
				t.Errorf("normalize(%q, %q) = %q, want unchanged", id, channel, got)
			}
		}
	}
}

// ---- prompt assembly ---------------------------------------------------

func TestBuildPrompt(t *testing.T) {
	h := newHarness()

	prompt, err := h.uc.buildPrompt("hi", map[string]interface{}{
		"results": []interface{}{
			map[string]interface{}{"content": "a"},
			map[string]interface{}{"content": "b"},
		},
	}, "Q:{message} CTX:{context}")
	if err != nil {
		t.Fatalf("buildPrompt: %v", err)
	}
	if prompt != "Q:hi CTX:a\nb" {
		t.Errorf("prompt = %q, want %q", prompt, "Q:hi CTX:a\nb")
	}
}

func TestBuildPromptSkipsNonMappingItems(t *testing.T) {
	h := newHarness()

	prompt, err := h.uc.buildPrompt("hi", map[string]interface{}{
		"results": []interface{}{
			map[string]interface{}{"content": "a"},
			"not a record",
			map[string]interface{}{"other": "field"},
		},
	}, "{context}")
	if err != nil {
		t.Fatalf("buildPrompt: %v", err)
	}
	if prompt != "a\n" {
		t.Errorf("prompt = %q, want %q", prompt, "a\n")
	}
}

func TestBuildPromptMissingResultsIsEmptyContext(t *testing.T) {
	h := newHarness()

	prompt, err := h.uc.buildPrompt("hi", map[string]interface{}{}, "CTX:{context}")
	if err != nil {
		t.Fatalf("buildPrompt: %v", err)
	}
	if prompt != "CTX:" {
		t.Errorf("prompt = %q, want %q", prompt, "CTX:")
	}
}

func TestBuildPromptRejectsNonListResults(t *testing.T) {
	h := newHarness()

	_, err := h.uc.buildPrompt("hi", map[string]interface{}{
		"results": map[string]interface{}{"content": "a"},
	}, "{message}")
	if !errors.Is(err, ErrInvalidContext) {
		t.Fatalf("err = %v, want ErrInvalidContext", err)
	}
}

func TestBuildPromptRejectsUnknownPlaceholder(t *testing.T) {
	h := newHarness()

	_, err := h.uc.buildPrompt("hi", map[string]interface{}{}, "{message} {foo}")
	if !errors.Is(err, ErrInvalidTemplate) {
		t.Fatalf("err = %v, want ErrInvalidTemplate", err)
	}
}

func TestSubstitutePlaceholders(t *testing.T) {
	cases := []struct {
		template string
		want     string
		wantErr  bool
	}{
		{"{message}", "hello", false},
		{"{{literal}}", "{literal}", false},
		{"{context}{message}", "ctxhello", false},
		{"no placeholders", "no placeholders", false},
		{"{unknown}", "", true},
		{"{message", "", true},
		{"}", "", true},
	}
	values := map[string]string{"message": "hello", "context": "ctx"}
	for _, tc := range cases {
		got, err := substitutePlaceholders(tc.template, values)
		if tc.wantErr {
			if err == nil {
				t.Errorf("substitute(%q): expected error, got %q", tc.template, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("substitute(%q): %v", tc.template, err)
			continue
		}
		if got != tc.want {
			t.Errorf("substitute(%q) = %q, want %q", tc.template, got, tc.want)
		}
	}
}

// ---- end-to-end scenarios ----------------------------------------------

func TestHandleNewMessageFirstContact(t *testing.T) {
	h := newHarness()
	businessID := uuid.New()

	endUser, conversation, reply, err := h.uc.HandleNewMessage(
		context.Background(), "telegram", "42", businessID, "hello",
		map[string]interface{}{"username": "alice"})
	if err != nil {
		t.Fatalf("HandleNewMessage: %v", err)
	}

	if endUser.ExternalID != "telegram:42" {
		t.Errorf("external id = %q, want %q", endUser.ExternalID, "telegram:42")
	}
	if anon, _ := endUser.Metadata["is_anonymous"].(bool); anon {
		t.Error("identified channel produced is_anonymous=true")
	}
	if orig := endUser.Metadata["original_external_id"]; orig != "42" {
		t.Errorf("original_external_id = %v, want %q", orig, "42")
	}
	if conversation.EndUserID != endUser.ID || !conversation.IsActive {
		t.Error("conversation not opened for the new end user")
	}

	if reply.SenderType != entities.SenderBot {
		t.Errorf("returned message sender = %q, want bot", reply.SenderType)
	}
	if reply.Content != "generated reply" {
		t.Errorf("reply content = %q", reply.Content)
	}
	if reply.Metadata != nil {
		t.Errorf("bot message inherited metadata: %v", reply.Metadata)
	}

	msgs, _ := h.msgs.GetByConversation(context.Background(), conversation.ID)
	if len(msgs) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(msgs))
	}
	if msgs[0].SenderType != entities.SenderUser || msgs[1].SenderType != entities.SenderBot {
		t.Errorf("message order = %q, %q", msgs[0].SenderType, msgs[1].SenderType)
	}
	if msgs[0].Metadata["username"] != "alice" {
		t.Errorf("inbound metadata not persisted verbatim: %v", msgs[0].Metadata)
	}
}

func TestHandleNewMessageSecondWithinWindow(t *testing.T) {
	h := newHarness()
	businessID := uuid.New()

	_, conv1, _, err := h.uc.HandleNewMessage(
		context.Background(), "telegram", "42", businessID, "first", nil)
	if err != nil {
		t.Fatalf("first message: %v", err)
	}

	user2, conv2, _, err := h.uc.HandleNewMessage(
		context.Background(), "telegram", "42", businessID, "second", nil)
	if err != nil {
		t.Fatalf("second message: %v", err)
	}

	if len(h.users.users) != 1 {
		t.Errorf("created %d end users, want 1", len(h.users.users))
	}
	if user2.ID != h.users.users[0].ID {
		t.Error("second contact resolved to a different end user")
	}
	if conv2.ID != conv1.ID {
		t.Error("second message within window opened a new conversation")
	}

	msgs, _ := h.msgs.GetByConversation(context.Background(), conv1.ID)
	if len(msgs) != 4 {
		t.Errorf("persisted %d messages, want 4", len(msgs))
	}
}

func TestHandleNewMessageExpiredWindowOpensNewConversation(t *testing.T) {
	h := newHarness()
	businessID := uuid.New()
	endUserID := uuid.New()

	h.users.users = append(h.users.users, &entities.EndUser{
		ID:         endUserID,
		BusinessID: businessID,
		ExternalID: "telegram:42",
		Channel:    "telegram",
	})
	stale := &entities.Conversation{
		ID:         uuid.New(),
		EndUserID:  endUserID,
		BusinessID: businessID,
		Channel:    "telegram",
		StartedAt:  time.Now().UTC().Add(-time.Duration(DefaultWindowMinutes+1) * time.Minute),
		IsActive:   true,
	}
	h.convs.conversations = append(h.convs.conversations, stale)

	_, conversation, _, err := h.uc.HandleNewMessage(
		context.Background(), "telegram", "42", businessID, "hello again", nil)
	if err != nil {
		t.Fatalf("HandleNewMessage: %v", err)
	}

	if conversation.ID == stale.ID {
		t.Error("conversation outside the window was reused")
	}
	if len(h.convs.conversations) != 2 {
		t.Errorf("have %d conversations, want 2", len(h.convs.conversations))
	}
}

func TestHandleNewMessageRecentConversationPreferred(t *testing.T) {
	h := newHarness()
	businessID := uuid.New()
	endUserID := uuid.New()

	h.users.users = append(h.users.users, &entities.EndUser{
		ID:         endUserID,
		BusinessID: businessID,
		ExternalID: "telegram:42",
		Channel:    "telegram",
	})
	older := &entities.Conversation{
		ID: uuid.New(), EndUserID: endUserID, BusinessID: businessID,
		StartedAt: time.Now().UTC().Add(-20 * time.Minute), IsActive: true,
	}
	newer := &entities.Conversation{
		ID: uuid.New(), EndUserID: endUserID, BusinessID: businessID,
		StartedAt: time.Now().UTC().Add(-5 * time.Minute), IsActive: true,
	}
	h.convs.conversations = append(h.convs.conversations, older, newer)

	_, conversation, _, err := h.uc.HandleNewMessage(
		context.Background(), "telegram", "42", businessID, "hello", nil)
	if err != nil {
		t.Fatalf("HandleNewMessage: %v", err)
	}
	if conversation.ID != newer.ID {
		t.Error("most recently started active conversation was not selected")
	}
}

func TestHandleNewMessageAnonymousChannel(t *testing.T) {
	h := newHarness()

	endUser, _, _, err := h.uc.HandleNewMessage(
		context.Background(), "websocket", "session-abc", uuid.New(), "hi", nil)
	if err != nil {
		t.Fatalf("HandleNewMessage: %v", err)
	}

	if endUser.ExternalID != "session-abc" {
		t.Errorf("anonymous external id was normalized: %q", endUser.ExternalID)
	}
	if anon, _ := endUser.Metadata["is_anonymous"].(bool); !anon {
		t.Error("unidentified channel did not produce is_anonymous=true")
	}
}

func TestHandleNewMessagePhoneNumberFromMetadata(t *testing.T) {
	h := newHarness()

	endUser, _, _, err := h.uc.HandleNewMessage(
		context.Background(), "whatsapp", "+555", uuid.New(), "hi",
		map[string]interface{}{"phone_number": "+555"})
	if err != nil {
		t.Fatalf("HandleNewMessage: %v", err)
	}
	if endUser.PhoneNumber != "+555" {
		t.Errorf("phone number = %q, want %q", endUser.PhoneNumber, "+555")
	}
}

func TestHandleNewMessageRepeatContactKeepsStoredFields(t *testing.T) {
	h := newHarness()
	businessID := uuid.New()

	first, _, _, err := h.uc.HandleNewMessage(
		context.Background(), "whatsapp", "+555", businessID, "hi",
		map[string]interface{}{"locale": "es"})
	if err != nil {
		t.Fatalf("first contact: %v", err)
	}

	second, _, _, err := h.uc.HandleNewMessage(
		context.Background(), "whatsapp", "+555", businessID, "hola",
		map[string]interface{}{"locale": "en"})
	if err != nil {
		t.Fatalf("second contact: %v", err)
	}

	if second.ID != first.ID {
		t.Error("repeat contact minted a new end user")
	}
	// Stored metadata is returned as-is; repeat metadata is not merged back.
	if second.Metadata["locale"] != "es" {
		t.Errorf("stored metadata was overwritten: %v", second.Metadata)
	}
}

// ---- failure semantics -------------------------------------------------

func TestMalformedContextAbortsBeforeGeneration(t *testing.T) {
	h := newHarness()
	h.retriever.payload = map[string]interface{}{
		"results": map[string]interface{}{"content": "a"},
	}

	_, _, _, err := h.uc.HandleNewMessage(
		context.Background(), "telegram", "42", uuid.New(), "hello", nil)
	if !errors.Is(err, ErrInvalidContext) {
		t.Fatalf("err = %v, want ErrInvalidContext", err)
	}
	if h.llm.calls != 0 {
		t.Errorf("generation was called %d times after validation failure", h.llm.calls)
	}

	// Inbound user message stays persisted with no reply.
	if len(h.msgs.messages) != 1 || h.msgs.messages[0].SenderType != entities.SenderUser {
		t.Errorf("expected only the inbound message to be persisted, have %d", len(h.msgs.messages))
	}
}

func TestGenerationFailureLeavesInboundPersisted(t *testing.T) {
	h := newHarness()
	h.llm.err = errors.New("model unavailable")

	_, _, _, err := h.uc.HandleNewMessage(
		context.Background(), "telegram", "42", uuid.New(), "hello", nil)
	if err == nil {
		t.Fatal("expected generation failure to propagate")
	}
	if len(h.msgs.messages) != 1 {
		t.Errorf("persisted %d messages, want 1 (inbound only)", len(h.msgs.messages))
	}
}

func TestRepositoryFailurePropagates(t *testing.T) {
	h := newHarness()
	h.msgs.err = errors.New("connection refused")

	_, _, _, err := h.uc.HandleNewMessage(
		context.Background(), "telegram", "42", uuid.New(), "hello", nil)
	if err == nil {
		t.Fatal("expected repository failure to propagate")
	}
	if h.llm.calls != 0 {
		t.Error("pipeline ran after inbound persistence failed")
	}
}
