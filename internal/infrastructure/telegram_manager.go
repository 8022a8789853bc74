package infrastructure

import (
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
)

// TelegramBotInstance is a single business's Telegram bot.
type TelegramBotInstance struct {
	Bot        *tgbotapi.BotAPI
	BusinessID uuid.UUID
	StopChan   chan struct{}
	IsRunning  bool
	mu         sync.Mutex
}

// TelegramBotManager runs one polling bot per business.
type TelegramBotManager struct {
	bots map[uuid.UUID]*TelegramBotInstance
	mu   sync.RWMutex

	// Handler invoked for every update of every bot.
	MessageHandler func(bot *tgbotapi.BotAPI, update tgbotapi.Update, businessID uuid.UUID)
}

func NewTelegramBotManager() *TelegramBotManager {
	return &TelegramBotManager{
		bots: make(map[uuid.UUID]*TelegramBotInstance),
	}
}

// GetBot returns the business's bot (nil if not connected).
func (m *TelegramBotManager) GetBot(businessID uuid.UUID) *TelegramBotInstance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bots[businessID]
}

// ValidateToken checks a token by creating a test bot.
func (m *TelegramBotManager) ValidateToken(token string) (string, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	return bot.Self.UserName, nil
}

// ConnectBot starts a polling bot for a business with its token.
func (m *TelegramBotManager) ConnectBot(businessID uuid.UUID, token string) (*TelegramBotInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.bots[businessID]; ok && existing.IsRunning {
		return existing, nil
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	instance := &TelegramBotInstance{
		Bot:        bot,
		BusinessID: businessID,
		StopChan:   make(chan struct{}),
	}
	m.bots[businessID] = instance

	go m.startPolling(instance)

	return instance, nil
}

func (m *TelegramBotManager) startPolling(instance *TelegramBotInstance) {
	instance.mu.Lock()
	instance.IsRunning = true
	instance.mu.Unlock()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := instance.Bot.GetUpdatesChan(u)

	fmt.Printf("[tg] started polling for business %s (@%s)\n", instance.BusinessID, instance.Bot.Self.UserName)

	for {
		select {
		case <-instance.StopChan:
			fmt.Printf("[tg] stopped polling for business %s\n", instance.BusinessID)
			instance.mu.Lock()
			instance.IsRunning = false
			instance.mu.Unlock()
			return
		case update := <-updates:
			if m.MessageHandler != nil {
				go m.MessageHandler(instance.Bot, update, instance.BusinessID)
			}
		}
	}
}

// DisconnectBot stops a business's bot.
func (m *TelegramBotManager) DisconnectBot(businessID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if instance, ok := m.bots[businessID]; ok {
		close(instance.StopChan)
		delete(m.bots, businessID)
	}
}

// GetStatus returns connection status for a business.
func (m *TelegramBotManager) GetStatus(businessID uuid.UUID) (connected bool, botName string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if instance, ok := m.bots[businessID]; ok && instance.IsRunning {
		return true, instance.Bot.Self.UserName
	}
	return false, ""
}

// SendMessage sends a message through a business's bot.
func (m *TelegramBotManager) SendMessage(businessID uuid.UUID, chatID int64, text string) error {
	m.mu.RLock()
	instance, ok := m.bots[businessID]
	m.mu.RUnlock()

	if !ok || !instance.IsRunning {
		return fmt.Errorf("bot not connected for business %s", businessID)
	}

	msg := tgbotapi.NewMessage(chatID, text)
	_, err := instance.Bot.Send(msg)
	return err
}

// DisconnectAll stops all bots (for graceful shutdown)
func (m *TelegramBotManager) DisconnectAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, instance := range m.bots {
		close(instance.StopChan)
	}
	m.bots = make(map[uuid.UUID]*TelegramBotInstance)
}
