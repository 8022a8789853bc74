package infrastructure

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
)

// WhatsAppManager holds one WhatsApp client per business.
type WhatsAppManager struct {
	clients map[uuid.UUID]*WhatsAppClient
	mu      sync.RWMutex
	baseDir string

	// Callback for registering message handlers per client
	HandlerFactory func(businessID uuid.UUID) func(interface{})
}

func NewWhatsAppManager(baseDir string) *WhatsAppManager {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		fmt.Printf("Warning: could not create devices directory: %v\n", err)
	}

	return &WhatsAppManager{
		clients: make(map[uuid.UUID]*WhatsAppClient),
		baseDir: baseDir,
	}
}

// GetClient returns the business's client, nil if none was created.
func (m *WhatsAppManager) GetClient(businessID uuid.UUID) *WhatsAppClient {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clients[businessID]
}

func (m *WhatsAppManager) GetOrCreateClient(businessID uuid.UUID) (*WhatsAppClient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if client, exists := m.clients[businessID]; exists {
		return client, nil
	}

	dbPath := fmt.Sprintf("%s/business_%s.db", m.baseDir, businessID)
	client, err := NewWhatsAppClient(dbPath, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to create WhatsApp client for business %s: %w", businessID, err)
	}

	if m.HandlerFactory != nil {
		client.AddHandler(m.HandlerFactory(businessID))
	}

	m.clients[businessID] = client
	return client, nil
}

// ConnectClient connects the business's WhatsApp session (creates if needed).
func (m *WhatsAppManager) ConnectClient(businessID uuid.UUID) (*WhatsAppClient, error) {
	client, err := m.GetOrCreateClient(businessID)
	if err != nil {
		return nil, err
	}

	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect WhatsApp for business %s: %w", businessID, err)
	}
	return client, nil
}

func (m *WhatsAppManager) DisconnectClient(businessID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if client, exists := m.clients[businessID]; exists {
		client.Disconnect()
		delete(m.clients, businessID)
	}
}

// LogoutClient clears the session so the next connect shows a fresh QR.
// Returns nil if there is nothing to log out.
func (m *WhatsAppManager) LogoutClient(businessID uuid.UUID) error {
	m.mu.RLock()
	client, exists := m.clients[businessID]
	m.mu.RUnlock()

	if !exists || client == nil {
		return nil
	}

	err := client.Logout()

	m.mu.Lock()
	delete(m.clients, businessID)
	m.mu.Unlock()

	return err
}

// DisconnectAll disconnects all clients (for graceful shutdown)
func (m *WhatsAppManager) DisconnectAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, client := range m.clients {
		client.Disconnect()
	}
	m.clients = make(map[uuid.UUID]*WhatsAppClient)
}
