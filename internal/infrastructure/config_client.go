package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"omnichat/internal/interfaces"
)

// ConfigServiceClient loads bot settings and templates from the settings
// service over HTTP.
type ConfigServiceClient struct {
	baseURL string
	http    *http.Client
}

func NewConfigServiceClient(baseURL string) *ConfigServiceClient {
	return &ConfigServiceClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *ConfigServiceClient) LoadBotConfig(ctx context.Context, businessID uuid.UUID) (interfaces.BotConfig, error) {
	var config interfaces.BotConfig

	endpoint := fmt.Sprintf("%s/api/bot-settings/by_business/?business_id=%s", c.baseURL, businessID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return config, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return config, fmt.Errorf("load bot config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return config, fmt.Errorf("load bot config: settings service returned %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&config); err != nil {
		return config, fmt.Errorf("load bot config: decode: %w", err)
	}
	return config, nil
}

func (c *ConfigServiceClient) LoadBotTemplate(ctx context.Context, businessID uuid.UUID, templateType string) (interfaces.BotTemplate, error) {
	var template interfaces.BotTemplate

	params := url.Values{}
	params.Set("business_id", businessID.String())
	params.Set("type", templateType)
	endpoint := fmt.Sprintf("%s/api/bot-templates/by_type/?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return template, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return template, fmt.Errorf("load bot template: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return template, fmt.Errorf("load bot template: settings service returned %d", resp.StatusCode)
	}

	// The service answers with all templates of the requested type; the
	// first one wins.
	var templates []interfaces.BotTemplate
	if err := json.NewDecoder(resp.Body).Decode(&templates); err != nil {
		return template, fmt.Errorf("load bot template: decode: %w", err)
	}
	if len(templates) == 0 {
		return template, fmt.Errorf("load bot template: no %q template for business %s", templateType, businessID)
	}
	return templates[0], nil
}
