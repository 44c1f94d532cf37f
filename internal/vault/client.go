// Package vault loads broker API credentials from HashiCorp Vault so tokens
// never have to live in config files.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"forex-agent/config"
)

// BrokerCredentials is the secret payload stored for the market data broker.
type BrokerCredentials struct {
	APIToken    string `json:"api_token"`
	AccountID   string `json:"account_id"`
	Environment string `json:"environment"`
}

// Client wraps the HashiCorp Vault client with a small in-process cache.
// With Vault disabled it degrades to a cache-only store for development.
type Client struct {
	client *api.Client
	cfg    config.VaultConfig

	mu     sync.RWMutex
	cached *BrokerCredentials
}

// NewClient creates a new Vault client
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{cfg: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("vault: create client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{client: client, cfg: cfg}, nil
}

// StoreBrokerCredentials writes the broker secret at the configured KV v2
// path. With Vault disabled the secret only lives in memory.
func (c *Client) StoreBrokerCredentials(ctx context.Context, creds BrokerCredentials) error {
	c.mu.Lock()
	c.cached = &creds
	c.mu.Unlock()

	if !c.cfg.Enabled {
		return nil
	}

	path := fmt.Sprintf("%s/data/%s", c.cfg.MountPath, c.cfg.SecretPath)
	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"api_token":   creds.APIToken,
			"account_id":  creds.AccountID,
			"environment": creds.Environment,
		},
	}
	if _, err := c.client.Logical().WriteWithContext(ctx, path, payload); err != nil {
		return fmt.Errorf("vault: store broker credentials: %w", err)
	}
	return nil
}

// GetBrokerCredentials returns the broker secret, from cache when possible.
func (c *Client) GetBrokerCredentials(ctx context.Context) (*BrokerCredentials, error) {
	c.mu.RLock()
	if c.cached != nil {
		defer c.mu.RUnlock()
		return c.cached, nil
	}
	c.mu.RUnlock()

	if !c.cfg.Enabled {
		return nil, fmt.Errorf("vault: disabled and no cached credentials")
	}

	path := fmt.Sprintf("%s/data/%s", c.cfg.MountPath, c.cfg.SecretPath)
	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("vault: read broker credentials: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("vault: no secret at %s", path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("vault: unexpected secret format at %s", path)
	}

	creds := &BrokerCredentials{
		APIToken:    stringField(data, "api_token"),
		AccountID:   stringField(data, "account_id"),
		Environment: stringField(data, "environment"),
	}

	c.mu.Lock()
	c.cached = creds
	c.mu.Unlock()
	return creds, nil
}

func stringField(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
