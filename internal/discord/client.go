// Package discord wraps the Discord API surfaces the trial bot consumes: the
// OAuth2 token exchange, the profile fetch, and direct-message delivery of
// dispensed keys.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const defaultAPIBase = "https://discord.com/api"

// Config carries the application credentials loaded at process start.
type Config struct {
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	BotToken     string        `mapstructure:"bot_token"`
	RedirectURI  string        `mapstructure:"redirect_uri"`
	APIBase      string        `mapstructure:"api_base"`
	Timeout      time.Duration `mapstructure:"timeout"`

	// MessageTemplate optionally overrides the embedded DM template.
	MessageTemplate string `mapstructure:"message_template"`
}

// Profile is the subset of the Discord user object the bot needs.
type Profile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Embed is a Discord message embed payload.
type Embed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp,omitempty"`
}

// Client talks to the Discord API. Every call is bounded by the configured
// HTTP client timeout.
type Client struct {
	oauth    *oauth2.Config
	botToken string
	apiBase  string
	http     *http.Client
	template *messageTemplate
}

// New builds a client from config.
func New(cfg Config) (*Client, error) {
	apiBase := strings.TrimRight(cfg.APIBase, "/")
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	tmpl, err := loadMessageTemplate(cfg.MessageTemplate)
	if err != nil {
		return nil, err
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       []string{"identify", "email"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   apiBase + "/oauth2/authorize",
				TokenURL:  apiBase + "/oauth2/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		botToken: cfg.BotToken,
		apiBase:  apiBase,
		http:     &http.Client{Timeout: timeout},
		template: tmpl,
	}, nil
}

// AuthorizeURL returns the consent page URL carrying the state token.
func (c *Client) AuthorizeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// ExchangeCode swaps an authorization code for an access token.
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchange authorization code: %w", err)
	}
	return token.AccessToken, nil
}

// FetchProfile loads the authorizing user's profile with their access token.
// The email field is empty when the grant lacked the email scope.
func (c *Client) FetchProfile(ctx context.Context, accessToken string) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/users/@me", nil)
	if err != nil {
		return Profile{}, fmt.Errorf("build profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var profile Profile
	if err := c.doJSON(req, &profile); err != nil {
		return Profile{}, fmt.Errorf("fetch profile: %w", err)
	}
	return profile, nil
}

// OpenDirectChannel opens (or reuses) the DM channel with a user.
func (c *Client) OpenDirectChannel(ctx context.Context, userID string) (string, error) {
	body, _ := json.Marshal(map[string]string{"recipient_id": userID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiBase+"/v10/users/@me/channels", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build channel request: %w", err)
	}
	c.authorizeBot(req)

	var channel struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(req, &channel); err != nil {
		return "", fmt.Errorf("open direct channel: %w", err)
	}
	return channel.ID, nil
}

// SendKeyMessage delivers the trial key embed to an open DM channel.
func (c *Client) SendKeyMessage(ctx context.Context, channelID, key string) error {
	payload, _ := json.Marshal(map[string][]Embed{
		"embeds": {c.template.render(key)},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/v10/channels/%s/messages", c.apiBase, channelID), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build message request: %w", err)
	}
	c.authorizeBot(req)

	if err := c.doJSON(req, nil); err != nil {
		return fmt.Errorf("send key message: %w", err)
	}
	return nil
}

func (c *Client) authorizeBot(req *http.Request) {
	req.Header.Set("Authorization", "Bot "+c.botToken)
	req.Header.Set("Content-Type", "application/json")
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord api status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
