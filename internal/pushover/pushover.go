// Package pushover implements the Pushover notification API client.
package pushover

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/agusx1211/brood/internal/config"
)

const (
	apiURL = "https://api.pushover.net/1/messages.json"

	// MaxTitleLen is the maximum length for a Pushover notification title.
	MaxTitleLen = 250

	// MaxMessageLen is the maximum length for a Pushover notification message.
	MaxMessageLen = 1024
)

// Priority levels for Pushover notifications.
const (
	PriorityLowest = -2
	PriorityLow    = -1
	PriorityNormal = 0
	PriorityHigh   = 1
)

// ErrNotConfigured is returned when credentials are missing.
var ErrNotConfigured = errors.New("pushover not configured: set pushover.user_key and pushover.app_token")

// Message represents a Pushover notification to send.
type Message struct {
	Title    string
	Body     string
	Priority int
}

// Response is the JSON response from the Pushover API.
type Response struct {
	Status  int      `json:"status"`
	Request string   `json:"request"`
	Errors  []string `json:"errors,omitempty"`
}

// Client sends notifications with one set of credentials.
type Client struct {
	UserKey  string
	AppToken string
	// URL overrides the API endpoint.
	URL  string
	HTTP *http.Client
}

// New returns a client for the configured credentials.
func New(cfg config.PushoverSettings) *Client {
	return &Client{
		UserKey:  strings.TrimSpace(cfg.UserKey),
		AppToken: strings.TrimSpace(cfg.AppToken),
		URL:      apiURL,
		HTTP:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Configured reports whether both credentials are set.
func (c *Client) Configured() bool {
	return c.UserKey != "" && c.AppToken != ""
}

// Send delivers msg. Title and body are cut to the API limits.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	form := url.Values{
		"token":    {c.AppToken},
		"user":     {c.UserKey},
		"title":    {clip(msg.Title, MaxTitleLen)},
		"message":  {clip(msg.Body, MaxMessageLen)},
		"priority": {strconv.Itoa(msg.Priority)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("sending pushover notification: %w", err)
	}
	defer resp.Body.Close()

	var result Response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding pushover response: %w", err)
	}
	if result.Status != 1 {
		return fmt.Errorf("pushover API error: %s", strings.Join(result.Errors, "; "))
	}
	return nil
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Never split a UTF-8 sequence.
	for n > 0 && !utf8Start(s[n]) {
		n--
	}
	return s[:n]
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }
