// Package twilio is a small client for the Twilio Messages API, used
// to deliver WhatsApp reminders.
package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a client for one sending number. from is the
// WhatsApp address messages are sent from, e.g. "whatsapp:+14155238886".
func NewClient(accountSID, authToken, from string) *Client {
	return &Client{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		baseURL:    "https://api.twilio.com",
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Configured reports whether credentials and a sending number are set.
func (c *Client) Configured() bool {
	return c.accountSID != "" && c.authToken != "" && c.from != ""
}

// Send delivers one message to a WhatsApp address.
func (c *Client) Send(ctx context.Context, to, body string) error {
	if !c.Configured() {
		return errors.New("twilio: client not configured")
	}
	form := url.Values{}
	form.Set("From", c.from)
	form.Set("To", to)
	form.Set("Body", body)

	endpoint := c.baseURL + "/2010-04-01/Accounts/" + c.accountSID + "/Messages.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Message != "" {
			return errors.New("twilio: " + apiErr.Message)
		}
		return errors.New("twilio: unexpected status " + resp.Status)
	}
	return nil
}

// CheckCredentials verifies the account SID and auth token by fetching
// the account resource. Used by the health loop.
func (c *Client) CheckCredentials(ctx context.Context) bool {
	if !c.Configured() {
		return false
	}
	endpoint := c.baseURL + "/2010-04-01/Accounts/" + c.accountSID + ".json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false
	}
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	var account struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return false
	}
	return account.Status == "active"
}
