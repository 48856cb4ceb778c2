package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/xavierca1/leadflow/internal/entity"
)

const DefaultBaseURL = "https://graph.facebook.com/v18.0"

// Client sends template messages through the WhatsApp Cloud API.
type Client struct {
	accessToken  string
	phoneID      string
	notifyTo     string
	templateName string
	baseURL      string
	http         *http.Client
}

func NewClient(accessToken, phoneID, notifyTo, templateName string) *Client {
	return &Client{
		accessToken:  accessToken,
		phoneID:      phoneID,
		notifyTo:     notifyTo,
		templateName: templateName,
		baseURL:      DefaultBaseURL,
		http:         &http.Client{Timeout: 10 * time.Second},
	}
}

// NotifyContacted tells the owner's number that a lead was just contacted.
// Template parameters: company, contact name, email.
func (c *Client) NotifyContacted(ctx context.Context, ev entity.StageChangedEvent) error {
	return c.SendMessage(ctx, SendMessageInput{
		PhoneNumber:  c.notifyTo,
		TemplateName: c.templateName,
		Parameters:   []string{ev.Company, orDash(ev.ContactName), orDash(ev.Email)},
	})
}

func (c *Client) SendMessage(ctx context.Context, input SendMessageInput) error {
	if c.accessToken == "" || c.phoneID == "" {
		return fmt.Errorf("whatsapp not configured")
	}

	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                input.PhoneNumber,
		"type":              "template",
		"template": map[string]interface{}{
			"name": input.TemplateName,
			"language": map[string]string{
				"code": "pt_BR",
			},
			"components": []map[string]interface{}{
				{
					"type":       "body",
					"parameters": convertParametersToAPI(input.Parameters),
				},
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("whatsapp: encode payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("whatsapp: build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: send: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	var result SendMessageResponse
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &result); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("whatsapp: decode response: %w", err)
		}
	}

	if result.Error != nil {
		return fmt.Errorf("whatsapp: %s (code %d)", result.Error.Message, result.Error.Code)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("whatsapp api error: %d", resp.StatusCode)
	}
	return nil
}

func convertParametersToAPI(params []string) []map[string]string {
	result := make([]map[string]string, 0, len(params))
	for _, param := range params {
		result = append(result, map[string]string{
			"type": "text",
			"text": param,
		})
	}
	return result
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
