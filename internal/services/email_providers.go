package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"net/url"
	"strings"
)

func formatAddress(name, email string) string {
	if name == "" {
		return email
	}
	return (&mail.Address{Name: name, Address: email}).String()
}

// doProviderRequest выполняет запрос и превращает не-2xx в *ProviderError.
func doProviderRequest(client *http.Client, provider string, req *http.Request) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &ProviderError{Provider: provider, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func newJSONRequest(ctx context.Context, endpoint string, payload any) (*http.Request, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// ---- Resend ----

type ResendProvider struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

func NewResendProvider(apiKey string, client *http.Client) *ResendProvider {
	return &ResendProvider{APIKey: apiKey, BaseURL: "https://api.resend.com", HTTPClient: client}
}

func (p *ResendProvider) Name() string { return "resend" }

func (p *ResendProvider) Send(ctx context.Context, msg EmailMessage) error {
	req, err := newJSONRequest(ctx, p.BaseURL+"/emails", map[string]any{
		"from":    formatAddress(msg.FromName, msg.From),
		"to":      []string{msg.To},
		"subject": msg.Subject,
		"html":    msg.HTML,
		"text":    msg.Text,
	})
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	return doProviderRequest(p.HTTPClient, p.Name(), req)
}

// ---- SendGrid ----

type SendGridProvider struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

func NewSendGridProvider(apiKey string, client *http.Client) *SendGridProvider {
	return &SendGridProvider{APIKey: apiKey, BaseURL: "https://api.sendgrid.com", HTTPClient: client}
}

func (p *SendGridProvider) Name() string { return "sendgrid" }

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridRequest struct {
	Personalizations []struct {
		To []sendGridAddress `json:"to"`
	} `json:"personalizations"`
	From    sendGridAddress   `json:"from"`
	Subject string            `json:"subject"`
	Content []sendGridContent `json:"content"`
}

func (p *SendGridProvider) Send(ctx context.Context, msg EmailMessage) error {
	body := sendGridRequest{
		From:    sendGridAddress{Email: msg.From, Name: msg.FromName},
		Subject: msg.Subject,
		// text/plain обязан идти первым
		Content: []sendGridContent{
			{Type: "text/plain", Value: msg.Text},
			{Type: "text/html", Value: msg.HTML},
		},
	}
	body.Personalizations = make([]struct {
		To []sendGridAddress `json:"to"`
	}, 1)
	body.Personalizations[0].To = []sendGridAddress{{Email: msg.To, Name: msg.ToName}}

	req, err := newJSONRequest(ctx, p.BaseURL+"/v3/mail/send", body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	return doProviderRequest(p.HTTPClient, p.Name(), req)
}

// ---- Mailgun ----

type MailgunProvider struct {
	APIKey     string
	Domain     string
	BaseURL    string
	HTTPClient *http.Client
}

func NewMailgunProvider(apiKey, domain string, client *http.Client) *MailgunProvider {
	return &MailgunProvider{APIKey: apiKey, Domain: domain, BaseURL: "https://api.mailgun.net", HTTPClient: client}
}

func (p *MailgunProvider) Name() string { return "mailgun" }

func (p *MailgunProvider) Send(ctx context.Context, msg EmailMessage) error {
	form := url.Values{}
	form.Set("from", formatAddress(msg.FromName, msg.From))
	form.Set("to", formatAddress(msg.ToName, msg.To))
	form.Set("subject", msg.Subject)
	form.Set("text", msg.Text)
	form.Set("html", msg.HTML)

	endpoint := fmt.Sprintf("%s/v3/%s/messages", p.BaseURL, url.PathEscape(p.Domain))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("api", p.APIKey)
	return doProviderRequest(p.HTTPClient, p.Name(), req)
}

// ---- Postmark ----

type PostmarkProvider struct {
	ServerToken string
	BaseURL     string
	HTTPClient  *http.Client
}

func NewPostmarkProvider(serverToken string, client *http.Client) *PostmarkProvider {
	return &PostmarkProvider{ServerToken: serverToken, BaseURL: "https://api.postmarkapp.com", HTTPClient: client}
}

func (p *PostmarkProvider) Name() string { return "postmark" }

func (p *PostmarkProvider) Send(ctx context.Context, msg EmailMessage) error {
	req, err := newJSONRequest(ctx, p.BaseURL+"/email", map[string]string{
		"From":          formatAddress(msg.FromName, msg.From),
		"To":            formatAddress(msg.ToName, msg.To),
		"Subject":       msg.Subject,
		"HtmlBody":      msg.HTML,
		"TextBody":      msg.Text,
		"MessageStream": "outbound",
	})
	if err != nil {
		return err
	}
	req.Header.Set("X-Postmark-Server-Token", p.ServerToken)
	return doProviderRequest(p.HTTPClient, p.Name(), req)
}
