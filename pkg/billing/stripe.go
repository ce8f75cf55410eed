package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	stripeAPIBase = "https://api.stripe.com/v1"

	// Signatures older than this are rejected to bound replay windows
	signatureTolerance = 5 * time.Minute
)

// Webhook verification errors
var (
	ErrMissingSignature = errors.New("missing stripe signature header")
	ErrInvalidSignature = errors.New("invalid stripe signature")
	ErrStaleSignature   = errors.New("stripe signature timestamp outside tolerance")
)

// StripeClient talks to the Stripe REST API. Only the customer surface is
// used; subscription state arrives via webhooks.
type StripeClient struct {
	secretKey  string
	httpClient *http.Client
	baseURL    string
}

// NewStripeClient creates a Stripe API client
func NewStripeClient(secretKey string) *StripeClient {
	return &StripeClient{
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		baseURL: stripeAPIBase,
	}
}

// Customer is the subset of Stripe's customer object the service consumes
type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CreateCustomer creates a billing customer tagged with the organization id
func (c *StripeClient) CreateCustomer(ctx context.Context, name, email, clerkOrgID string) (*Customer, error) {
	form := url.Values{}
	form.Set("name", name)
	if email != "" {
		form.Set("email", email)
	}
	form.Set("metadata[clerk_org_id]", clerkOrgID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/customers",
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build customer request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stripe customer request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read stripe response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stripe customer creation failed: status %d", resp.StatusCode)
	}

	var customer Customer
	if err := json.Unmarshal(body, &customer); err != nil {
		return nil, fmt.Errorf("failed to decode stripe customer: %w", err)
	}

	return &customer, nil
}

// VerifySignature validates a Stripe-Signature header against the raw
// webhook payload. The header carries a timestamp and one or more v1
// HMAC-SHA256 signatures over "<timestamp>.<payload>".
func VerifySignature(payload []byte, header, secret string, now time.Time) error {
	if header == "" {
		return ErrMissingSignature
	}

	var timestamp int64
	var signatures []string

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return ErrInvalidSignature
			}
			timestamp = ts
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}

	if timestamp == 0 || len(signatures) == 0 {
		return ErrInvalidSignature
	}

	age := now.Sub(time.Unix(timestamp, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return ErrStaleSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}

	return ErrInvalidSignature
}

// SignPayload produces a Stripe-Signature header value for a payload. Used
// by tests and local tooling.
func SignPayload(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}
