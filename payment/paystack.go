/*
Package payment reconciles Paystack gateway notifications.

PURPOSE:
  This file holds the provider plumbing: webhook signature validation
  and the transaction-lookup client used to independently re-verify
  every event before trusting its payload.

SIGNATURES:
  Paystack signs webhook bodies with HMAC-SHA512 using the account's
  secret key and sends the hex digest in the x-paystack-signature
  header. Comparison is constant-time.

SEE ALSO:
  - reconciler.go: The event state machine that consumes these
*/
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/casaclean/booking-engine/engine"
)

// SignatureHeader is the webhook signature header Paystack sends.
const SignatureHeader = "x-paystack-signature"

// VerifySignature checks the webhook signature against the raw body.
func VerifySignature(secretKey string, body []byte, signature string) error {
	mac := hmac.New(sha512.New, []byte(secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return engine.ErrInvalidSignature
	}
	return nil
}

// =============================================================================
// TRANSACTION VERIFICATION CLIENT
// =============================================================================

// Transaction is the provider's view of a payment, from the verify API.
type Transaction struct {
	Reference     string
	Status        string
	AmountMinor   int64
	CustomerEmail string
}

// Verifier looks a transaction up at the provider. The reconciler depends
// on this interface so tests can stub the provider.
type Verifier interface {
	VerifyTransaction(ctx context.Context, reference string) (*Transaction, error)
}

const defaultBaseURL = "https://api.paystack.co"

// Client is the live Paystack verify-API client.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// NewClient builds a verify client. baseURL may be empty for the real API.
func NewClient(secretKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// verifyResponse is Paystack's verify envelope.
type verifyResponse struct {
	Status bool `json:"status"`
	Data   struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
		Customer  struct {
			Email string `json:"email"`
		} `json:"customer"`
	} `json:"data"`
}

// VerifyTransaction fetches the transaction from the provider. A transport
// failure or non-2xx response is a retryable reconciliation failure.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*Transaction, error) {
	url := fmt.Sprintf("%s/transaction/verify/%s", c.baseURL, reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build verify request: %v", engine.ErrPersistence, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: verify %s: %v", engine.ErrPersistence, reference, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: verify %s: provider returned %d", engine.ErrPersistence, reference, resp.StatusCode)
	}

	var envelope verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%w: decode verify response: %v", engine.ErrPersistence, err)
	}
	if !envelope.Status {
		return nil, &engine.VerificationMismatchError{
			Reference:      reference,
			ProviderStatus: "not found",
		}
	}

	return &Transaction{
		Reference:     envelope.Data.Reference,
		Status:        envelope.Data.Status,
		AmountMinor:   envelope.Data.Amount,
		CustomerEmail: envelope.Data.Customer.Email,
	}, nil
}
