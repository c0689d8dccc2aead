package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/flomify/flomify/internal/pkg/config"
)

const jsonAPIContentType = "application/vnd.api+json"

// ErrProviderRequest is returned when the billing provider API rejects a request.
var ErrProviderRequest = errors.New("billing provider request failed")

// LemonSqueezyClient talks to the billing provider's outbound API.
type LemonSqueezyClient struct {
	APIKey    string
	StoreID   string
	VariantID string
	APIURL    string
	ClientURL string

	HTTPClient *http.Client
}

// NewLemonSqueezyClient creates a client from validated configuration.
func NewLemonSqueezyClient(billing config.BillingConfig, clientURL string) (*LemonSqueezyClient, error) {
	if strings.TrimSpace(billing.APIKey) == "" {
		return nil, fmt.Errorf("%w: LEMONSQUEEZY_API_KEY is not configured", ErrConfiguration)
	}
	if strings.TrimSpace(billing.StoreID) == "" || strings.TrimSpace(billing.VariantID) == "" {
		return nil, fmt.Errorf("%w: LEMONSQUEEZY_STORE_ID/LEMONSQUEEZY_VARIANT_ID are not configured", ErrConfiguration)
	}
	apiURL := strings.TrimRight(billing.APIURL, "/")
	if apiURL == "" {
		apiURL = config.DefaultLemonSqueezyAPIURL
	}
	return &LemonSqueezyClient{
		APIKey:    billing.APIKey,
		StoreID:   billing.StoreID,
		VariantID: billing.VariantID,
		APIURL:    apiURL,
		ClientURL: strings.TrimRight(clientURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}, nil
}

type checkoutRequest struct {
	Data checkoutData `json:"data"`
}

type checkoutData struct {
	Type          string                `json:"type"`
	Attributes    checkoutAttributes    `json:"attributes"`
	Relationships checkoutRelationships `json:"relationships"`
}

type checkoutAttributes struct {
	CustomPrice    *int                  `json:"custom_price"`
	ProductOptions checkoutProductOption `json:"product_options"`
	CheckoutData   checkoutCustomerData  `json:"checkout_data"`
}

type checkoutProductOption struct {
	EnabledVariants []string `json:"enabled_variants"`
	RedirectURL     string   `json:"redirect_url,omitempty"`
}

type checkoutCustomerData struct {
	Email  string            `json:"email,omitempty"`
	Custom map[string]string `json:"custom"`
}

type checkoutRelationships struct {
	Store   relationship `json:"store"`
	Variant relationship `json:"variant"`
}

type relationship struct {
	Data relationshipData `json:"data"`
}

type relationshipData struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type checkoutResponse struct {
	Data struct {
		Attributes struct {
			URL string `json:"url"`
		} `json:"attributes"`
	} `json:"data"`
}

// SuccessURL is where the provider redirects after a completed checkout.
func (c *LemonSqueezyClient) SuccessURL() string {
	return c.ClientURL + "/subscription/success"
}

// CreateCheckout creates a hosted checkout for userID and returns its URL.
// The user id travels as custom data and comes back on every webhook.
func (c *LemonSqueezyClient) CreateCheckout(ctx context.Context, userID, email string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("user id is required")
	}

	body := checkoutRequest{
		Data: checkoutData{
			Type: "checkouts",
			Attributes: checkoutAttributes{
				ProductOptions: checkoutProductOption{
					EnabledVariants: []string{c.VariantID},
					RedirectURL:     c.SuccessURL(),
				},
				CheckoutData: checkoutCustomerData{
					Email:  strings.TrimSpace(email),
					Custom: map[string]string{"user_id": userID},
				},
			},
			Relationships: checkoutRelationships{
				Store:   relationship{Data: relationshipData{Type: "stores", ID: c.StoreID}},
				Variant: relationship{Data: relationshipData{Type: "variants", ID: c.VariantID}},
			},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	respBody, err := c.do(ctx, http.MethodPost, "/v1/checkouts", payload)
	if err != nil {
		return "", err
	}

	var out checkoutResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("%w: decode checkout response: %v", ErrProviderRequest, err)
	}
	if strings.TrimSpace(out.Data.Attributes.URL) == "" {
		return "", fmt.Errorf("%w: checkout response without url", ErrProviderRequest)
	}
	return out.Data.Attributes.URL, nil
}

// CancelSubscription cancels a subscription at the provider. The resulting
// state change arrives later as a subscription_cancelled webhook.
func (c *LemonSqueezyClient) CancelSubscription(ctx context.Context, providerSubscriptionID string) error {
	id := strings.TrimSpace(providerSubscriptionID)
	if id == "" {
		return errors.New("subscription id is required")
	}
	_, err := c.do(ctx, http.MethodDelete, "/v1/subscriptions/"+url.PathEscape(id), nil)
	return err
}

func (c *LemonSqueezyClient) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.APIURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", jsonAPIContentType)
	if payload != nil {
		req.Header.Set("Content-Type", jsonAPIContentType)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderRequest, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s %s status=%d body=%s", ErrProviderRequest, method, path, resp.StatusCode, string(body))
	}
	return body, nil
}
