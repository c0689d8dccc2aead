package billing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flomify/flomify/internal/pkg/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *LemonSqueezyClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewLemonSqueezyClient(config.BillingConfig{
		APIKey:    "ls_test_key",
		StoreID:   "11",
		VariantID: "22",
		APIURL:    srv.URL,
	}, "https://app.example.com/")
	if err != nil {
		t.Fatalf("NewLemonSqueezyClient: %v", err)
	}
	return client
}

func TestNewLemonSqueezyClientRequiresCredentials(t *testing.T) {
	_, err := NewLemonSqueezyClient(config.BillingConfig{StoreID: "1", VariantID: "2"}, "")
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration without api key, got %v", err)
	}
	_, err = NewLemonSqueezyClient(config.BillingConfig{APIKey: "k"}, "")
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration without store/variant, got %v", err)
	}
}

func TestCreateCheckout(t *testing.T) {
	var got checkoutRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/checkouts" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer ls_test_key" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != jsonAPIContentType {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", jsonAPIContentType)
		_, _ = w.Write([]byte(`{"data":{"type":"checkouts","id":"c1","attributes":{"url":"https://store.example.com/checkout/c1"}}}`))
	})

	url, err := client.CreateCheckout(context.Background(), "user-1", " ada@example.com ")
	if err != nil {
		t.Fatalf("CreateCheckout: %v", err)
	}
	if url != "https://store.example.com/checkout/c1" {
		t.Fatalf("unexpected checkout url %q", url)
	}
	if got.Data.Attributes.CheckoutData.Custom["user_id"] != "user-1" {
		t.Fatalf("user id not passed as custom data: %+v", got.Data.Attributes.CheckoutData)
	}
	if got.Data.Attributes.CheckoutData.Email != "ada@example.com" {
		t.Fatalf("unexpected email %q", got.Data.Attributes.CheckoutData.Email)
	}
	if got.Data.Relationships.Store.Data.ID != "11" || got.Data.Relationships.Variant.Data.ID != "22" {
		t.Fatalf("unexpected relationships %+v", got.Data.Relationships)
	}
	if got.Data.Attributes.ProductOptions.RedirectURL != "https://app.example.com/subscription/success" {
		t.Fatalf("unexpected redirect url %q", got.Data.Attributes.ProductOptions.RedirectURL)
	}
}

func TestCreateCheckoutProviderError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":[{"detail":"variant not found"}]}`))
	})

	_, err := client.CreateCheckout(context.Background(), "user-1", "ada@example.com")
	if !errors.Is(err, ErrProviderRequest) {
		t.Fatalf("expected ErrProviderRequest, got %v", err)
	}
}

func TestCreateCheckoutMissingURL(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"attributes":{}}}`))
	})

	_, err := client.CreateCheckout(context.Background(), "user-1", "ada@example.com")
	if !errors.Is(err, ErrProviderRequest) {
		t.Fatalf("expected ErrProviderRequest, got %v", err)
	}
}

func TestCancelSubscription(t *testing.T) {
	var method, path string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		_, _ = w.Write([]byte(`{"data":{"type":"subscriptions","id":"sub_1"}}`))
	})

	if err := client.CancelSubscription(context.Background(), "sub_1"); err != nil {
		t.Fatalf("CancelSubscription: %v", err)
	}
	if method != http.MethodDelete || path != "/v1/subscriptions/sub_1" {
		t.Fatalf("unexpected request %s %s", method, path)
	}
	if err := client.CancelSubscription(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty subscription id")
	}
}
