package billing

import (
	"encoding/json"
	"testing"
)

// webhookBody builds a provider webhook document for tests.
func webhookBody(t *testing.T, eventName, dataType, dataID, userID string, attrs map[string]interface{}) []byte {
	t.Helper()
	meta := map[string]interface{}{"event_name": eventName}
	if userID != "" {
		meta["custom_data"] = map[string]interface{}{"user_id": userID}
	}
	if dataType == "" {
		dataType = "subscriptions"
	}
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	raw, err := json.Marshal(map[string]interface{}{
		"meta": meta,
		"data": map[string]interface{}{
			"type":       dataType,
			"id":         dataID,
			"attributes": attrs,
		},
	})
	if err != nil {
		t.Fatalf("marshal webhook body: %v", err)
	}
	return raw
}

func mustParse(t *testing.T, raw []byte) *WebhookPayload {
	t.Helper()
	p, err := ParseWebhookPayload(raw)
	if err != nil {
		t.Fatalf("ParseWebhookPayload: %v", err)
	}
	return p
}
