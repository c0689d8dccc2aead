package controllers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/flomify/flomify/internal/pkg/billing"
	"github.com/flomify/flomify/internal/pkg/usercontext"
)

var testNow = time.Date(2024, 12, 15, 12, 0, 0, 0, time.UTC)

func newTestService(repo billing.Repository) *billing.Service {
	return billing.NewService(repo, billing.WithClock(func() time.Time { return testNow }))
}

// withUser authenticates every request of the app as userID.
func withUser(userID, email string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if userID != "" {
			usercontext.Set(c, usercontext.UserContext{UserID: userID, Email: email, IsLoggedIn: true})
		}
		return c.Next()
	}
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return out
}

func jsonRequest(method, target, body string) *http.Request {
	req, _ := http.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

type recordingMetrics struct {
	mu       sync.Mutex
	copies   []string
	requests []string
}

func (m *recordingMetrics) RecordItemCopy(platform, license string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.copies = append(m.copies, platform+"/"+license)
}

func (m *recordingMetrics) RecordProviderRequest(operation, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, operation+"/"+status)
}
