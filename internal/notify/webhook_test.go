package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWebhookWithoutURLIsNoop(t *testing.T) {
	n := NewWebhook(Config{})
	_, ok := n.(Noop)
	assert.True(t, ok)
}

func TestWebhookPostsEmbed(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhook(Config{WebhookURL: srv.URL})
	n.Notify(context.Background(), "Key Dispensed", "user 42 was issued a key", SeveritySuccess)

	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "Key Dispensed", got.Embeds[0].Title)
	assert.Equal(t, colorGreen, got.Embeds[0].Color)
	assert.NotEmpty(t, got.Embeds[0].Timestamp)
}

func TestWebhookSwallowsDeliveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	srv.Close() // connection refused from here on

	n := NewWebhook(Config{WebhookURL: srv.URL})
	// Must not panic or surface an error.
	n.Notify(context.Background(), "Rate Limit Exceeded", "ip 1.2.3.4", SeverityAbuse)
}

func TestSeverityColors(t *testing.T) {
	assert.Equal(t, colorGreen, severityColor(SeveritySuccess))
	assert.Equal(t, colorOrange, severityColor(SeverityWarning))
	assert.Equal(t, colorRed, severityColor(SeverityAbuse))
	assert.Equal(t, colorRed, severityColor(SeverityError))
}
