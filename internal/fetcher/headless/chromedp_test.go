package headless

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChromedpValidation(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.Error(t, err)

	f, err := NewChromedp(Config{MaxParallel: 2})
	require.NoError(t, err)
	t.Cleanup(f.Close)
	assert.Equal(t, 2, cap(f.slots))
	assert.Equal(t, defaultNavTimeout, f.cfg.NavigationTimeout)
}

func TestAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	f := &Fetcher{slots: make(chan struct{}, 1)}
	require.NoError(t, f.acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, f.acquire(ctx), context.DeadlineExceeded)

	f.release()
	require.NoError(t, f.acquire(context.Background()))
}

func TestDocumentStatusKeepsFirstDocument(t *testing.T) {
	t.Parallel()

	d := &documentStatus{}
	d.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: 500, URL: "https://example.com/app.js"},
	})
	d.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 403, URL: "https://example.com/jobs"},
	})
	d.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 200, URL: "https://example.com/iframe"},
	})

	status, url := d.result("", "https://req")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "https://example.com/jobs", url)
}

func TestDocumentStatusFallbacks(t *testing.T) {
	t.Parallel()

	status, url := (&documentStatus{}).result("", "https://req")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "https://req", url)

	_, url = (&documentStatus{}).result("https://final", "https://req")
	assert.Equal(t, "https://final", url)
}

func TestToNetworkHeadersSkipsUserAgent(t *testing.T) {
	t.Parallel()

	got := toNetworkHeaders(http.Header{
		"Accept":     {"text/html", "ignored"},
		"User-Agent": {"spoofed"},
		"Empty":      {},
	})
	assert.Equal(t, network.Headers{"Accept": "text/html"}, got)
}
