package headless

import (
	"context"
	"testing"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/kapwatch/internal/disclosure"
)

func TestFetchRequiresOpenSession(t *testing.T) {
	t.Parallel()

	f := New(Config{}, zap.NewNop())
	_, err := f.Fetch(context.Background())
	require.ErrorIs(t, err, ErrSessionClosed)
	assert.NoError(t, f.Close(), "closing a closed session is a no-op")
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	f := New(Config{Selectors: Selectors{Row: "div.row"}}, nil)
	assert.Equal(t, DefaultPageURL, f.cfg.PageURL)
	assert.Equal(t, "div.row", f.cfg.Selectors.Row)
	assert.Equal(t, DefaultSelectors.Title, f.cfg.Selectors.Title)
	assert.Positive(t, f.cfg.NavigationTimeout)
}

func TestFetcherIsSession(t *testing.T) {
	t.Parallel()

	var f disclosure.Fetcher = New(Config{}, nil)
	_, ok := f.(disclosure.Session)
	assert.True(t, ok)
}

func TestResponseMetaCapturesDocumentStatus(t *testing.T) {
	t.Parallel()

	meta := &responseMeta{}
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: 404},
	})
	assert.Zero(t, meta.status(), "sub-resources are ignored")

	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 503},
	})
	assert.Equal(t, 503, meta.status())

	meta.captureEvent("unrelated event")
	assert.Equal(t, 503, meta.status())
}

func TestForwardCancel(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()

	stop := forwardCancel(parent, cancelChild)
	defer stop()
	cancelParent()
	<-child.Done()
	assert.ErrorIs(t, child.Err(), context.Canceled)
}
