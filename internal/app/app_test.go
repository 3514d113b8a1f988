package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

// newTestApp builds a real App against a temp data directory. Nothing here
// touches the network: no OAuth tokens are saved, so the Slack/Atlassian
// workers never make a request, and no Gemini credential is saved either.
func newTestApp(t *testing.T) *App {
	t.Helper()
	keyring.MockInit()
	t.Setenv("DAYBOOK_DATA_DIR", t.TempDir())
	t.Setenv("DAYBOOK_DB_FILE", "test.db")
	t.Setenv("GOOGLE_GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")

	a, err := New(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })
	return a
}

func TestNewWiresAppWithoutLLMCredentials(t *testing.T) {
	a := newTestApp(t)

	authType, err := a.GeminiAuthType(context.Background())
	require.NoError(t, err)
	require.Equal(t, "none", authType)

	ok, err := a.HasAPIKey(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}
