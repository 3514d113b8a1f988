package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveAPIKeyReplacesServiceAccountCredential(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, a.SaveGeminiServiceAccountCredentials(ctx, `{"project_id":"proj","client_email":"x@y.iam.gserviceaccount.com","private_key":"pk","token_uri":"https://oauth2.googleapis.com/token"}`, ""))
	authType, err := a.GeminiAuthType(ctx)
	require.NoError(t, err)
	require.Equal(t, "service_account", authType)

	require.NoError(t, a.SaveAPIKey(ctx, "sk-test"))
	authType, err = a.GeminiAuthType(ctx)
	require.NoError(t, err)
	require.Equal(t, "api_key", authType)

	ok, err := a.HasAPIKey(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyGeminiConnectionErrorsWithoutCredentials(t *testing.T) {
	a := newTestApp(t)
	err := a.VerifyGeminiConnection(context.Background())
	require.Error(t, err)
}

func TestSelectAtlassianResourceRecordsPreference(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, a.SelectAtlassianResource(ctx, "cloud-123"))

	raw, ok, err := a.store.GetPreference(ctx, "atlassian_cloud_id")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "cloud-123", raw)
}
