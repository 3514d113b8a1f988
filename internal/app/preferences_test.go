package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetPreferencesReturnsDefaultsWhenUnset(t *testing.T) {
	a := newTestApp(t)
	prefs, err := a.GetPreferences(context.Background())
	require.NoError(t, err)
	require.Equal(t, defaultPreferences(), prefs)
}

func TestSavePreferencesRoundTripsAndUpdatesSyncInterval(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	prefs := Preferences{
		SyncIntervalMinutes: 30,
		EnabledSources:      []string{"slack"},
		EnabledCategories:   []string{"engineering"},
		NotificationsEnabled: false,
		UserGuidance:        "focus on launches",
	}
	require.NoError(t, a.SavePreferences(ctx, prefs))

	got, err := a.GetPreferences(ctx)
	require.NoError(t, err)
	require.Equal(t, prefs, got)
	require.Equal(t, 30*time.Minute, a.engine.Interval())
}
