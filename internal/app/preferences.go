package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const preferencesKey = "user_preferences"

// Preferences is the user-editable settings surface: sync cadence, which
// sources and categories are enabled, notification toggle, and free-form
// guidance fed into the weekly breakdown prompt.
type Preferences struct {
	SyncIntervalMinutes   int      `json:"syncIntervalMinutes"`
	EnabledSources        []string `json:"enabledSources"`
	EnabledCategories     []string `json:"enabledCategories"`
	NotificationsEnabled  bool     `json:"notificationsEnabled"`
	UserGuidance          string   `json:"userGuidance,omitempty"`
}

// defaultPreferences mirrors the factory-default settings shown on first
// run, before save_preferences has ever been called.
func defaultPreferences() Preferences {
	return Preferences{
		SyncIntervalMinutes: 15,
		EnabledCategories:   []string{"sales", "marketing", "product", "engineering", "research"},
		NotificationsEnabled: true,
	}
}

// GetPreferences returns the saved preferences, or the factory defaults if
// none have been saved yet.
func (a *App) GetPreferences(ctx context.Context) (Preferences, error) {
	raw, ok, err := a.store.GetPreference(ctx, preferencesKey)
	if err != nil {
		return Preferences{}, err
	}
	if !ok {
		return defaultPreferences(), nil
	}
	var prefs Preferences
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
		return Preferences{}, fmt.Errorf("app: decoding saved preferences: %w", err)
	}
	return prefs, nil
}

// SavePreferences persists preferences and, if the sync interval changed,
// applies it to the running background loop immediately.
func (a *App) SavePreferences(ctx context.Context, prefs Preferences) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("app: encoding preferences: %w", err)
	}
	if err := a.store.SetPreference(ctx, preferencesKey, string(raw)); err != nil {
		return err
	}
	if prefs.SyncIntervalMinutes > 0 {
		a.engine.SetInterval(time.Duration(prefs.SyncIntervalMinutes) * time.Minute)
	}
	return nil
}
