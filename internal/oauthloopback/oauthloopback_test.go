package oauthloopback

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAwaitReturnsCodeOnValidCallback(t *testing.T) {
	l, err := Listen(0)
	require.NoError(t, err)
	port := l.Port()

	go func() {
		time.Sleep(20 * time.Millisecond)
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/callback?code=abc123&state=xyz789", port))
		if err == nil {
			resp.Body.Close()
		}
	}()

	result, err := l.Await(context.Background(), "xyz789", time.Second)
	require.NoError(t, err)
	require.Equal(t, "abc123", result.Code)
}

func TestAwaitRejectsStateMismatch(t *testing.T) {
	l, err := Listen(0)
	require.NoError(t, err)
	port := l.Port()

	go func() {
		time.Sleep(20 * time.Millisecond)
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/callback?code=abc123&state=wrong", port))
		if err == nil {
			resp.Body.Close()
		}
	}()

	_, err = l.Await(context.Background(), "xyz789", time.Second)
	require.ErrorIs(t, err, ErrStateMismatch)
}

func TestAwaitRejectsMissingCode(t *testing.T) {
	l, err := Listen(0)
	require.NoError(t, err)
	port := l.Port()

	go func() {
		time.Sleep(20 * time.Millisecond)
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/callback?state=xyz789", port))
		if err == nil {
			resp.Body.Close()
		}
	}()

	_, err = l.Await(context.Background(), "xyz789", time.Second)
	require.ErrorIs(t, err, ErrInvalidCallback)
}

func TestAwaitTimesOutWithNoCallback(t *testing.T) {
	l, err := Listen(0)
	require.NoError(t, err)

	_, err = l.Await(context.Background(), "xyz789", 30*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
}

func TestAwaitSurfacesOAuthProviderError(t *testing.T) {
	l, err := Listen(0)
	require.NoError(t, err)
	port := l.Port()

	go func() {
		time.Sleep(20 * time.Millisecond)
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/callback?error=access_denied", port))
		if err == nil {
			resp.Body.Close()
		}
	}()

	_, err = l.Await(context.Background(), "xyz789", time.Second)
	require.ErrorIs(t, err, ErrInvalidCallback)
}
