package e2e

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/toinfinity/infinity-go/internal/api"
	"github.com/toinfinity/infinity-go/internal/config"
	"github.com/toinfinity/infinity-go/internal/mockapi"
	"github.com/toinfinity/infinity-go/internal/session"
)

const testToken = "e2e-test-token"

// testEnv wires a real API client and session against an in-process mock
// server over loopback HTTP.
type testEnv struct {
	server  *mockapi.Server
	client  *api.Client
	session *session.Session
	storage string
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	server := mockapi.New(mockapi.Config{Token: testToken, Log: zerolog.Nop()})
	baseURL, err := server.Start()
	if err != nil {
		t.Fatalf("start mock server: %v", err)
	}
	t.Cleanup(func() { _ = server.Shutdown() })

	client := api.NewClient(&config.APIConfig{
		BaseURL:        baseURL,
		Token:          testToken,
		TimeoutSeconds: 10,
	}, zerolog.Nop())

	storage := t.TempDir()
	sess, err := session.New(context.Background(), client, "roomscene", storage, zerolog.Nop())
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return &testEnv{server: server, client: client, session: sess, storage: storage}
}
