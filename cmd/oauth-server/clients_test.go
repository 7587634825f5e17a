package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/oauth-server/server"
	"github.com/giantswarm/oauth-server/storage"
	"github.com/giantswarm/oauth-server/storage/memory"
)

func writeClientsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clients.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadClients(t *testing.T) {
	t.Setenv("NATIVE_SECRET", "n4tive")

	path := writeClientsFile(t, `
clients:
  - id: webapp1
    name: Web App
    description: The main web application
    type: web_application
    redirect_uri: https://webapp1.example.com/cb
    secret: s3cret
  - id: native1
    name: CLI
    type: native_application
    redirect_uri: urn:ietf:wg:oauth:2.0:oob
    secret_env: NATIVE_SECRET
  - id: agent1
    type: user_agent_based_application
    redirect_uri: https://agent.example.com/cb
`)

	clients, err := loadClients(path)
	require.NoError(t, err)
	require.Len(t, clients, 3)

	assert.Equal(t, "webapp1", clients[0].ID)
	assert.Equal(t, storage.ClientTypeWebApplication, clients[0].Type)
	assert.Equal(t, "s3cret", clients[0].Secret)
	assert.Equal(t, "The main web application", clients[0].Description)
	assert.True(t, clients[0].Registered)

	assert.Equal(t, "n4tive", clients[1].Secret)
	assert.Equal(t, storage.ClientTypeNativeApplication, clients[1].Type)

	assert.False(t, clients[2].HasSecret())
}

func TestLoadClients_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "unknown field",
			content: "clients:\n  - id: a\n    type: native_application\n    redirect_uri: https://a.example.com\n    colour: red\n",
		},
		{
			name:    "duplicate id",
			content: "clients:\n  - id: a\n    type: native_application\n    redirect_uri: https://a.example.com\n  - id: a\n    type: native_application\n    redirect_uri: https://b.example.com\n",
		},
		{
			name:    "web application without secret",
			content: "clients:\n  - id: a\n    type: web_application\n    redirect_uri: https://a.example.com\n",
		},
		{
			name:    "unknown type",
			content: "clients:\n  - id: a\n    type: service\n    redirect_uri: https://a.example.com\n",
		},
		{
			name:    "secret and hash",
			content: "clients:\n  - id: a\n    type: web_application\n    redirect_uri: https://a.example.com\n    secret: x\n    secret_hash: y\n",
		},
		{
			name:    "secret and env",
			content: "clients:\n  - id: a\n    type: web_application\n    redirect_uri: https://a.example.com\n    secret: x\n    secret_env: OAUTH_TEST_SECRET\n",
		},
		{
			name:    "missing env",
			content: "clients:\n  - id: a\n    type: web_application\n    redirect_uri: https://a.example.com\n    secret_env: OAUTH_TEST_UNSET_SECRET\n",
		},
		{
			name:    "malformed yaml",
			content: "clients: [",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadClients(writeClientsFile(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadClients_MissingFile(t *testing.T) {
	_, err := loadClients(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSeedClients(t *testing.T) {
	store := memory.New()
	defer store.Stop()

	srv, err := server.New(store, &server.Config{AllowAllScopes: true}, nil)
	require.NoError(t, err)

	clients, err := loadClients(writeClientsFile(t, `
clients:
  - id: webapp1
    type: web_application
    redirect_uri: https://webapp1.example.com/cb
    secret: s3cret
`))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, seedClients(ctx, srv, clients))

	got, err := store.GetClient(ctx, "webapp1")
	require.NoError(t, err)
	assert.Equal(t, "https://webapp1.example.com/cb", got.RedirectURI)
	assert.True(t, got.Registered)
}
