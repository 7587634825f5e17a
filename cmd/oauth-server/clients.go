package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/giantswarm/oauth-server/server"
	"github.com/giantswarm/oauth-server/storage"
)

// clientsFile is the on-disk client registry
type clientsFile struct {
	Clients []clientEntry `yaml:"clients"`
}

type clientEntry struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Type        string `yaml:"type"`
	RedirectURI string `yaml:"redirect_uri"`

	// One of the secret fields may be set. SecretEnv names an environment
	// variable holding the plaintext secret.
	Secret     string `yaml:"secret"`
	SecretEnv  string `yaml:"secret_env"`
	SecretHash string `yaml:"secret_hash"`
}

// loadClients reads and validates the client registry at path
func loadClients(path string) ([]*storage.Client, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading clients file: %w", err)
	}

	var file clientsFile
	if err := yaml.UnmarshalWithOptions(data, &file, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("parsing clients file: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Clients))
	clients := make([]*storage.Client, 0, len(file.Clients))
	for idx, e := range file.Clients {
		client, err := e.toClient()
		if err != nil {
			return nil, fmt.Errorf("client at index %d: %w", idx, err)
		}
		if _, dup := seen[client.ID]; dup {
			return nil, fmt.Errorf("client at index %d: duplicate id %q", idx, client.ID)
		}
		seen[client.ID] = struct{}{}
		clients = append(clients, client)
	}
	return clients, nil
}

func (e clientEntry) toClient() (*storage.Client, error) {
	secret := e.Secret
	if e.SecretEnv != "" {
		if secret != "" {
			return nil, fmt.Errorf("secret and secret_env are mutually exclusive")
		}
		var ok bool
		if secret, ok = os.LookupEnv(e.SecretEnv); !ok || secret == "" {
			return nil, fmt.Errorf("environment variable %s is not set", e.SecretEnv)
		}
	}
	if secret != "" && e.SecretHash != "" {
		return nil, fmt.Errorf("secret and secret_hash are mutually exclusive")
	}

	client := &storage.Client{
		ID:          e.ID,
		Name:        e.Name,
		Description: e.Description,
		Type:        storage.ClientType(e.Type),
		RedirectURI: e.RedirectURI,
		Secret:      secret,
		SecretHash:  e.SecretHash,
		Registered:  true,
	}
	if err := server.ValidateClient(client); err != nil {
		return nil, err
	}
	return client, nil
}

// seedClients stores the registry through the server so every client is validated and audited
func seedClients(ctx context.Context, srv *server.Server, clients []*storage.Client) error {
	for _, c := range clients {
		if err := srv.SaveClient(ctx, c); err != nil {
			return fmt.Errorf("saving client %q: %w", c.ID, err)
		}
	}
	return nil
}
