package secretstore

import "context"

// SecretStore holds a single client secret.
type SecretStore interface {
	// Read returns the secret. An empty secret is an error.
	Read(ctx context.Context) (string, error)

	// Write replaces the secret. Read-only backends return an error.
	Write(ctx context.Context, secret string) error
}
