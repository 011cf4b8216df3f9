package secretstore

import (
	"context"
	"fmt"
	"os"
)

// EnvStore reads the client secret from an environment variable.
type EnvStore struct {
	envKey string
}

// Compile-time check to ensure EnvStore implements SecretStore
var _ SecretStore = (*EnvStore)(nil)

// NewEnvStore creates an EnvStore for envKey. The variable is looked up on
// Read, so it may be set after construction.
func NewEnvStore(envKey string) (*EnvStore, error) {
	if envKey == "" {
		return nil, fmt.Errorf("environment key cannot be empty")
	}
	return &EnvStore{envKey: envKey}, nil
}

func (e *EnvStore) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	secret, ok := os.LookupEnv(e.envKey)
	if !ok {
		return "", fmt.Errorf("environment variable %s not set", e.envKey)
	}
	if secret == "" {
		return "", fmt.Errorf("environment variable %s is empty", e.envKey)
	}
	return secret, nil
}

// Write always fails; environment variables are managed outside the process.
func (e *EnvStore) Write(ctx context.Context, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("environment variable storage is read-only")
}
