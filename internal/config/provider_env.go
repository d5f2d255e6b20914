package config

import (
	"context"
	"os"
)

// EnvVarProvider implements SecretProvider from the process environment.
// It backs local runs and docker-compose stacks, where DATABASE_URL and the
// queue prefix are set in plain text, often through .env, and SSM Parameter
// Store is not reachable.
type EnvVarProvider struct{}

// NewEnvVarProvider creates a new EnvVarProvider.
func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{}
}

// GetParametersBatch looks each key up with os.LookupEnv. Keys that are not
// set are left out of the result, so the loader reports them as missing
// parameters the same way it would for SSM.
//
// ctx is unused: environment lookups neither block nor cancel.
func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if val, ok := os.LookupEnv(key); ok {
			result[key] = val
		}
	}
	return result, nil
}
