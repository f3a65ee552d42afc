package cli

import (
	"fmt"

	"github.com/felixgeelhaar/persona/internal/config"
	"github.com/felixgeelhaar/persona/internal/credential"
	"github.com/felixgeelhaar/persona/internal/store"
)

// env bundles what every command needs. Close releases the store.
type env struct {
	cfg   *config.Config
	store *store.SQLiteStore
	creds *credential.Config
}

func openEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	s, err := store.NewSQLiteStore(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to init store: %w", err)
	}

	m, err := cfg.CredentialManager()
	if err != nil {
		s.Close()
		return nil, err
	}

	return &env{cfg: cfg, store: s, creds: credential.NewConfig(s, m)}, nil
}

func (e *env) Close() error {
	return e.store.Close()
}
