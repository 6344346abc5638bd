package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vastio/vastfetch/internal/config"
)

func memoryConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{Port: 0},
		Fetch: config.FetchConfig{
			Mode:           "sequential",
			TimeoutSeconds: 5,
		},
		Store:     config.StoreConfig{Provider: "memory"},
		Archive:   config.ArchiveConfig{Provider: "memory", Prefix: "creatives"},
		Publisher: config.PublisherConfig{Provider: "memory"},
		Logging:   config.LoggingConfig{Development: true},
	}
}

func TestBuildWithMemoryProviders(t *testing.T) {
	cfg := memoryConfig()
	cfg.Server.Port = 8080

	a, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, a.apiServer)
	require.NotNil(t, a.resultStore)
	require.NoError(t, a.Close(context.Background()))
}

func TestBuildWithoutOptionalProviders(t *testing.T) {
	cfg := memoryConfig()
	cfg.Server.Port = 8080
	cfg.Store.Provider = "noop"
	cfg.Archive.Provider = "noop"
	cfg.Publisher.Provider = "noop"

	a, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	require.Nil(t, a.resultStore)
	require.NoError(t, a.Close(context.Background()))
}
