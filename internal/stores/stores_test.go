package stores

import (
	"context"
	"errors"
	"testing"

	"github.com/Merlin1A/air-pulse/pkg/config"
)

func TestOpenMemory(t *testing.T) {
	cfg := &config.Config{Engine: config.EngineConfig{StoreBackend: config.StoreBackendMemory}}

	opened, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer opened.Close()

	if opened.Backend != config.StoreBackendMemory {
		t.Errorf("Expected backend %s, got %s", config.StoreBackendMemory, opened.Backend)
	}
	if err := opened.Ping(context.Background()); err != nil {
		t.Errorf("Expected memory ping to succeed, got %v", err)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	cfg := &config.Config{Engine: config.EngineConfig{StoreBackend: "cassandra"}}

	if _, err := Open(context.Background(), cfg); err == nil {
		t.Error("Expected error for unknown backend")
	}
}

func TestOpenSharedRejectsMemory(t *testing.T) {
	cfg := &config.Config{Engine: config.EngineConfig{StoreBackend: config.StoreBackendMemory}}

	opened, err := OpenShared(context.Background(), cfg)
	if !errors.Is(err, ErrProcessLocal) {
		t.Errorf("Expected ErrProcessLocal, got %v", err)
	}
	if opened != nil {
		t.Error("Expected no store for a process-local backend")
	}
}

func TestOpenSharedUnknownBackend(t *testing.T) {
	cfg := &config.Config{Engine: config.EngineConfig{StoreBackend: "cassandra"}}

	if _, err := OpenShared(context.Background(), cfg); err == nil || errors.Is(err, ErrProcessLocal) {
		t.Errorf("Expected unknown backend error, got %v", err)
	}
}
