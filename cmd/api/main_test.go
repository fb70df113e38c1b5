package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"

	"canopy/internal/config"
)

func TestMediaCleanerWithoutEndpointOnlyResolves(t *testing.T) {
	cfg := config.Config{MinioBucket: "canopy-media", MediaPublicBaseURL: "https://cdn.example.com/media"}
	cleaner, err := mediaCleaner(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("mediaCleaner() error = %v", err)
	}

	refs := cleaner.References(json.RawMessage(`{"type":"image","attrs":{"src":"https://cdn.example.com/media/ws1/a.png"}}`))
	if len(refs) != 1 || refs[0] != "ws1/a.png" {
		t.Fatalf("unexpected refs %v", refs)
	}
	if err := cleaner.Remove(context.Background(), refs); err != nil {
		t.Fatalf("expected resolver-only cleanup to be a no-op, got %v", err)
	}
}

func TestMediaCleanerBuildsMinioClient(t *testing.T) {
	cfg := config.Config{
		MinioEndpoint:  "localhost:9000",
		MinioAccessKey: "minio",
		MinioSecretKey: "minio123",
		MinioBucket:    "canopy-media",
	}
	cleaner, err := mediaCleaner(cfg, zerolog.Nop())
	if err != nil || cleaner == nil {
		t.Fatalf("expected minio cleaner, got %v %v", cleaner, err)
	}
}
