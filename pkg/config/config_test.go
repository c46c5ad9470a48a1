package config

import (
	"testing"
	"time"
)

func TestEnvString(t *testing.T) {
	t.Setenv("SIDECAR_TEST_STRING", "mongo")

	if got := EnvString("SIDECAR_TEST_STRING", "fallback"); got != "mongo" {
		t.Errorf("Expected mongo, got %s", got)
	}
	if got := EnvString("SIDECAR_TEST_STRING_UNSET", "fallback"); got != "fallback" {
		t.Errorf("Expected fallback, got %s", got)
	}
}

func TestEnvInt(t *testing.T) {
	t.Setenv("SIDECAR_TEST_INT", "42")
	t.Setenv("SIDECAR_TEST_BAD_INT", "forty-two")

	if got := EnvInt("SIDECAR_TEST_INT", 5); got != 42 {
		t.Errorf("Expected 42, got %d", got)
	}
	if got := EnvInt("SIDECAR_TEST_INT_UNSET", 5); got != 5 {
		t.Errorf("Expected default 5, got %d", got)
	}
	if got := EnvInt("SIDECAR_TEST_BAD_INT", 5); got != 5 {
		t.Errorf("Expected default 5 for unparseable value, got %d", got)
	}
}

func TestConfigWithValues(t *testing.T) {
	cfg := &Config{
		LoopSleep:        5 * time.Second,
		Unhealthy:        15 * time.Second,
		MongoPort:        27017,
		MongoDatabase:    "admin",
		ServiceName:      "mongo",
		ClusterDomain:    "cluster.local",
		Namespace:        "db",
		PodLabelSelector: "app=mongo",
	}

	if cfg.LoopSleep != 5*time.Second {
		t.Errorf("Expected LoopSleep 5s, got %v", cfg.LoopSleep)
	}
	if cfg.MongoPort != 27017 {
		t.Errorf("Expected MongoPort 27017, got %d", cfg.MongoPort)
	}
	if cfg.ServiceName != "mongo" {
		t.Errorf("Expected ServiceName mongo, got %s", cfg.ServiceName)
	}
	if cfg.PodLabelSelector != "app=mongo" {
		t.Errorf("Expected PodLabelSelector app=mongo, got %s", cfg.PodLabelSelector)
	}
}
