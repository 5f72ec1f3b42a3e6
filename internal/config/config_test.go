package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "SERVER_PORT")
	unsetEnvWithCleanup(t, "PORT")
	unsetEnvWithCleanup(t, "SYNC_CHANNEL_PREFIX")
	unsetEnvWithCleanup(t, "SYNC_POLL_INTERVAL_SECONDS")
	unsetEnvWithCleanup(t, "PAYMENT_EVENT_QUEUE")
	unsetEnvWithCleanup(t, "TRAINER_ACTION_RATE_LIMIT_PER_MINUTE")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default ServerPort 8080, got %q", cfg.ServerPort)
	}
	if cfg.SyncChannelPrefix != "littlesteps" {
		t.Fatalf("expected default SyncChannelPrefix littlesteps, got %q", cfg.SyncChannelPrefix)
	}
	if cfg.SyncPollIntervalSeconds != 30 {
		t.Fatalf("expected default poll interval 30, got %d", cfg.SyncPollIntervalSeconds)
	}
	if cfg.PaymentEventQueue != "booking_service.payment_updates" {
		t.Fatalf("expected default payment queue, got %q", cfg.PaymentEventQueue)
	}
	if cfg.TrainerActionRateLimitPerMin != 30 {
		t.Fatalf("expected default trainer rate limit 30, got %d", cfg.TrainerActionRateLimitPerMin)
	}
}

func TestLoadConfig_PushEnabledTracksRedisURL(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "REDIS_URL")
	unsetEnvWithCleanup(t, "BOOKING_REDIS_URL")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.PushEnabled() {
		t.Fatal("expected push disabled without REDIS_URL")
	}

	viper.Reset()
	setEnvWithCleanup(t, "REDIS_URL", "redis://localhost:6379")

	cfg, err = LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if !cfg.PushEnabled() {
		t.Fatal("expected push enabled with REDIS_URL set")
	}
}

func TestLoadConfig_PortEnvOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "8080")
	setEnvWithCleanup(t, "PORT", "9090")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Fatalf("expected PORT to win, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_PollIntervalFloor(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SYNC_POLL_INTERVAL_SECONDS", "1")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.SyncPollIntervalSeconds != 5 {
		t.Fatalf("expected poll interval coerced to 5, got %d", cfg.SyncPollIntervalSeconds)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
