package transport

import (
	"os"
	"testing"
)

func TestParseStdioConfig_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("SENTRY_AUTH_TOKEN", "env-token")
	t.Setenv("SENTRY_HOST", "env.sentry.io")

	cfg, err := ParseStdioConfig([]string{"--access-token=flag-token", "--host=flag.sentry.io"})
	if err != nil {
		t.Fatalf("ParseStdioConfig: %v", err)
	}
	if cfg.AccessToken != "flag-token" {
		t.Errorf("AccessToken = %q, want flag-token", cfg.AccessToken)
	}
	if cfg.SentryHost != "flag.sentry.io" {
		t.Errorf("SentryHost = %q, want flag.sentry.io", cfg.SentryHost)
	}
}

func TestParseStdioConfig_FallsBackToEnv(t *testing.T) {
	t.Setenv("SENTRY_AUTH_TOKEN", "env-token")
	t.Setenv("SENTRY_HOST", "env.sentry.io")

	cfg, err := ParseStdioConfig(nil)
	if err != nil {
		t.Fatalf("ParseStdioConfig: %v", err)
	}
	if cfg.AccessToken != "env-token" {
		t.Errorf("AccessToken = %q, want env-token", cfg.AccessToken)
	}
	if cfg.SentryHost != "env.sentry.io" {
		t.Errorf("SentryHost = %q, want env.sentry.io", cfg.SentryHost)
	}
}

func TestParseStdioConfig_DefaultsHostToSentryIO(t *testing.T) {
	t.Setenv("SENTRY_AUTH_TOKEN", "env-token")
	os.Unsetenv("SENTRY_HOST")

	cfg, err := ParseStdioConfig(nil)
	if err != nil {
		t.Fatalf("ParseStdioConfig: %v", err)
	}
	if cfg.SentryHost != "sentry.io" {
		t.Errorf("SentryHost = %q, want sentry.io", cfg.SentryHost)
	}
}

func TestParseStdioConfig_MissingTokenErrors(t *testing.T) {
	os.Unsetenv("SENTRY_AUTH_TOKEN")
	os.Unsetenv("SENTRY_HOST")

	if _, err := ParseStdioConfig(nil); err == nil {
		t.Fatal("expected an error for a missing access token")
	}
}
