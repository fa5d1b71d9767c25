package config

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/outreach-agent/internal/domain"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TZ", "UTC")
	t.Setenv("PIPELINE_TASKS", "birthday-wish,reply")
	t.Setenv("LINKEDIN_USERNAME", "me@example.com")
	t.Setenv("LINKEDIN_PASSWORD", "hunter2")
	t.Setenv("DB_PATH", filepath.Join(dir, "outreach.db"))
	t.Setenv("SESSION_FILE", filepath.Join(dir, "session.json"))
	t.Setenv("CONTACTS_FILE", "")
	t.Setenv("WHITELIST", "")
	t.Setenv("BLACKLIST", "")
	t.Setenv("BROWSER_MODE", "static")
	t.Setenv("RETRY_POLICY", "constant")
	t.Setenv("LOG_LEVEL", "info")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.DryRun {
		t.Error("expected dry run to default to true")
	}
	if cfg.SessionMaxAge != 12*time.Hour {
		t.Errorf("expected 12h session max age, got %v", cfg.SessionMaxAge)
	}
	if cfg.Retry.MaxRetries != 3 || cfg.Retry.Delay != 5*time.Second {
		t.Errorf("unexpected retry defaults: %+v", cfg.Retry)
	}
	if len(cfg.Tasks) != 2 || cfg.Tasks[0] != domain.TaskBirthdayWish || cfg.Tasks[1] != domain.TaskReply {
		t.Errorf("unexpected pipeline tasks: %v", cfg.Tasks)
	}
	if cfg.ScheduleLabel() != "09:00" {
		t.Errorf("expected 09:00 schedule, got %s", cfg.ScheduleLabel())
	}
}

func TestLoadMissingCredentialIsTyped(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("LINKEDIN_PASSWORD", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing password")
	}
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if verr.Field != "LINKEDIN_PASSWORD" {
		t.Errorf("expected LINKEDIN_PASSWORD field, got %s", verr.Field)
	}
}

func TestLoadFollowerCheckNeedsNoCredentials(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PIPELINE_TASKS", "follower-check")
	t.Setenv("LINKEDIN_USERNAME", "")
	t.Setenv("LINKEDIN_PASSWORD", "")
	t.Setenv("GITHUB_URL", "https://github.com/octocat")

	if _, err := Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	t.Setenv("GITHUB_URL", "")
	_, err := Load()
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "GITHUB_URL" {
		t.Fatalf("expected GITHUB_URL validation error, got %v", err)
	}
	if errors.Is(err, ErrMissingCredential) {
		t.Fatal("GITHUB_URL is not a credential")
	}
}

func TestLoadRejectsBadSchedule(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("SCHEDULE_HOUR", "24")

	_, err := Load()
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "SCHEDULE_HOUR" {
		t.Fatalf("expected SCHEDULE_HOUR validation error, got %v", err)
	}
}

func TestLoadMergesContactsFile(t *testing.T) {
	setBaseEnv(t)
	path := filepath.Join(t.TempDir(), "contacts.yaml")
	doc := "whitelist:\n  - Alice Smith\nblacklist:\n  - '  BOB  '\ncooldown_days: 14\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONTACTS_FILE", path)
	t.Setenv("WHITELIST", "Carol")
	t.Setenv("COOLDOWN_DAYS", "30")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.Filter.Whitelist.Has("alice smith") || !cfg.Filter.Whitelist.Has("carol") {
		t.Errorf("whitelist not merged: %v", cfg.Filter.Whitelist.Sorted())
	}
	if !cfg.Filter.Blacklist.Has("Bob") {
		t.Errorf("blacklist not normalized: %v", cfg.Filter.Blacklist.Sorted())
	}
	if cfg.Filter.CooldownDays != 14 {
		t.Errorf("expected cooldown from file, got %d", cfg.Filter.CooldownDays)
	}
}

func TestLoadRejectsMalformedContactsFile(t *testing.T) {
	setBaseEnv(t)
	path := filepath.Join(t.TempDir(), "contacts.yaml")
	if err := os.WriteFile(path, []byte("whitelist: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONTACTS_FILE", path)

	_, err := Load()
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "CONTACTS_FILE" {
		t.Fatalf("expected CONTACTS_FILE validation error, got %v", err)
	}
}

func TestCredentialsAreRedacted(t *testing.T) {
	creds := Credentials{Username: "me@example.com", Password: "hunter2"}

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logger.Info("config", "credentials", creds)

	if strings.Contains(buf.String(), "hunter2") || strings.Contains(buf.String(), "me@example.com") {
		t.Fatalf("credentials leaked into log: %s", buf.String())
	}
	if got := creds.String(); got != "[redacted]" {
		t.Fatalf("unexpected String(): %q", got)
	}
}

func TestGetEnvDurationAcceptsSeconds(t *testing.T) {
	t.Setenv("TEST_DURATION", "7")
	if got := getEnvDuration("TEST_DURATION", time.Minute); got != 7*time.Second {
		t.Fatalf("expected 7s, got %v", got)
	}
	t.Setenv("TEST_DURATION", "90m")
	if got := getEnvDuration("TEST_DURATION", time.Minute); got != 90*time.Minute {
		t.Fatalf("expected 90m, got %v", got)
	}
	t.Setenv("TEST_DURATION", "soon")
	if got := getEnvDuration("TEST_DURATION", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %v", got)
	}
}
