package viralquill

import (
	"strings"
	"testing"
	"time"
)

func TestValidateConfigurationDefaults(t *testing.T) {
	client := New()

	if !client.IsValid() {
		t.Errorf("default configuration should validate, got: %v", client.ValidationError())
	}
}

func TestValidateRetryConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RetryConfig
		problem string
	}{
		{
			name:    "negative max retries",
			cfg:     RetryConfig{MaxRetries: -1, BaseDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2},
			problem: "MaxRetries must be non-negative",
		},
		{
			name:    "zero base delay",
			cfg:     RetryConfig{MaxRetries: 3, BaseDelay: 0, MaxDelay: time.Minute, Multiplier: 2},
			problem: "BaseDelay must be positive",
		},
		{
			name:    "max below base",
			cfg:     RetryConfig{MaxRetries: 3, BaseDelay: time.Minute, MaxDelay: time.Second, Multiplier: 2},
			problem: "MaxDelay must be greater than or equal to BaseDelay",
		},
		{
			name:    "zero multiplier",
			cfg:     RetryConfig{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: time.Minute, Multiplier: 0},
			problem: "Multiplier must be positive",
		},
		{
			name:    "excessive retries",
			cfg:     RetryConfig{MaxRetries: 150, BaseDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2},
			problem: "MaxRetries > 100",
		},
		{
			name:    "excessive max delay",
			cfg:     RetryConfig{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 2 * time.Hour, Multiplier: 2},
			problem: "MaxDelay > 1h",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := New(WithRetryConfig(tt.cfg))
			err := client.ValidationError()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.problem) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.problem)
			}
		})
	}
}

func TestValidateQuotaConfig(t *testing.T) {
	cfg := DefaultQuotaConfig()
	cfg.MonthlyReadCap = 0
	cfg.ReservePercent = 1.5

	client := New(WithQuotaConfig(cfg))
	err := client.ValidationError()
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	for _, problem := range []string{"MonthlyReadCap must be positive", "ReservePercent must be in [0, 1)"} {
		if !strings.Contains(err.Error(), problem) {
			t.Errorf("error %q does not mention %q", err.Error(), problem)
		}
	}
}

func TestValidateDebugRequiresLogger(t *testing.T) {
	client := New(WithDebugConfig(&DebugConfig{Enabled: true}))

	err := client.ValidationError()
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "logger must be set") {
		t.Errorf("error %q does not mention missing logger", err.Error())
	}
	if !strings.Contains(err.Error(), "RequestIDGen must be set") {
		t.Errorf("error %q does not mention missing RequestIDGen", err.Error())
	}
}

func TestValidationAggregatesProblems(t *testing.T) {
	cfg := DefaultQuotaConfig()
	cfg.PowerUserBuffer = 0

	client := New(
		WithQuotaConfig(cfg),
		WithRetryConfig(RetryConfig{MaxRetries: -1, BaseDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2}),
	)
	err := client.ValidationError()
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	for _, problem := range []string{"MaxRetries must be non-negative", "PowerUserBuffer must be positive"} {
		if !strings.Contains(err.Error(), problem) {
			t.Errorf("error %q does not mention %q", err.Error(), problem)
		}
	}
}

func TestWithMaxRetries(t *testing.T) {
	client := New(WithMaxRetries(7))

	if client.retryConfig.MaxRetries != 7 {
		t.Errorf("MaxRetries = %d, expected 7", client.retryConfig.MaxRetries)
	}
	if client.retryConfig.BaseDelay != DefaultRetryConfig().BaseDelay {
		t.Error("WithMaxRetries must not disturb the rest of the retry policy")
	}
}

func TestWithQuotaTrackerOverridesConfig(t *testing.T) {
	cfg := DefaultQuotaConfig()
	cfg.MonthlyReadCap = 99
	tracker := NewQuotaTracker(DefaultQuotaConfig())

	client := New(WithQuotaConfig(cfg), WithQuotaTracker(tracker))

	if client.Quota() != tracker {
		t.Error("injected tracker should win over quota config")
	}
	if client.QuotaState().ReadCap != 15000 {
		t.Errorf("ReadCap = %d, expected the injected tracker's 15000", client.QuotaState().ReadCap)
	}
}

func TestWithPacerValidation(t *testing.T) {
	client := New(WithPacer(0, 0))

	err := client.ValidationError()
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "pacer rate must be positive") {
		t.Errorf("error %q does not mention pacer rate", err.Error())
	}
}

func TestWithClockFlowsToTracker(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, time.June, 15, 0, 0, 0, 0, time.UTC)}
	client := New(WithClock(clock))

	expected := time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)
	if got := client.QuotaState().ResetAt; !got.Equal(expected) {
		t.Errorf("ResetAt = %v, expected %v", got, expected)
	}
}
