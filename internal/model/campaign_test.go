package model_test

import (
	"testing"

	"github.com/callforge/dialer-backend/internal/model"
)

func TestCampaignTransitions(t *testing.T) {
	cases := []struct {
		from, to model.CampaignStatus
		allowed  bool
	}{
		{model.CampaignDraft, model.CampaignSyncing, true},
		{model.CampaignDraft, model.CampaignRunning, false},
		{model.CampaignSyncing, model.CampaignRunning, true},
		{model.CampaignSyncing, model.CampaignCompleted, true},
		{model.CampaignSyncing, model.CampaignFailed, true},
		{model.CampaignRunning, model.CampaignPaused, true},
		{model.CampaignRunning, model.CampaignCompleted, true},
		{model.CampaignPaused, model.CampaignRunning, true},
		{model.CampaignPaused, model.CampaignSyncing, true},
		{model.CampaignFailed, model.CampaignSyncing, true},
		{model.CampaignCompleted, model.CampaignRunning, false},
		{model.CampaignCompleted, model.CampaignSyncing, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.allowed {
			t.Errorf("%s -> %s: got %v, want %v", c.from, c.to, got, c.allowed)
		}
	}
}

func TestConcurrencyCap(t *testing.T) {
	three := 3
	zero := 0

	c := &model.Campaign{MaxConcurrency: &three}
	if got := c.ConcurrencyCap(10); got != 3 {
		t.Errorf("got %d, want campaign cap 3", got)
	}

	c = &model.Campaign{}
	if got := c.ConcurrencyCap(10); got != 10 {
		t.Errorf("got %d, want org limit 10", got)
	}

	// A zero cap falls back to the org limit rather than stalling dispatch.
	c = &model.Campaign{MaxConcurrency: &zero}
	if got := c.ConcurrencyCap(10); got != 10 {
		t.Errorf("got %d, want org limit 10 for zero cap", got)
	}
}

func TestRetryConfigScanRoundTrip(t *testing.T) {
	cfg := model.RetryConfig{
		Enabled:           true,
		MaxRetries:        2,
		RetryDelaySeconds: 60,
		RetryOnBusy:       true,
	}
	raw, err := cfg.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}

	var got model.RetryConfig
	if err := got.Scan(raw); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if got != cfg {
		t.Errorf("round trip mismatch: %+v vs %+v", got, cfg)
	}

	// NULL column yields the defaults.
	var fromNull model.RetryConfig
	if err := fromNull.Scan(nil); err != nil {
		t.Fatalf("scan nil: %v", err)
	}
	if fromNull != model.DefaultRetryConfig() {
		t.Errorf("got %+v, want defaults for NULL", fromNull)
	}
}

func TestRetryableRespectsConfig(t *testing.T) {
	cfg := model.RetryConfig{Enabled: true, RetryOnBusy: true, RetryOnNoAnswer: false, RetryOnVoicemail: true}

	if !model.CauseBusy.Retryable(cfg) {
		t.Error("busy should be retryable")
	}
	if model.CauseNoAnswer.Retryable(cfg) {
		t.Error("no_answer retries are off")
	}
	if model.CauseNone.Retryable(cfg) {
		t.Error("absence of a cause is never retryable")
	}

	cfg.Enabled = false
	if model.CauseBusy.Retryable(cfg) {
		t.Error("nothing is retryable when retries are disabled")
	}
}

func TestTerminalFailureDispositions(t *testing.T) {
	for disp, want := range map[model.Disposition]bool{
		model.DispositionConnectError:     true,
		model.DispositionUnknown:          true,
		model.DispositionEndCallTool:      false,
		model.DispositionUserHangup:       false,
		model.DispositionVoicemail:        false,
		model.DispositionDurationExceeded: false,
		model.DispositionIdleTimeout:      false,
	} {
		if got := disp.TerminalFailure(); got != want {
			t.Errorf("%s: got %v, want %v", disp, got, want)
		}
	}
}
