package statusbook

import "testing"

func TestDecideNothingToDo(t *testing.T) {
	d := Decide(Counts{Input: 0})
	if d.Status != StatusProcessed {
		t.Errorf("expected processed for an empty batch, got %s", d.Status)
	}
}

func TestDecideAllInputDuplicatedShowsAsError(t *testing.T) {
	// Every metric in the batch collided with another in the same payload;
	// nothing was ever attempted, but the residue must still be reported,
	// not silently swallowed: all 5 are silent, a 100% loss, which is over
	// the 1% default threshold.
	d := Decide(Counts{Input: 5, DeduplicatedAway: 5})
	if d.Status != StatusError {
		t.Errorf("expected error, got %s", d.Status)
	}
	if d.Metadata["silent"] != 5 {
		t.Errorf("expected silent=5, got %v", d.Metadata["silent"])
	}
}

func TestDecideComplete(t *testing.T) {
	d := Decide(Counts{Input: 10, Written: 10})
	if d.Status != StatusProcessed {
		t.Errorf("expected processed, got %s", d.Status)
	}
}

func TestDecideFailedEntirely(t *testing.T) {
	d := Decide(Counts{Input: 10, Written: 0, Failed: 10})
	if d.Status != StatusError {
		t.Errorf("expected error, got %s", d.Status)
	}
}

func TestDecideErrorOnOneInTenFailed(t *testing.T) {
	// 1/10 failed, 0 silent: 10% loss. Above the 1% default threshold, which
	// would force "error" — so this case covers failed>0 with loss already
	// over threshold, which rule 4 catches ahead of rule 6.
	d := Decide(Counts{Input: 10, Written: 9, Failed: 1})
	if d.Status != StatusError {
		t.Errorf("expected error (loss %% over threshold), got %s", d.Status)
	}
}

func TestDecidePartialSuccessWithinLossTolerance(t *testing.T) {
	// 1/1000 failed: 0.1% loss, within the 1% default tolerance.
	d := Decide(Counts{Input: 1000, Written: 999, Failed: 1})
	if d.Status != StatusPartialSuccess {
		t.Errorf("expected partial_success, got %s", d.Status)
	}
}

func TestDecideErrorOnHighLoss(t *testing.T) {
	d := Decide(Counts{Input: 10, Written: 4, Failed: 6})
	if d.Status != StatusError {
		t.Errorf("expected error on loss beyond the %% tolerance, got %s", d.Status)
	}
}

func TestDecideParameterLimitErrorAlwaysEscalates(t *testing.T) {
	d := Decide(Counts{Input: 1000, Written: 999, Failed: 1, HasParameterLimitError: true})
	if d.Status != StatusError {
		t.Errorf("expected error when a parameter_limit_exceeded chunk occurred, got %s", d.Status)
	}
	if d.Metadata["param_limit_violation"] != true {
		t.Errorf("expected param_limit_violation=true in metadata, got %v", d.Metadata["param_limit_violation"])
	}
}

func TestDecideSilentResidueBeyondThresholdEscalates(t *testing.T) {
	// 51 unaccounted metrics (neither written, failed, nor reported as
	// in-batch duplicates) trips the silent-failure param-limit threshold
	// even with no explicit parameter_limit_exceeded error recorded.
	d := Decide(Counts{Input: 1000, Written: 900, Failed: 49})
	if d.Status != StatusError {
		t.Errorf("expected error: silent=51 exceeds the default threshold of 50, got %s (silent=%v)", d.Status, d.Metadata["silent"])
	}
}

func TestDecideWithDeduplicationAndPartialLoss(t *testing.T) {
	// 1000 input, 50 in-batch duplicates (silent=50, at but not over the
	// default threshold of 50), 940 written, 10 failed: loss = (10+50)/1000 = 6%.
	d := Decide(Counts{Input: 1000, DeduplicatedAway: 50, Written: 940, Failed: 10})
	if d.Status != StatusError {
		t.Errorf("expected error on 6%% loss, got %s", d.Status)
	}
	if d.Metadata["expected"] != 1000 {
		t.Errorf("expected 1000 expected rows, got %v", d.Metadata["expected"])
	}
}

func TestDecideCustomThresholds(t *testing.T) {
	d := Decide(Counts{Input: 100, Written: 80, Failed: 20, LossPercentageThreshold: 25})
	if d.Status != StatusPartialSuccess {
		t.Errorf("expected partial_success under a widened 25%% threshold, got %s", d.Status)
	}
}

func TestValidateCatchesBrokenAccounting(t *testing.T) {
	if err := Validate(Counts{Input: 10, Written: 5, Failed: 4, DeduplicatedAway: 0}); err == nil {
		t.Fatal("expected an error for a broken accounting identity")
	}
	if err := Validate(Counts{Input: 10, Written: 5, Failed: 4, DeduplicatedAway: 1}); err != nil {
		t.Fatalf("expected a balanced identity to validate cleanly, got %v", err)
	}
}
