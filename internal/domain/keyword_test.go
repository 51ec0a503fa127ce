package domain

import (
	"testing"
)

func TestKeywordValidate(t *testing.T) {
	tests := []struct {
		name     string
		keyword  Keyword
		wantCode string
	}{
		{
			name:    "valid transactional keyword",
			keyword: Keyword{Term: "best running shoes", Volume: 1200, CPC: 1.4, Competition: 0.6, Intent: IntentTransactional},
		},
		{
			name:     "empty term",
			keyword:  Keyword{Term: "   ", Volume: 10, Intent: IntentInformational},
			wantCode: "input/empty_term",
		},
		{
			name:     "negative volume",
			keyword:  Keyword{Term: "how to fix bike", Volume: -5, Intent: IntentInformational},
			wantCode: "input/negative_volume",
		},
		{
			name:     "negative cpc",
			keyword:  Keyword{Term: "cheap flights", Volume: 100, CPC: -0.1, Intent: IntentTransactional},
			wantCode: "input/negative_cpc",
		},
		{
			name:     "competition above one",
			keyword:  Keyword{Term: "vpn service", Volume: 100, Competition: 1.2, Intent: IntentInvestigative},
			wantCode: "input/competition_range",
		},
		{
			name:     "unknown intent",
			keyword:  Keyword{Term: "gaming laptop", Volume: 100, Competition: 0.5, Intent: Intent("curious")},
			wantCode: "input/unknown_intent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.keyword.Validate()
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want code %s", tt.wantCode)
			}
			if got := CodeOf(err); got != tt.wantCode {
				t.Errorf("CodeOf(err) = %s, want %s", got, tt.wantCode)
			}
			if KindOf(err) != KindInput {
				t.Errorf("KindOf(err) = %s, want %s", KindOf(err), KindInput)
			}
		})
	}
}

func TestParseIntent(t *testing.T) {
	tests := []struct {
		in      string
		want    Intent
		wantErr bool
	}{
		{in: "informational", want: IntentInformational},
		{in: "Transactional", want: IntentTransactional},
		{in: "  NAVIGATIONAL  ", want: IntentNavigational},
		{in: "investigative", want: IntentInvestigative},
		{in: "browsing", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseIntent(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseIntent(%q) = %v, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseIntent(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseIntent(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestClamp01(t *testing.T) {
	if got := Clamp01(-0.3); got != 0 {
		t.Errorf("Clamp01(-0.3) = %v, want 0", got)
	}
	if got := Clamp01(1.7); got != 1 {
		t.Errorf("Clamp01(1.7) = %v, want 1", got)
	}
	if got := Clamp01(0.42); got != 0.42 {
		t.Errorf("Clamp01(0.42) = %v, want 0.42", got)
	}
}

func TestNewEnrichedDefaults(t *testing.T) {
	enriched := NewEnriched(Keyword{Term: "standing desk", Volume: 900, Intent: IntentTransactional})
	if enriched.TrendDirection != TrendStable {
		t.Errorf("TrendDirection = %s, want %s", enriched.TrendDirection, TrendStable)
	}
	if enriched.WeightsApplied == nil {
		t.Error("WeightsApplied map not initialized")
	}
	if enriched.Term != "standing desk" {
		t.Errorf("Term = %q, want %q", enriched.Term, "standing desk")
	}
}
