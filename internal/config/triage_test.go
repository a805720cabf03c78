package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefault(t *testing.T) {
	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}
	if cfg.Crisis.SlowThreshold != 500*time.Millisecond {
		t.Fatalf("slow threshold: want=500ms got=%s", cfg.Crisis.SlowThreshold)
	}
	if got := cfg.Crisis.Rules[0].Category; got != "self_harm" {
		t.Fatalf("first crisis rule: want=self_harm got=%s", got)
	}
	nc, ok := cfg.Purposes["nurse_callback"]
	if !ok {
		t.Fatalf("missing nurse_callback purpose")
	}
	if nc.MaxAttempts != 3 || nc.AllowSkip || strings.Join(nc.RequiredFields, ",") != "name,phone,email" {
		t.Fatalf("nurse_callback: %+v", nc)
	}
	cr := cfg.Purposes["crisis"]
	if cr.MaxAttempts != 2 || !cr.AllowSkip || cr.Validation != "lenient" {
		t.Fatalf("crisis: %+v", cr)
	}
	if cfg.Escalation.Notify.MaxAttempts != 3 || cfg.Escalation.Notify.MaxDelay != 5*time.Second || cfg.Escalation.Notify.Timeout != 20*time.Second {
		t.Fatalf("notify: %+v", cfg.Escalation.Notify)
	}
	if cfg.Escalation.StaleAfter != 30*time.Minute {
		t.Fatalf("stale after: want=30m got=%s", cfg.Escalation.StaleAfter)
	}
	if !cfg.Policy("nurse_callback").RequiresConsent {
		t.Fatalf("nurse_callback must require consent")
	}
	if p := cfg.Policy("unknown"); !p.RequiresConsent || p.AutomaticConsentCapture {
		t.Fatalf("unknown policy: %+v", p)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"no crisis rules", "crisis: {rules: []}"},
		{"bad severity", "crisis: {rules: [{category: x, severity: low, phrases: [{text: a, confidence: 0.5}]}]}"},
		{"confidence range", "crisis: {rules: [{category: x, severity: high, phrases: [{text: a, confidence: 1.5}]}]}"},
		{"duplicate field", `
crisis: {rules: [{category: x, severity: high, phrases: [{text: a, confidence: 0.5}]}]}
assessment: {default: {priority: standard}}
purposes: {p: {required_fields: [name], optional_fields: [name]}}`},
		{"bad intent match", `
crisis: {rules: [{category: x, severity: high, phrases: [{text: a, confidence: 0.5}]}]}
assessment: {default: {priority: standard}}
intents: [{name: a, match: regex}]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.yaml)); err == nil {
				t.Fatalf("Parse: want error")
			}
		})
	}
}

func TestLoadFromEnvPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "triage.yaml")
	body := `
crisis:
  slow_threshold: 250ms
  rules: [{category: self_harm, severity: crisis, phrases: [{text: "kill myself", confidence: 0.9}]}]
assessment: {default: {name: default, priority: standard, type: nurse_callback}}
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv(triageConfigEnv, path)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Crisis.SlowThreshold != 250*time.Millisecond {
		t.Fatalf("slow threshold: want=250ms got=%s", cfg.Crisis.SlowThreshold)
	}
	if cfg.Escalation.Notify.BaseDelay != 500*time.Millisecond {
		t.Fatalf("default base delay: got=%s", cfg.Escalation.Notify.BaseDelay)
	}
}
