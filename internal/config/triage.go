package config

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const triageConfigEnv = "TRIAGE_CONFIG_PATH"

//go:embed default_triage.yaml
var defaultTriageFS embed.FS

// Triage is loaded once at start-up and treated as read-only afterwards.
type Triage struct {
	Version    int                      `yaml:"version"`
	Crisis     Crisis                   `yaml:"crisis"`
	Consent    map[string]ConsentPolicy `yaml:"consent"`
	Purposes   map[string]Purpose       `yaml:"purposes"`
	Assessment Assessment               `yaml:"assessment"`
	Escalation Escalation               `yaml:"escalation"`
	Emergency  Emergency                `yaml:"emergency"`
	Intents    []IntentRule             `yaml:"intents"`
}

type Crisis struct {
	SlowThreshold      time.Duration `yaml:"slow_threshold"`
	VulnerabilityBoost float64       `yaml:"vulnerability_boost"`
	PriorCrisisBoost   float64       `yaml:"prior_crisis_boost"`
	Rules              []CrisisRule  `yaml:"rules"`
}

type CrisisRule struct {
	Category string         `yaml:"category"`
	Severity string         `yaml:"severity"`
	Phrases  []CrisisPhrase `yaml:"phrases"`
}

type CrisisPhrase struct {
	Text       string  `yaml:"text"`
	Confidence float64 `yaml:"confidence"`
}

type ConsentPolicy struct {
	Purpose                 string   `yaml:"purpose"`
	RequiresConsent         bool     `yaml:"requires_consent"`
	DataCategories          []string `yaml:"data_categories"`
	LegalBasis              string   `yaml:"legal_basis"`
	AutomaticConsentCapture bool     `yaml:"automatic_consent_capture"`
	ConsentText             string   `yaml:"consent_text"`
}

type Purpose struct {
	ConsentType    string   `yaml:"consent_type"`
	RequiredFields []string `yaml:"required_fields"`
	OptionalFields []string `yaml:"optional_fields"`
	Validation     string   `yaml:"validation"`
	AllowSkip      bool     `yaml:"allow_skip"`
	MaxAttempts    int      `yaml:"max_attempts"`
}

type Assessment struct {
	Rules   []AssessmentRule `yaml:"rules"`
	Default AssessmentRule   `yaml:"default"`
}

type AssessmentRule struct {
	Name     string   `yaml:"name"`
	Priority string   `yaml:"priority"`
	Type     string   `yaml:"type"`
	Phrases  []string `yaml:"phrases"`
}

type Escalation struct {
	UrgentCallbackETA      string        `yaml:"urgent_callback_eta"`
	StandardCallbackETA    string        `yaml:"standard_callback_eta"`
	UrgentCallbackWithin   time.Duration `yaml:"urgent_callback_within"`
	StandardCallbackWithin time.Duration `yaml:"standard_callback_within"`
	StaleAfter             time.Duration `yaml:"stale_after"`
	SweepInterval          time.Duration `yaml:"sweep_interval"`
	DirectContactNumber    string        `yaml:"direct_contact_number"`
	Notify                 Notify        `yaml:"notify"`
}

type Notify struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	// Timeout caps all send attempts and backoff for one escalation. Keep it
	// below CONVERSATION_LOCK_TTL.
	Timeout time.Duration `yaml:"timeout"`
}

type Emergency struct {
	Lines []string `yaml:"lines"`
}

type IntentRule struct {
	Name    string   `yaml:"name"`
	Match   string   `yaml:"match"`
	Phrases []string `yaml:"phrases"`
}

// Load reads TRIAGE_CONFIG_PATH when set, else the embedded default.
func Load() (*Triage, error) {
	if path := strings.TrimSpace(os.Getenv(triageConfigEnv)); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return Parse(data)
	}
	return LoadDefault()
}

func LoadDefault() (*Triage, error) {
	data, err := defaultTriageFS.ReadFile("default_triage.yaml")
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Triage, error) {
	var cfg Triage
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse triage config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid triage config: %w", err)
	}
	return &cfg, nil
}

// Policy returns the consent policy for a consent type. Unknown types require
// consent and never auto-capture.
func (t *Triage) Policy(consentType string) ConsentPolicy {
	if p, ok := t.Consent[consentType]; ok {
		return p
	}
	return ConsentPolicy{Purpose: consentType, RequiresConsent: true, LegalBasis: "consent"}
}

func (t *Triage) applyDefaults() {
	if t.Crisis.SlowThreshold <= 0 {
		t.Crisis.SlowThreshold = 500 * time.Millisecond
	}
	e := &t.Escalation
	if e.UrgentCallbackETA == "" {
		e.UrgentCallbackETA = "within 2-4 hours"
	}
	if e.StandardCallbackETA == "" {
		e.StandardCallbackETA = "within 24 hours"
	}
	if e.UrgentCallbackWithin <= 0 {
		e.UrgentCallbackWithin = 4 * time.Hour
	}
	if e.StandardCallbackWithin <= 0 {
		e.StandardCallbackWithin = 24 * time.Hour
	}
	if e.StaleAfter <= 0 {
		e.StaleAfter = 30 * time.Minute
	}
	if e.SweepInterval <= 0 {
		e.SweepInterval = 5 * time.Minute
	}
	if e.Notify.MaxAttempts <= 0 {
		e.Notify.MaxAttempts = 3
	}
	if e.Notify.BaseDelay <= 0 {
		e.Notify.BaseDelay = 500 * time.Millisecond
	}
	if e.Notify.MaxDelay <= 0 {
		e.Notify.MaxDelay = 5 * time.Second
	}
	if e.Notify.Timeout <= 0 {
		e.Notify.Timeout = 20 * time.Second
	}
	for name, p := range t.Purposes {
		if p.MaxAttempts <= 0 {
			p.MaxAttempts = 3
		}
		if p.Validation == "" {
			p.Validation = "strict"
		}
		if p.ConsentType == "" {
			p.ConsentType = name
		}
		t.Purposes[name] = p
	}
}

func (t *Triage) validate() error {
	if len(t.Crisis.Rules) == 0 {
		return errors.New("crisis: no rules defined")
	}
	for i, r := range t.Crisis.Rules {
		if strings.TrimSpace(r.Category) == "" {
			return fmt.Errorf("crisis rule %d: category is required", i)
		}
		switch r.Severity {
		case "crisis", "high":
		default:
			return fmt.Errorf("crisis rule %s: unsupported severity %q", r.Category, r.Severity)
		}
		for _, p := range r.Phrases {
			if strings.TrimSpace(p.Text) == "" {
				return fmt.Errorf("crisis rule %s: empty phrase", r.Category)
			}
			if p.Confidence < 0 || p.Confidence > 1 {
				return fmt.Errorf("crisis rule %s: confidence %.2f out of range", r.Category, p.Confidence)
			}
		}
	}
	for name, p := range t.Purposes {
		if len(p.RequiredFields) == 0 {
			return fmt.Errorf("purpose %s: required_fields is empty", name)
		}
		seen := map[string]bool{}
		for _, f := range append(append([]string{}, p.RequiredFields...), p.OptionalFields...) {
			if seen[f] {
				return fmt.Errorf("purpose %s: duplicate field %s", name, f)
			}
			seen[f] = true
		}
		switch p.Validation {
		case "strict", "lenient":
		default:
			return fmt.Errorf("purpose %s: unsupported validation %q", name, p.Validation)
		}
	}
	for _, r := range append(append([]AssessmentRule{}, t.Assessment.Rules...), t.Assessment.Default) {
		switch r.Priority {
		case "immediate", "urgent", "standard":
		default:
			return fmt.Errorf("assessment rule %s: unsupported priority %q", r.Name, r.Priority)
		}
	}
	for _, r := range t.Intents {
		switch r.Match {
		case "exact", "prefix", "contains":
		default:
			return fmt.Errorf("intent %s: unsupported match %q", r.Name, r.Match)
		}
	}
	return nil
}
