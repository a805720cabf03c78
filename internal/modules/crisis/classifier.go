package crisis

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/careline-backend/internal/config"
	"github.com/yungbote/careline-backend/internal/observability"
	"github.com/yungbote/careline-backend/internal/pkg/phrase"
	"github.com/yungbote/careline-backend/internal/platform/logger"
)

type Severity string

const (
	SeverityCrisis  Severity = "crisis"
	SeverityHigh    Severity = "high"
	SeverityGeneral Severity = "general"
)

func (s Severity) rank() int {
	switch s {
	case SeverityCrisis:
		return 2
	case SeverityHigh:
		return 1
	}
	return 0
}

// Categories whose severity is fixed no matter what the rule file says.
const (
	CategorySelfHarm          = "self_harm"
	CategoryMedicalEmergency  = "medical_emergency"
	CategoryCrisisLanguage    = "crisis_language"
	CategoryClassifierFailure = "classifier_failure"
)

type Verdict struct {
	Severity        Severity      `json:"severity"`
	Category        string        `json:"category,omitempty"`
	Confidence      float64       `json:"confidence"`
	MatchedTriggers []string      `json:"matched_triggers,omitempty"`
	Elapsed         time.Duration `json:"elapsed"`
	// Degraded marks a classification slower than the configured threshold.
	Degraded bool `json:"degraded"`
}

// Triggered reports whether the verdict pre-empts normal routing.
func (v Verdict) Triggered() bool {
	return v.Severity == SeverityCrisis || v.Severity == SeverityHigh
}

// FailClosed is the verdict used when classification itself fails.
func FailClosed() Verdict {
	return Verdict{Severity: SeverityHigh, Category: CategoryClassifierFailure, Confidence: 1}
}

type ClassifyContext struct {
	VulnerabilityFlags []string
	PriorCrisisCount   int
}

type Classifier interface {
	Classify(ctx context.Context, message string, cc ClassifyContext) (Verdict, error)
}

type rule struct {
	category string
	severity Severity
	phrases  []weightedPhrase
}

type weightedPhrase struct {
	text       string
	confidence float64
}

type classifier struct {
	log        *logger.Logger
	metrics    *observability.Metrics
	rules      []rule
	slow       time.Duration
	vulnBoost  float64
	priorBoost float64
	now        func() time.Time
}

func New(cfg config.Crisis, baseLog *logger.Logger, metrics *observability.Metrics) (Classifier, error) {
	c := &classifier{
		log:        baseLog.With("service", "CrisisClassifier"),
		metrics:    metrics,
		slow:       cfg.SlowThreshold,
		vulnBoost:  cfg.VulnerabilityBoost,
		priorBoost: cfg.PriorCrisisBoost,
		now:        time.Now,
	}
	for _, r := range cfg.Rules {
		sev, err := severityFor(r.Category, r.Severity)
		if err != nil {
			return nil, err
		}
		nr := rule{category: r.Category, severity: sev}
		for _, p := range r.Phrases {
			if t := phrase.Normalize(p.Text); t != "" {
				nr.phrases = append(nr.phrases, weightedPhrase{text: t, confidence: p.Confidence})
			}
		}
		c.rules = append(c.rules, nr)
	}
	if len(c.rules) == 0 {
		return nil, fmt.Errorf("crisis classifier: no rules")
	}
	return c, nil
}

func severityFor(category, configured string) (Severity, error) {
	switch category {
	case CategorySelfHarm, CategoryMedicalEmergency:
		return SeverityCrisis, nil
	case CategoryCrisisLanguage:
		return SeverityHigh, nil
	}
	switch Severity(configured) {
	case SeverityCrisis, SeverityHigh:
		return Severity(configured), nil
	}
	return "", fmt.Errorf("crisis rule %s: unsupported severity %q", category, configured)
}

func (c *classifier) Classify(ctx context.Context, message string, cc ClassifyContext) (Verdict, error) {
	start := c.now()
	if err := ctx.Err(); err != nil {
		return Verdict{}, err
	}

	msg := phrase.Normalize(message)
	boost := c.vulnBoost*float64(len(cc.VulnerabilityFlags)) + c.priorBoost*float64(cc.PriorCrisisCount)

	v := Verdict{Severity: SeverityGeneral}
	seen := map[string]bool{}
	best := -1.0
	for _, r := range c.rules {
		for _, p := range r.phrases {
			if !phrase.Match(phrase.Substring, msg, p.text) {
				continue
			}
			if !seen[p.text] {
				seen[p.text] = true
				v.MatchedTriggers = append(v.MatchedTriggers, p.text)
			}
			if r.severity.rank() > v.Severity.rank() {
				v.Severity = r.severity
			}
			conf := clamp(p.confidence + boost)
			// Strictly greater keeps the earlier rule on ties.
			if conf > best {
				best = conf
				v.Category = r.category
				v.Confidence = conf
			}
		}
	}

	v.Elapsed = c.now().Sub(start)
	if c.slow > 0 && v.Elapsed > c.slow {
		v.Degraded = true
		c.log.Warn("crisis classification slow", "elapsed_ms", v.Elapsed.Milliseconds(), "threshold_ms", c.slow.Milliseconds())
	}
	if v.Triggered() {
		c.log.Info("crisis signal detected", "severity", v.Severity, "category", v.Category, "confidence", v.Confidence)
	}
	c.metrics.ObserveCrisis(string(v.Severity), v.Category, v.Elapsed, v.Degraded)
	return v, nil
}

func clamp(f float64) float64 {
	if f > 1 {
		return 1
	}
	if f < 0 {
		return 0
	}
	return f
}

// Safe runs Classify and converts errors and panics into the fail-closed verdict.
func Safe(ctx context.Context, c Classifier, message string, cc ClassifyContext, log *logger.Logger, metrics *observability.Metrics) (v Verdict) {
	defer func() {
		if r := recover(); r != nil {
			if log != nil {
				log.Error("crisis classifier panic; failing closed", "panic", fmt.Sprint(r))
			}
			metrics.IncCrisisFailure()
			v = FailClosed()
		}
	}()
	if c == nil {
		metrics.IncCrisisFailure()
		return FailClosed()
	}
	out, err := c.Classify(ctx, message, cc)
	if err != nil {
		if log != nil {
			log.Error("crisis classifier failed; failing closed", "error", err)
		}
		metrics.IncCrisisFailure()
		return FailClosed()
	}
	return out
}
