package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
)

type Logger struct {
	SugaredLogger *zap.SugaredLogger
}

func New(mode string) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "test":
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: zapLogger.Sugar()}, nil
}

func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func (l *Logger) Sync() {
	_ = l.SugaredLogger.Sync()
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Debugw(msg, scrub(keysAndValues)...)
}
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Infow(msg, scrub(keysAndValues)...)
}
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Warnw(msg, scrub(keysAndValues)...)
}
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, scrub(keysAndValues)...)
}
func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Fatalw(msg, scrub(keysAndValues)...)
}
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(scrub(keysAndValues)...)}
}

type action int

const (
	keep action = iota
	redact
	pseudonymize
)

const redacted = "[REDACTED]"

// Patient contact details and free text never reach the sink in clear.
// Conversation and user ids are pseudonymized so one conversation can still
// be followed across lines.
var (
	exactKeys = map[string]action{
		"name":              redact,
		"full_name":         redact,
		"message":           redact,
		"user_message":      redact,
		"text":              redact,
		"best_time_to_call": redact,
		"matched_triggers":  redact,
	}
	keyFragments = []struct {
		fragment string
		act      action
	}{
		{"phone", redact},
		{"email", redact},
		{"contact_details", redact},
		{"contact_summary", redact},
		{"alternative_contact", redact},
		{"token", redact},
		{"authorization", redact},
		{"password", redact},
		{"secret", redact},
		{"api_key", redact},
		{"apikey", redact},
		{"user_id", pseudonymize},
		{"conversation_id", pseudonymize},
		{"session_id", pseudonymize},
	}
)

type scrubber struct {
	enabled bool
	salt    string
}

var (
	defaultOnce     sync.Once
	defaultScrubber scrubber
)

func scrub(kv []interface{}) []interface{} {
	defaultOnce.Do(func() { defaultScrubber = scrubberFromEnv(os.Getenv) })
	return defaultScrubber.kvs(kv)
}

func scrubberFromEnv(getenv func(string) string) scrubber {
	s := scrubber{enabled: true, salt: strings.TrimSpace(getenv("LOG_HASH_SALT"))}
	switch strings.TrimSpace(strings.ToLower(getenv("LOG_REDACTION_ENABLED"))) {
	case "0", "false", "no", "off":
		s.enabled = false
	}
	return s
}

func classify(key string) action {
	key = strings.TrimSpace(strings.ToLower(key))
	if key == "" {
		return keep
	}
	if a, ok := exactKeys[key]; ok {
		return a
	}
	for _, f := range keyFragments {
		if strings.Contains(key, f.fragment) {
			return f.act
		}
	}
	return keep
}

func (s scrubber) kvs(kv []interface{}) []interface{} {
	if len(kv) == 0 || !s.enabled {
		return kv
	}
	out := make([]interface{}, 0, len(kv))
	for i := 0; i < len(kv); i += 2 {
		if i == len(kv)-1 {
			out = append(out, kv[i])
			break
		}
		key := toString(kv[i])
		out = append(out, key, s.value(classify(key), kv[i+1]))
	}
	return out
}

func (s scrubber) value(a action, val interface{}) interface{} {
	switch a {
	case redact:
		return redacted
	case pseudonymize:
		return s.pseudonym(val)
	}
	switch v := val.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, inner := range v {
			out[k] = s.value(classify(k), inner)
		}
		return out
	case map[string]string:
		out := make(map[string]interface{}, len(v))
		for k, inner := range v {
			out[k] = s.value(classify(k), inner)
		}
		return out
	case []interface{}:
		out := make([]interface{}, 0, len(v))
		for _, inner := range v {
			out = append(out, s.value(keep, inner))
		}
		return out
	case string:
		if looksLikeJWT(v) {
			return redacted
		}
	}
	return val
}

func (s scrubber) pseudonym(val interface{}) string {
	raw := toString(val)
	if raw == "" {
		return ""
	}
	h := sha256.New()
	_, _ = h.Write([]byte(s.salt))
	_, _ = h.Write([]byte(raw))
	return "hash:" + hex.EncodeToString(h.Sum(nil))[:12]
}

func looksLikeJWT(s string) bool {
	parts := strings.Split(s, ".")
	return len(parts) == 3 && len(parts[0]) > 10 && len(parts[1]) > 10
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
