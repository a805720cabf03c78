package logger

import (
	"strings"
	"testing"
)

func TestScrubRedactsContactFields(t *testing.T) {
	out := scrub([]interface{}{
		"phone", "07123456789",
		"email", "sarah@example.com",
		"name", "Sarah",
		"priority", "urgent",
	})
	if len(out) != 8 {
		t.Fatalf("len: want=8 got=%d", len(out))
	}
	for _, i := range []int{1, 3, 5} {
		if out[i] != redacted {
			t.Fatalf("value %v: want=%s got=%v", out[i-1], redacted, out[i])
		}
	}
	if out[7] != "urgent" {
		t.Fatalf("priority: want=urgent got=%v", out[7])
	}
}

func TestScrubHashesIdentifiers(t *testing.T) {
	out := scrub([]interface{}{"conversation_id", "conv-123", "user_id", "u-1"})
	for _, i := range []int{1, 3} {
		s, _ := out[i].(string)
		if !strings.HasPrefix(s, "hash:") || len(s) != len("hash:")+12 {
			t.Fatalf("value %v: want 12 char hash got=%q", out[i-1], s)
		}
	}
	again := scrub([]interface{}{"conversation_id", "conv-123"})
	if again[1] != out[1] {
		t.Fatalf("hash must be stable: %v vs %v", again[1], out[1])
	}
}

func TestScrubOddLength(t *testing.T) {
	out := scrub([]interface{}{"service", "x", "dangling"})
	if len(out) != 3 || out[2] != "dangling" {
		t.Fatalf("unexpected output: %v", out)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		key  string
		want action
	}{
		{"Message", redact},
		{"best_time_to_call", redact},
		{"matched_triggers", redact},
		{"alternative_contact_phone", redact},
		{"contact_summary", redact},
		{"OPENAI_API_KEY", redact},
		{"owner_user_id", pseudonymize},
		{"escalation_id", keep},
		{"callback_eta", keep},
		{"", keep},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			if got := classify(tc.key); got != tc.want {
				t.Fatalf("classify(%q): want=%v got=%v", tc.key, tc.want, got)
			}
		})
	}
}

func TestScrubberNestedValues(t *testing.T) {
	s := scrubber{enabled: true}
	out := s.kvs([]interface{}{
		"contact", map[string]string{"phone": "07123456789", "preferred_method": "phone"},
		"headers", []interface{}{"eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxMjM0NTY3ODkwIn0.sig"},
	})
	m, ok := out[1].(map[string]interface{})
	if !ok || m["phone"] != redacted || m["preferred_method"] != "phone" {
		t.Fatalf("nested map: %v", out[1])
	}
	list, ok := out[3].([]interface{})
	if !ok || list[0] != redacted {
		t.Fatalf("jwt in slice: %v", out[3])
	}
}

func TestScrubberFromEnv(t *testing.T) {
	env := func(vals map[string]string) func(string) string {
		return func(k string) string { return vals[k] }
	}
	off := scrubberFromEnv(env(map[string]string{"LOG_REDACTION_ENABLED": "off"}))
	if out := off.kvs([]interface{}{"phone", "07123456789"}); out[1] != "07123456789" {
		t.Fatalf("redaction disabled: want clear value got=%v", out[1])
	}

	plain := scrubberFromEnv(env(nil))
	salted := scrubberFromEnv(env(map[string]string{"LOG_HASH_SALT": "pepper"}))
	if !plain.enabled || !salted.enabled {
		t.Fatalf("redaction must default on")
	}
	if plain.pseudonym("conv-1") == salted.pseudonym("conv-1") {
		t.Fatalf("salt must change pseudonyms")
	}
}
