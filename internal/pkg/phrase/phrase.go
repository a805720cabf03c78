package phrase

import (
	"strings"
	"unicode"
)

type Mode string

const (
	// Exact matches the whole normalized message.
	Exact Mode = "exact"
	// Prefix matches when the message starts with the phrase as whole words.
	Prefix Mode = "prefix"
	// Contains matches the phrase anywhere in the message as whole words.
	Contains Mode = "contains"
	// Substring matches the phrase anywhere, including inside longer words,
	// so "overdose" also catches "overdosed".
	Substring Mode = "substring"
)

// Normalize lowercases, folds typographic apostrophes, turns punctuation into
// spaces and collapses whitespace. Apostrophes and hyphens inside words are kept.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("’", "'", "‘", "'", "–", "-", "—", "-").Replace(s)
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range s {
		keep := unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '-' || r == '&' || r == '+' || r == '@'
		if !keep {
			if !space {
				b.WriteByte(' ')
				space = true
			}
			continue
		}
		b.WriteRune(r)
		space = false
	}
	return strings.TrimSpace(b.String())
}

// Match reports whether the normalized message matches the normalized phrase.
func Match(mode Mode, msg, p string) bool {
	if msg == "" || p == "" {
		return false
	}
	switch mode {
	case Exact:
		return msg == p
	case Prefix:
		return msg == p || strings.HasPrefix(msg, p+" ")
	case Substring:
		return strings.Contains(msg, p)
	default:
		return strings.Contains(" "+msg+" ", " "+p+" ") || (strings.ContainsAny(p, " -'") && strings.Contains(msg, p))
	}
}

type Rule struct {
	Name    string
	Mode    Mode
	Phrases []string
}

// Matcher is an ordered rule table. Rules are evaluated top to bottom.
type Matcher struct {
	rules  []Rule
	byName map[string][]int
}

func NewMatcher(rules []Rule) *Matcher {
	m := &Matcher{byName: map[string][]int{}}
	for _, r := range rules {
		nr := Rule{Name: r.Name, Mode: r.Mode}
		if nr.Mode == "" {
			nr.Mode = Contains
		}
		for _, p := range r.Phrases {
			if np := Normalize(p); np != "" {
				nr.Phrases = append(nr.Phrases, np)
			}
		}
		m.byName[nr.Name] = append(m.byName[nr.Name], len(m.rules))
		m.rules = append(m.rules, nr)
	}
	return m
}

// Classify returns the name of the first rule that matches msg.
func (m *Matcher) Classify(msg string) (string, bool) {
	if m == nil {
		return "", false
	}
	n := Normalize(msg)
	for _, r := range m.rules {
		if matchRule(r, n) != "" {
			return r.Name, true
		}
	}
	return "", false
}

// Is reports whether msg matches any rule with the given name, ignoring order.
func (m *Matcher) Is(name, msg string) bool {
	if m == nil {
		return false
	}
	n := Normalize(msg)
	for _, idx := range m.byName[name] {
		if matchRule(m.rules[idx], n) != "" {
			return true
		}
	}
	return false
}

// Matches returns every matched phrase per rule name, in rule order.
func (m *Matcher) Matches(msg string) []Hit {
	if m == nil {
		return nil
	}
	n := Normalize(msg)
	var out []Hit
	for i, r := range m.rules {
		for _, p := range r.Phrases {
			if Match(r.Mode, n, p) {
				out = append(out, Hit{Rule: r.Name, Index: i, Phrase: p})
			}
		}
	}
	return out
}

type Hit struct {
	Rule   string
	Index  int
	Phrase string
}

func matchRule(r Rule, msg string) string {
	for _, p := range r.Phrases {
		if Match(r.Mode, msg, p) {
			return p
		}
	}
	return ""
}
