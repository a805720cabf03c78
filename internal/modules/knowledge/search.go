package knowledge

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/careline-backend/internal/modules/flow"
	"github.com/yungbote/careline-backend/internal/pkg/phrase"
	"github.com/yungbote/careline-backend/internal/platform/envutil"
	"github.com/yungbote/careline-backend/internal/platform/logger"
)

//go:embed default_knowledge.yaml
var defaultKnowledge []byte

type Article struct {
	ID        string   `yaml:"id"`
	Title     string   `yaml:"title"`
	Source    string   `yaml:"source"`
	SourceURL string   `yaml:"source_url"`
	Keywords  []string `yaml:"keywords"`
	Content   string   `yaml:"content"`
}

type file struct {
	Articles []Article `yaml:"articles"`
}

type Config struct {
	// Path overrides the embedded article set.
	Path string
	// MinScore is the smallest relevance reported as found.
	MinScore float64
}

func ConfigFromEnv() Config {
	return Config{
		Path:     envutil.String("KNOWLEDGE_BASE_PATH", ""),
		MinScore: envutil.Float("KNOWLEDGE_MIN_SCORE", 0.3),
	}
}

// Search is a keyword ContentSearch over a small curated article set.
type Search struct {
	log      *logger.Logger
	articles []Article
	matcher  *phrase.Matcher
	minScore float64
}

var _ flow.ContentSearch = (*Search)(nil)

func New(log *logger.Logger, cfg Config) (*Search, error) {
	data := defaultKnowledge
	if cfg.Path != "" {
		b, err := os.ReadFile(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("read knowledge base %s: %w", cfg.Path, err)
		}
		data = b
	}
	return Parse(log, data, cfg.MinScore)
}

func Parse(log *logger.Logger, data []byte, minScore float64) (*Search, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse knowledge base: %w", err)
	}
	s := &Search{log: log.With("client", "KnowledgeSearch"), minScore: minScore}
	rules := make([]phrase.Rule, 0, len(f.Articles))
	for _, a := range f.Articles {
		if strings.TrimSpace(a.SourceURL) == "" || strings.TrimSpace(a.Content) == "" {
			s.log.Warn("knowledge article skipped: missing source_url or content", "id", a.ID)
			continue
		}
		s.articles = append(s.articles, a)
		rules = append(rules, phrase.Rule{Name: a.ID, Mode: phrase.Contains, Phrases: a.Keywords})
	}
	s.matcher = phrase.NewMatcher(rules)
	return s, nil
}

func (s *Search) Len() int { return len(s.articles) }

// Search ranks articles by matched keyword words; longer phrases and more
// distinct keywords score higher. Scores fall in (0, 1).
func (s *Search) Search(ctx context.Context, query string, conversationHint string) (flow.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return flow.SearchResult{}, err
	}
	hits := s.matcher.Matches(query)
	if len(hits) == 0 {
		return flow.SearchResult{Found: false}, nil
	}

	type scored struct {
		idx   int
		score float64
	}
	byRule := map[int]float64{}
	for _, h := range hits {
		byRule[h.Index] += float64(len(strings.Fields(h.Phrase)))
	}
	ranked := make([]scored, 0, len(byRule))
	for idx, w := range byRule {
		ranked = append(ranked, scored{idx: idx, score: w / (w + 1)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].idx < ranked[j].idx
	})

	best := ranked[0]
	a := s.articles[best.idx]
	s.log.Debug("knowledge search", "article", a.ID, "score", best.score, "hint", conversationHint)
	if best.score < s.minScore {
		return flow.SearchResult{Found: false, RelevanceScore: best.score}, nil
	}
	return flow.SearchResult{
		Found:          true,
		Content:        strings.TrimSpace(a.Content),
		Source:         a.Source,
		SourceURL:      a.SourceURL,
		RelevanceScore: best.score,
	}, nil
}
