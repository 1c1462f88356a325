package safety

import (
	"familycoach/app/config"
	"log/slog"
	"strings"

	"github.com/samber/do"
	"github.com/samber/lo"
)

// DefaultPhrases flag self-harm ideation and acute distress.
var DefaultPhrases = []string{
	"kill myself",
	"killing myself",
	"end my life",
	"ending my life",
	"take my own life",
	"suicide",
	"suicidal",
	"self-harm",
	"self harm",
	"harm myself",
	"hurt myself",
	"hurting myself",
	"cut myself",
	"cutting myself",
	"want to die",
	"wanna die",
	"don't want to live",
	"do not want to live",
	"no reason to live",
	"better off dead",
	"unsafe",
	"not safe",
	"seriously unwell",
	"very unwell",
	"really unwell",
	"severely unwell",
}

type Assessment struct {
	Risk    bool
	Matched []string
}

// Classifier flags a message as risk-indicating when it contains any of the
// configured phrases. Matching ignores case, curly apostrophes and runs of
// whitespace.
type Classifier struct {
	phrases []string
}

func New(di *do.Injector) (*Classifier, error) {
	cfg := do.MustInvoke[*config.Config](di)

	classifier := NewClassifier(cfg.Safety.Phrases)
	slog.Info("Safety classifier ready", "phrases", len(classifier.phrases))

	return classifier, nil
}

func NewClassifier(phrases []string) *Classifier {
	normalized := lo.Uniq(lo.FilterMap(phrases, func(p string, _ int) (string, bool) {
		n := normalize(p)
		return n, n != ""
	}))

	if len(normalized) == 0 {
		return NewClassifier(DefaultPhrases)
	}

	return &Classifier{phrases: normalized}
}

func (c *Classifier) Assess(message string) Assessment {
	text := normalize(message)

	matched := lo.Filter(c.phrases, func(p string, _ int) bool {
		return strings.Contains(text, p)
	})

	return Assessment{
		Risk:    len(matched) > 0,
		Matched: matched,
	}
}

func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("’", "'", "‘", "'").Replace(s)

	return strings.Join(strings.Fields(s), " ")
}
