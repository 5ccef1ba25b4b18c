package editor

import (
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/chazu/declcad/pkg/engine"
	"github.com/samber/lo"
)

const (
	DefaultLimit     = 20
	DefaultThreshold = 0.7
)

var errCursor = errors.New("cursor outside source")

// defshapePattern finds names introduced with defshape.
var defshapePattern = regexp.MustCompile(`\(defshape\s+"([^"]+)"`)

// Completer suggests builtins, keywords and defined shape names for the
// word under the cursor.
type Completer struct {
	tooling
	metric *metrics.JaroWinkler
}

// NewCompleter returns a completer ranking fuzzy matches by Jaro-Winkler
// similarity.
func NewCompleter(opts ...Option) *Completer {
	jw := metrics.NewJaroWinkler()
	jw.CaseSensitive = false
	return &Completer{tooling: newTooling(opts), metric: jw}
}

// Complete returns suggestions for the word ending at cur. Prefix matches
// come first, alphabetically; fuzzy matches follow by decreasing
// similarity.
func (c *Completer) Complete(source string, cur Cursor) []string {
	var out []string
	c.guard("complete", func() error {
		seed, err := seedAt(source, cur)
		if err != nil {
			return err
		}
		if seed == "" {
			return nil
		}
		out = c.rank(seed, candidates(source))
		return nil
	})
	return out
}

func (c *Completer) rank(seed string, cands []string) []string {
	lower := strings.ToLower(seed)
	prefix, rest := lo.FilterReject(cands, func(s string, _ int) bool {
		return strings.HasPrefix(strings.ToLower(s), lower)
	})
	sort.Strings(prefix)

	type scored struct {
		name  string
		score float64
	}
	fuzzy := lo.FilterMap(rest, func(s string, _ int) (scored, bool) {
		score := strutil.Similarity(seed, s, c.metric)
		return scored{s, score}, score >= c.threshold
	})
	sort.SliceStable(fuzzy, func(i, j int) bool {
		if fuzzy[i].score != fuzzy[j].score {
			return fuzzy[i].score > fuzzy[j].score
		}
		return fuzzy[i].name < fuzzy[j].name
	})

	out := append(prefix, lo.Map(fuzzy, func(s scored, _ int) string { return s.name })...)
	if c.limit > 0 && len(out) > c.limit {
		out = out[:c.limit]
	}
	return out
}

// candidates returns every completable word for source.
func candidates(source string) []string {
	out := append(engine.Builtins(), engine.Keywords()...)
	for _, m := range defshapePattern.FindAllStringSubmatch(source, -1) {
		out = append(out, m[1])
	}
	return lo.Uniq(out)
}

// seedAt returns the partial word immediately before cur.
func seedAt(source string, cur Cursor) (string, error) {
	lines := strings.Split(source, "\n")
	if cur.Line < 0 || cur.Line >= len(lines) {
		return "", errCursor
	}
	line := []rune(lines[cur.Line])
	if cur.Column < 0 || cur.Column > len(line) {
		return "", errCursor
	}
	start := cur.Column
	for start > 0 && isWordRune(line[start-1]) {
		start--
	}
	return string(line[start:cur.Column]), nil
}

func isWordRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return r == '-' || r == '_' || r == ':'
}
