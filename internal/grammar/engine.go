package grammar

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/BurntSushi/toml"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"tinymist/internal/textexport"
)

// Rule ids reported as Suggestion.Source.
const (
	RuleSpelling         = "SPELLING"
	RuleRepeatedWord     = "REPEATED_WORD"
	RuleSpaceBeforePunct = "WHITESPACE_BEFORE_PUNCTUATION"
	RuleArticle          = "EN_A_VS_AN"
)

//go:embed rules.toml
var rulesTOML string

// Rules is the static rule data. It is read-only after loading.
type Rules struct {
	Checks struct {
		Spelling         bool `toml:"spelling"`
		RepeatedWord     bool `toml:"repeated_word"`
		SpaceBeforePunct bool `toml:"space_before_punctuation"`
		Article          bool `toml:"article"`
	} `toml:"checks"`
	Spelling map[string]string `toml:"spelling"`
	Article  struct {
		APrefixes  []string `toml:"a_prefixes"`
		AnPrefixes []string `toml:"an_prefixes"`
	} `toml:"article"`
}

var (
	rulesOnce sync.Once
	rules     *Rules
	rulesErr  error
)

// LoadRules parses the embedded rule set once per process.
func LoadRules() (*Rules, error) {
	rulesOnce.Do(func() {
		rules, rulesErr = ParseRules(rulesTOML)
	})
	return rules, rulesErr
}

// ParseRules decodes a rule set.
func ParseRules(data string) (*Rules, error) {
	var r Rules
	if _, err := toml.Decode(data, &r); err != nil {
		return nil, fmt.Errorf("grammar rules: %w", err)
	}
	normalized := make(map[string]string, len(r.Spelling))
	for k, v := range r.Spelling {
		normalized[norm.NFC.String(strings.ToLower(k))] = v
	}
	r.Spelling = normalized
	return &r, nil
}

// Match is one finding in plain text.
type Match struct {
	Rule         string
	Message      string
	Range        textexport.Range
	Replacements []string
}

type word struct {
	text  string
	start int
	end   int
	key   string // NFC, lower case
}

// Check runs every enabled rule over text. Matches are ordered by position.
func (r *Rules) Check(text string) []Match {
	lower := cases.Lower(language.English)
	words := splitWords(text, func(s string) string { return lower.String(norm.NFC.String(s)) })

	var out []Match
	if r.Checks.Spelling {
		out = append(out, r.checkSpelling(words)...)
	}
	if r.Checks.RepeatedWord {
		out = append(out, checkRepeated(text, words)...)
	}
	if r.Checks.SpaceBeforePunct {
		out = append(out, checkSpaceBeforePunct(text)...)
	}
	if r.Checks.Article {
		out = append(out, r.checkArticle(text, words)...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Range.Start < out[j].Range.Start })
	return out
}

func splitWords(text string, key func(string) string) []word {
	var words []word
	start := -1
	for i, r := range text {
		inWord := unicode.IsLetter(r) || unicode.IsDigit(r) || (r == '\'' && start >= 0)
		switch {
		case inWord && start < 0:
			start = i
		case !inWord && start >= 0:
			words = append(words, newWord(text, start, i, key))
			start = -1
		}
	}
	if start >= 0 {
		words = append(words, newWord(text, start, len(text), key))
	}
	return words
}

func newWord(text string, start, end int, key func(string) string) word {
	// апостроф в конце слова к слову не относится
	for end > start && text[end-1] == '\'' {
		end--
	}
	return word{text: text[start:end], start: start, end: end, key: key(text[start:end])}
}

// matchCase copies the capitalisation pattern of orig onto repl.
func matchCase(orig, repl string) string {
	first, _ := utf8.DecodeRuneInString(orig)
	switch {
	case isAllUpper(orig) && utf8.RuneCountInString(orig) > 1:
		return cases.Upper(language.English).String(repl)
	case unicode.IsUpper(first):
		r, size := utf8.DecodeRuneInString(repl)
		return string(unicode.ToUpper(r)) + repl[size:]
	default:
		return repl
	}
}

func isAllUpper(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) && !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

func (r *Rules) checkSpelling(words []word) []Match {
	var out []Match
	for _, w := range words {
		fixed, ok := r.Spelling[w.key]
		if !ok {
			continue
		}
		out = append(out, Match{
			Rule:         RuleSpelling,
			Message:      "Possible spelling mistake found.",
			Range:        textexport.Range{Start: w.start, End: w.end},
			Replacements: []string{matchCase(w.text, fixed)},
		})
	}
	return out
}

func onlySpaces(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r != ' ' && r != '\t' {
			return false
		}
	}
	return true
}

func checkRepeated(text string, words []word) []Match {
	var out []Match
	for i := 1; i < len(words); i++ {
		prev, cur := words[i-1], words[i]
		if prev.key != cur.key || !onlySpaces(text[prev.end:cur.start]) {
			continue
		}
		// числа повторяются законно
		if r, _ := utf8.DecodeRuneInString(cur.text); unicode.IsDigit(r) {
			continue
		}
		out = append(out, Match{
			Rule:         RuleRepeatedWord,
			Message:      "Possible typo: you repeated a word.",
			Range:        textexport.Range{Start: prev.start, End: cur.end},
			Replacements: []string{prev.text},
		})
	}
	return out
}

func checkSpaceBeforePunct(text string) []Match {
	var out []Match
	for i := 0; i < len(text); i++ {
		if !strings.ContainsRune(",.;:!?", rune(text[i])) || i == 0 {
			continue
		}
		j := i
		for j > 0 && (text[j-1] == ' ' || text[j-1] == '\t') {
			j--
		}
		// только внутри строки, после слова
		if j == i || j == 0 || text[j-1] == '\n' {
			continue
		}
		out = append(out, Match{
			Rule:         RuleSpaceBeforePunct,
			Message:      "Don't put a space before the punctuation.",
			Range:        textexport.Range{Start: j, End: i + 1},
			Replacements: []string{text[i : i+1]},
		})
	}
	return out
}

func (r *Rules) checkArticle(text string, words []word) []Match {
	var out []Match
	for i := 0; i+1 < len(words); i++ {
		art, next := words[i], words[i+1]
		if art.key != "a" && art.key != "an" {
			continue
		}
		if !onlySpaces(text[art.end:next.start]) {
			continue
		}
		wantAn := r.takesAn(next.key)
		switch {
		case art.key == "a" && wantAn:
			out = append(out, articleMatch(art, "an", next.text))
		case art.key == "an" && !wantAn:
			out = append(out, articleMatch(art, "a", next.text))
		}
	}
	return out
}

func articleMatch(art word, fixed, next string) Match {
	return Match{
		Rule:         RuleArticle,
		Message:      fmt.Sprintf("Use %q instead of %q if the following word is %q.", fixed, strings.ToLower(art.text), next),
		Range:        textexport.Range{Start: art.start, End: art.end},
		Replacements: []string{matchCase(art.text, fixed)},
	}
}

func (r *Rules) takesAn(key string) bool {
	for _, p := range r.Article.AnPrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	for _, p := range r.Article.APrefixes {
		if strings.HasPrefix(key, p) {
			return false
		}
	}
	first, _ := utf8.DecodeRuneInString(key)
	return strings.ContainsRune("aeiou", first)
}
