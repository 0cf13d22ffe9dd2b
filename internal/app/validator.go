package app

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"loo_review/internal/domain"
)

// DefaultPolicyTerms is a placeholder denylist; deployments configure their own.
var DefaultPolicyTerms = []string{"badword1", "badword2", "offensive"}

type ValidationResult struct {
	OK       bool                   `json:"ok"`
	Missing  []domain.FieldName     `json:"missing,omitempty"`
	Warnings []domain.PolicyWarning `json:"warnings,omitempty"`
}

// Validator checks drafts against the configured categories. Denylist terms
// match case-insensitively and only as whole tokens: an edge of the term that
// is a word character must not touch another word character.
type Validator struct {
	categories []domain.Category
	policy     *regexp.Regexp // nil when the denylist is empty
}

func NewValidator(categories []domain.Category, terms []string) *Validator {
	cleaned := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	// longest first so a longer term wins over its own prefix
	sort.SliceStable(cleaned, func(i, j int) bool { return len(cleaned[i]) > len(cleaned[j]) })
	quoted := make([]string, len(cleaned))
	for i, t := range cleaned {
		quoted[i] = regexp.QuoteMeta(t)
	}
	v := &Validator{categories: append([]domain.Category(nil), categories...)}
	if len(quoted) > 0 {
		v.policy = regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `)`)
	}
	return v
}

// Validate collects every missing required field plus any policy warnings.
// Warnings never make the result fail.
func (v *Validator) Validate(d domain.ReviewDraft) ValidationResult {
	var res ValidationResult

	if d.Image == nil || len(d.Image.Data) == 0 {
		res.Missing = append(res.Missing, domain.FieldImage)
	}
	for _, c := range v.categories {
		if val, ok := d.Ratings.Get(c); !ok || val <= 0 {
			res.Missing = append(res.Missing, domain.RatingField(c))
		}
	}
	if d.TrimmedLocation() == "" {
		res.Missing = append(res.Missing, domain.FieldLocation)
	}

	res.Warnings = append(res.Warnings, v.scan("comments", d.Comments)...)
	res.Warnings = append(res.Warnings, v.scan("location", d.LocationText)...)

	res.OK = len(res.Missing) == 0
	return res
}

func (v *Validator) scan(field, text string) []domain.PolicyWarning {
	if v.policy == nil || text == "" {
		return nil
	}
	var out []domain.PolicyWarning
	seen := map[string]struct{}{}
	for _, loc := range v.policy.FindAllStringIndex(text, -1) {
		if !standalone(text, loc[0], loc[1]) {
			continue
		}
		term := strings.ToLower(text[loc[0]:loc[1]])
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, domain.PolicyWarning{Field: field, Term: term})
	}
	return out
}

// standalone reports whether text[start:end] is not glued to a neighbouring
// word. Only edges that are themselves word characters are checked.
func standalone(text string, start, end int) bool {
	first, _ := utf8.DecodeRuneInString(text[start:])
	if isWord(first) && start > 0 {
		prev, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWord(prev) {
			return false
		}
	}
	last, _ := utf8.DecodeLastRuneInString(text[:end])
	if isWord(last) && end < len(text) {
		next, _ := utf8.DecodeRuneInString(text[end:])
		if isWord(next) {
			return false
		}
	}
	return true
}

func isWord(r rune) bool { return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) }
