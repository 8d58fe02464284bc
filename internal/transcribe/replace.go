package transcribe

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
)

// Replacer applies user-configured word replacements to finished transcripts.
// The rule file is a flat JSON object of {"from": "to"} pairs; matching is
// case-insensitive on whole words.
type Replacer struct {
	mu    sync.RWMutex
	rules []replaceRule
}

type replaceRule struct {
	re *regexp.Regexp
	to string
}

// NewReplacer loads rules from path. An empty path yields a disabled replacer;
// a missing or unreadable file is an error so a typo in the config is visible
// at startup.
func NewReplacer(path string) (*Replacer, error) {
	r := &Replacer{}
	if path == "" {
		return r, nil
	}
	if err := r.LoadFile(path); err != nil {
		return nil, err
	}
	return r, nil
}

// LoadFile replaces the rule set from a JSON file.
func (r *Replacer) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read replacements: %w", err)
	}
	var pairs map[string]string
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return fmt.Errorf("parse replacements: %w", err)
	}

	rules := make([]replaceRule, 0, len(pairs))
	for from, to := range pairs {
		from = strings.TrimSpace(from)
		if from == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(from) + `\b`)
		if err != nil {
			return fmt.Errorf("replacement rule %q: %w", from, err)
		}
		rules = append(rules, replaceRule{re: re, to: to})
	}

	r.mu.Lock()
	r.rules = rules
	r.mu.Unlock()
	return nil
}

// Enabled reports whether any rules are loaded.
func (r *Replacer) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules) > 0
}

// Apply rewrites text with every rule and returns the result plus the number
// of substitutions made.
func (r *Replacer) Apply(text string) (string, int) {
	r.mu.RLock()
	rules := r.rules
	r.mu.RUnlock()

	total := 0
	for _, rule := range rules {
		n := 0
		text = rule.re.ReplaceAllStringFunc(text, func(string) string {
			n++
			return rule.to
		})
		total += n
	}
	return text, total
}
