package scheduler

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// Tiers used by the built-in rule sets.
const (
	TierUserData = 0
	TierFlat     = 1
	TierGeneric  = 2
	TierSystem   = 3
)

// TierRule maps a glob over the lower-cased, slash-separated absolute path
// to a tier.
type TierRule struct {
	Pattern string
	Tier    int
}

type compiledRule struct {
	TierRule
	g glob.Glob
}

// TierRules assigns tiers to directories. The first matching rule wins.
type TierRules struct {
	rules   []compiledRule
	Default int
}

// NewTierRules compiles rules in order.
func NewTierRules(def int, rules ...TierRule) (*TierRules, error) {
	tr := &TierRules{Default: def}
	for _, r := range rules {
		g, err := glob.Compile(r.Pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("tier pattern %q: %w", r.Pattern, err)
		}
		tr.rules = append(tr.rules, compiledRule{TierRule: r, g: g})
	}
	return tr, nil
}

// TierOf returns the tier of a normalized directory path.
func (t *TierRules) TierOf(path string) int {
	key := strings.ToLower(filepath.ToSlash(path))
	for _, r := range t.rules {
		if r.g.Match(key) {
			return r.Tier
		}
	}
	return t.Default
}

var userDataFolders = []string{
	"desktop", "documents", "downloads", "pictures", "music", "videos",
	"projects", "onedrive", "dropbox", "my documents",
}

var systemFolders = []string{
	"/proc", "/sys", "/dev", "/run", "/boot", "/usr", "/bin", "/sbin",
	"/lib", "/lib64", "/etc", "/var", "/opt", "/snap", "/system", "/library",
	"/applications", "?:/windows", "?:/program files", "?:/program files (x86)",
	"?:/programdata", "?:/$recycle.bin",
}

// DefaultTierRules puts the user's data folders first and known system
// folders last. home may be empty.
func DefaultTierRules(home string) *TierRules {
	var rules []TierRule

	if home != "" {
		h := glob.QuoteMeta(strings.ToLower(filepath.ToSlash(home)))
		rules = append(rules, TierRule{Pattern: h, Tier: TierUserData})
		for _, name := range userDataFolders {
			rules = append(rules, subtree(h+"/"+glob.QuoteMeta(name), TierUserData)...)
		}
	}
	for _, dir := range systemFolders {
		rules = append(rules, subtree(dir, TierSystem)...)
	}

	tr, err := NewTierRules(TierGeneric, rules...)
	if err != nil {
		// built-in patterns are static apart from the quoted home path
		panic(err)
	}
	return tr
}

// FlatTierRules disables prioritization.
func FlatTierRules() *TierRules {
	return &TierRules{Default: TierFlat}
}

// subtree matches a folder and everything beneath it.
func subtree(pattern string, tier int) []TierRule {
	return []TierRule{
		{Pattern: pattern, Tier: tier},
		{Pattern: pattern + "/**", Tier: tier},
	}
}
