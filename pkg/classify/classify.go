// Package classify decides which downloaded file plays which role in the
// gallery: the sketch entry point, its thumbnail, documentation and
// instructions.
package classify

import (
	"path/filepath"
	"strings"
)

// Role names, as recorded in a descriptor's missing_files list.
const (
	RoleDocumentation = "documentation"
	RoleInstructions  = "instructions"
	RoleSketch        = "sketch"
	RoleThumb         = "thumb"
)

// Rule matches a file name (base name only) for a role.
type Rule struct {
	Name  string
	Match func(name string) bool
}

// RoleRules is an ordered rule list for one role. The first rule with any
// match wins; within a rule the first file in listing order wins.
type RoleRules struct {
	Role  string
	Rules []Rule
}

// DefaultRules is evaluated top to bottom, which is also the order roles
// appear in Result.Missing.
var DefaultRules = []RoleRules{
	{Role: RoleDocumentation, Rules: []Rule{
		{Name: "*.pdf", Match: hasExt(".pdf")},
		{Name: "*.docx|*.doc", Match: hasExt(".docx", ".doc")},
	}},
	{Role: RoleInstructions, Rules: []Rule{
		{Name: "instructions.txt", Match: named("instructions.txt")},
		{Name: "*.txt", Match: hasExt(".txt")},
	}},
	{Role: RoleSketch, Rules: []Rule{
		{Name: "index.html", Match: named("index.html")},
		{Name: "*.html", Match: hasExt(".html")},
	}},
	{Role: RoleThumb, Rules: []Rule{
		{Name: "thumb.png", Match: named("thumb.png")},
		{Name: "*.png", Match: hasExt(".png")},
		{Name: "*.jpg|*.jpeg", Match: hasExt(".jpg", ".jpeg")},
	}},
}

// Result is the outcome of classifying one directory.
type Result struct {
	Roles    map[string]string // role -> matched path
	Missing  []string
	FoundAll bool
}

// Path returns the path for role, or "" if it was not found.
func (r Result) Path(role string) string { return r.Roles[role] }

// Classify applies DefaultRules to files, which are the paths directly
// inside dir. A missing sketch points at dir itself.
func Classify(files []string, dir string) Result {
	return ClassifyWith(DefaultRules, files, dir)
}

// ClassifyWith applies an explicit rule table.
func ClassifyWith(table []RoleRules, files []string, dir string) Result {
	res := Result{Roles: make(map[string]string), Missing: []string{}}
	for _, rr := range table {
		if path, ok := firstMatch(rr.Rules, files); ok {
			res.Roles[rr.Role] = path
			continue
		}
		res.Missing = append(res.Missing, rr.Role)
		if rr.Role == RoleSketch {
			res.Roles[rr.Role] = dir
		}
	}
	res.FoundAll = len(res.Missing) == 0
	return res
}

func firstMatch(rules []Rule, files []string) (string, bool) {
	for _, rule := range rules {
		for _, f := range files {
			if rule.Match(filepath.Base(f)) {
				return f, true
			}
		}
	}
	return "", false
}

func named(want string) func(string) bool {
	return func(name string) bool { return strings.EqualFold(name, want) }
}

func hasExt(exts ...string) func(string) bool {
	return func(name string) bool {
		ext := strings.ToLower(filepath.Ext(name))
		for _, e := range exts {
			if ext == e {
				return true
			}
		}
		return false
	}
}
