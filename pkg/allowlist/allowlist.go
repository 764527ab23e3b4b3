// Package allowlist holds the identities permitted to request imports.
package allowlist

import (
	"fmt"
	"os"
	"sort"

	"github.com/tidwall/gjson"
)

// Identity is a permitted requester.
type Identity struct {
	IDHash string `json:"idHash"`
	Name   string `json:"name"`
}

// Allowlist is read-only after it has been loaded.
type Allowlist struct {
	byID map[string]Identity
}

// Load reads and parses the allowlist file at path. Warnings about skipped
// entries are returned alongside the list.
func Load(path string) (*Allowlist, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading allowlist: %w", err)
	}
	return Parse(data)
}

// Parse reads the `{all: [...], byId: {hash: {name}}}` document. Only ids
// listed in `all` that also carry a name in `byId` are permitted.
func Parse(data []byte) (*Allowlist, []string, error) {
	if !gjson.ValidBytes(data) {
		return nil, nil, fmt.Errorf("allowlist is not valid JSON")
	}
	doc := gjson.ParseBytes(data)
	all := doc.Get("all")
	if !all.IsArray() {
		return nil, nil, fmt.Errorf("allowlist has no \"all\" array")
	}

	a := &Allowlist{byID: make(map[string]Identity)}
	byID := doc.Get("byId")
	var warnings []string

	all.ForEach(func(_, value gjson.Result) bool {
		id := value.String()
		if id == "" {
			return true
		}
		// gjson paths treat these characters specially.
		name := byID.Get(gjson.Escape(id) + ".name").String()
		if name == "" {
			warnings = append(warnings, fmt.Sprintf("allowlist id %s has no name in byId, skipping", id))
			return true
		}
		a.byID[id] = Identity{IDHash: id, Name: name}
		return true
	})

	byID.ForEach(func(key, _ gjson.Result) bool {
		if _, ok := a.byID[key.String()]; !ok && !containsString(all, key.String()) {
			warnings = append(warnings, fmt.Sprintf("allowlist id %s is in byId but not in all, ignoring", key.String()))
		}
		return true
	})

	return a, warnings, nil
}

// Lookup returns the identity for idHash if it is permitted.
func (a *Allowlist) Lookup(idHash string) (Identity, bool) {
	if a == nil {
		return Identity{}, false
	}
	id, ok := a.byID[idHash]
	return id, ok
}

// Contains reports whether idHash is permitted.
func (a *Allowlist) Contains(idHash string) bool {
	_, ok := a.Lookup(idHash)
	return ok
}

// Len returns the number of permitted identities.
func (a *Allowlist) Len() int {
	if a == nil {
		return 0
	}
	return len(a.byID)
}

// Identities returns all permitted identities sorted by name.
func (a *Allowlist) Identities() []Identity {
	if a == nil {
		return nil
	}
	out := make([]Identity, 0, len(a.byID))
	for _, id := range a.byID {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].IDHash < out[j].IDHash
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func containsString(arr gjson.Result, s string) bool {
	found := false
	arr.ForEach(func(_, v gjson.Result) bool {
		if v.String() == s {
			found = true
			return false
		}
		return true
	})
	return found
}
