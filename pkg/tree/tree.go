// Package tree rebuilds the folder hierarchy of a sketch project from the
// flat node list the editor returns, and maps every node to its destination
// path on disk.
package tree

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jareddonovan/creative-coding-showcase/internal/utils"
	"github.com/jareddonovan/creative-coding-showcase/pkg/platforms"
)

// Structural errors. Each is fatal to the import it occurs in only.
var (
	ErrCycle           = errors.New("parent cycle in project tree")
	ErrMissingNode     = errors.New("child id not present in project")
	ErrMultipleParents = errors.New("node listed as child of more than one folder")
	ErrNoRoot          = errors.New("project has no root node")
	ErrMultipleRoots   = errors.New("project has more than one root node")
	ErrDuplicateID     = errors.New("duplicate node id")
	ErrBadName         = errors.New("node name is not a single path element")
	ErrBadKey          = errors.New("sketch id has no path-safe characters")
)

// Resolved maps each node of one project to its destination path.
type Resolved struct {
	destRoot string
	rootID   string
	nodes    map[string]platforms.RemoteNode
	paths    map[string]string
	depth    map[string]int
	order    []string            // input order
	filesIn  map[string][]string // dir path -> file paths, input order
}

// Resolve builds parent links by inverting every node's Children, checks
// that the nodes form exactly one tree, and computes
// destRoot/<ancestor names>/<own name> for every node. The root node
// therefore maps to destRoot/<root name>: the classifier looks for a
// sketch's files in RootDir, one level below the destination root.
func Resolve(nodes []platforms.RemoteNode, destRoot string) (*Resolved, error) {
	r := &Resolved{
		destRoot: destRoot,
		nodes:    make(map[string]platforms.RemoteNode, len(nodes)),
		paths:    make(map[string]string, len(nodes)),
		depth:    make(map[string]int, len(nodes)),
		filesIn:  make(map[string][]string),
	}

	for _, n := range nodes {
		if _, dup := r.nodes[n.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, n.ID)
		}
		if !validName(n.Name) {
			return nil, fmt.Errorf("%w: %q", ErrBadName, n.Name)
		}
		r.nodes[n.ID] = n
		r.order = append(r.order, n.ID)
	}

	parent := make(map[string]string, len(nodes))
	for _, id := range r.order {
		for _, child := range r.nodes[id].Children {
			if _, ok := r.nodes[child]; !ok {
				return nil, fmt.Errorf("%w: %s (child of %s)", ErrMissingNode, child, id)
			}
			if prev, ok := parent[child]; ok && prev != id {
				return nil, fmt.Errorf("%w: %s (in %s and %s)", ErrMultipleParents, child, prev, id)
			}
			parent[child] = id
		}
	}

	for _, id := range r.order {
		if _, hasParent := parent[id]; hasParent {
			continue
		}
		if r.rootID != "" {
			return nil, fmt.Errorf("%w: %s and %s", ErrMultipleRoots, r.rootID, id)
		}
		r.rootID = id
	}
	if r.rootID == "" {
		// Every node has a parent, so the links must loop somewhere.
		if len(nodes) == 0 {
			return nil, ErrNoRoot
		}
		return nil, fmt.Errorf("%w: %w", ErrNoRoot, ErrCycle)
	}

	for _, id := range r.order {
		if _, err := r.resolve(id, parent); err != nil {
			return nil, err
		}
	}

	for _, id := range r.order {
		n := r.nodes[id]
		if n.IsFolder() {
			continue
		}
		dir := filepath.Dir(r.paths[id])
		r.filesIn[dir] = append(r.filesIn[dir], r.paths[id])
	}
	return r, nil
}

// resolve walks parent links from id up to the root (or the first node
// whose path is already known) and fills in paths on the way back down.
// A revisit during the walk is a cycle.
func (r *Resolved) resolve(id string, parent map[string]string) (string, error) {
	if p, ok := r.paths[id]; ok {
		return p, nil
	}

	var chain []string
	seen := make(map[string]bool)
	cur := id
	for {
		if seen[cur] {
			return "", fmt.Errorf("%w: through %s", ErrCycle, cur)
		}
		seen[cur] = true
		chain = append(chain, cur)

		if _, known := r.paths[cur]; known {
			break
		}
		p, ok := parent[cur]
		if !ok {
			break
		}
		cur = p
	}

	// chain runs leaf -> ancestor; the last element is either the root or a
	// node that already has a path.
	last := chain[len(chain)-1]
	base, known := r.paths[last]
	start := len(chain) - 2
	if !known {
		base = filepath.Join(r.destRoot, r.nodes[last].Name)
		r.paths[last] = base
		r.depth[last] = 0
	}
	for i := start; i >= 0; i-- {
		nid := chain[i]
		base = filepath.Join(base, r.nodes[nid].Name)
		r.paths[nid] = base
		r.depth[nid] = r.depth[chain[i+1]] + 1
	}
	return r.paths[id], nil
}

// Path returns the destination path of a node.
func (r *Resolved) Path(id string) (string, bool) {
	p, ok := r.paths[id]
	return p, ok
}

// Node returns a node by id.
func (r *Resolved) Node(id string) (platforms.RemoteNode, bool) {
	n, ok := r.nodes[id]
	return n, ok
}

// RootID is the id of the single root node.
func (r *Resolved) RootID() string { return r.rootID }

// RootDir is the path of the root node: the directory the sketch's own
// files land in, one level below the destination root.
func (r *Resolved) RootDir() string { return r.paths[r.rootID] }

// DestRoot is the destination root the tree was resolved against.
func (r *Resolved) DestRoot() string { return r.destRoot }

// Ordered returns node ids with every folder before its descendants; ties
// keep input order.
func (r *Resolved) Ordered() []string {
	maxDepth := 0
	for _, d := range r.depth {
		if d > maxDepth {
			maxDepth = d
		}
	}
	out := make([]string, 0, len(r.order))
	for d := 0; d <= maxDepth; d++ {
		for _, id := range r.order {
			if r.depth[id] == d {
				out = append(out, id)
			}
		}
	}
	return out
}

// FilesIn returns the paths of files directly inside dir, in input order.
func (r *Resolved) FilesIn(dir string) []string {
	files := r.filesIn[filepath.Clean(dir)]
	out := make([]string, len(files))
	copy(out, files)
	return out
}

// DestRoot derives the destination root for a sketch from the requester's
// display name and the sketch id: <importsDir>/<Name_With_Underscores>_<id>.
func DestRoot(importsDir, displayName, sketchID string) (string, error) {
	key, err := Key(displayName, sketchID)
	if err != nil {
		return "", err
	}
	return filepath.Join(importsDir, key), nil
}

// Key is the catalog key and directory name of an imported sketch. The
// sketch id must keep at least one path-safe character; a name that strips
// to nothing leaves the id alone.
func Key(displayName, sketchID string) (string, error) {
	id := utils.PathSafe(sketchID)
	if id == "" {
		return "", fmt.Errorf("%w: %q", ErrBadKey, sketchID)
	}
	name := utils.PathSafe(displayName)
	if name == "" {
		return id, nil
	}
	return name + "_" + id, nil
}

func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}
