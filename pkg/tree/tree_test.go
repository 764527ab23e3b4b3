package tree

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/jareddonovan/creative-coding-showcase/pkg/platforms"
)

func folder(id, name string, children ...string) platforms.RemoteNode {
	return platforms.RemoteNode{ID: id, Name: name, FileType: platforms.FileTypeFolder, Children: children}
}

func file(id, name string) platforms.RemoteNode {
	return platforms.RemoteNode{ID: id, Name: name, FileType: platforms.FileTypeFile}
}

// depth3 is root -> {index.html, assets -> {img -> {a.png}}, sketch.js}, listed
// leaf-first to make sure input order does not matter for resolution.
func depth3() []platforms.RemoteNode {
	return []platforms.RemoteNode{
		file("png", "a.png"),
		folder("img", "img", "png"),
		file("js", "sketch.js"),
		folder("assets", "assets", "img"),
		file("html", "index.html"),
		folder("root", "root", "html", "assets", "js"),
	}
}

func TestResolveDepth3(t *testing.T) {
	dest := filepath.Join("/kiosk", "_imports", "Ada_Lovelace_xyz")
	r, err := Resolve(depth3(), dest)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	want := map[string]string{
		"root":   filepath.Join(dest, "root"),
		"html":   filepath.Join(dest, "root", "index.html"),
		"js":     filepath.Join(dest, "root", "sketch.js"),
		"assets": filepath.Join(dest, "root", "assets"),
		"img":    filepath.Join(dest, "root", "assets", "img"),
		"png":    filepath.Join(dest, "root", "assets", "img", "a.png"),
	}
	for id, p := range want {
		got, ok := r.Path(id)
		if !ok || got != p {
			t.Errorf("Path(%s) = %q, want %q", id, got, p)
		}
	}

	if r.RootID() != "root" || r.RootDir() != filepath.Join(dest, "root") {
		t.Errorf("root = %s %s", r.RootID(), r.RootDir())
	}

	rootFiles := r.FilesIn(r.RootDir())
	wantFiles := []string{filepath.Join(dest, "root", "sketch.js"), filepath.Join(dest, "root", "index.html")}
	if !reflect.DeepEqual(rootFiles, wantFiles) {
		t.Errorf("FilesIn(root) = %v, want %v", rootFiles, wantFiles)
	}
	if got := r.FilesIn(filepath.Join(dest, "root", "assets")); len(got) != 0 {
		t.Errorf("assets holds no files directly, got %v", got)
	}
}

func TestOrderedPutsParentsFirst(t *testing.T) {
	r, err := Resolve(depth3(), "/d")
	if err != nil {
		t.Fatal(err)
	}
	pos := map[string]int{}
	for i, id := range r.Ordered() {
		pos[id] = i
	}
	if len(pos) != 6 {
		t.Fatalf("Ordered returned %d ids", len(pos))
	}
	for _, pair := range [][2]string{{"root", "assets"}, {"assets", "img"}, {"img", "png"}, {"root", "html"}} {
		if pos[pair[0]] > pos[pair[1]] {
			t.Errorf("%s should come before %s", pair[0], pair[1])
		}
	}
}

func TestResolveErrors(t *testing.T) {
	cases := []struct {
		name  string
		nodes []platforms.RemoteNode
		want  error
	}{
		{"empty", nil, ErrNoRoot},
		{"missing child", []platforms.RemoteNode{folder("r", "root", "ghost")}, ErrMissingNode},
		{"two parents", []platforms.RemoteNode{
			folder("r", "root", "a", "b"),
			folder("a", "a", "f"),
			folder("b", "b", "f"),
			file("f", "f.txt"),
		}, ErrMultipleParents},
		{"two roots", []platforms.RemoteNode{folder("r", "root"), folder("s", "other")}, ErrMultipleRoots},
		{"cycle beside root", []platforms.RemoteNode{
			folder("r", "root"),
			folder("a", "a", "b"),
			folder("b", "b", "a"),
		}, ErrCycle},
		{"all cyclic", []platforms.RemoteNode{folder("a", "a", "b"), folder("b", "b", "a")}, ErrCycle},
		{"self child", []platforms.RemoteNode{folder("r", "root"), folder("a", "a", "a")}, ErrCycle},
		{"duplicate id", []platforms.RemoteNode{folder("r", "root"), file("r", "x")}, ErrDuplicateID},
		{"bad name", []platforms.RemoteNode{folder("r", "root", "f"), file("f", "../escape")}, ErrBadName},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Resolve(c.nodes, "/d")
			if !errors.Is(err, c.want) {
				t.Fatalf("err = %v, want %v", err, c.want)
			}
		})
	}
}

func TestDestRootAndKey(t *testing.T) {
	tests := []struct {
		name, display, id, want string
	}{
		{"name and id", "Ada  King Lovelace", "AbC 12", "Ada_King_Lovelace_AbC_12"},
		{"no name", "", "xyz", "xyz"},
		{"name strips to nothing", "李明", "xyz", "xyz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Key(tt.display, tt.id)
			if err != nil {
				t.Fatalf("Key: %v", err)
			}
			if got != tt.want {
				t.Errorf("Key = %q, want %q", got, tt.want)
			}
		})
	}

	want := filepath.Join("/s", "_imports", "Ada_Lovelace_xyz")
	got, err := DestRoot(filepath.Join("/s", "_imports"), "Ada Lovelace", "xyz")
	if err != nil || got != want {
		t.Errorf("DestRoot = %q, %v, want %q", got, err, want)
	}
}

func TestKeyRejectsEmptySketchID(t *testing.T) {
	for _, id := range []string{"", "...", "漢字", "  "} {
		if _, err := Key("李明", id); !errors.Is(err, ErrBadKey) {
			t.Errorf("Key(%q) err = %v, want ErrBadKey", id, err)
		}
		if _, err := Key("Ada Lovelace", id); !errors.Is(err, ErrBadKey) {
			t.Errorf("Key(Ada, %q) err = %v, want ErrBadKey", id, err)
		}
		if _, err := DestRoot("/s/_imports", "Ada", id); !errors.Is(err, ErrBadKey) {
			t.Errorf("DestRoot(%q) err = %v, want ErrBadKey", id, err)
		}
	}
}
