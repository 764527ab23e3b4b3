// Package p5js fetches sketch projects from the p5.js web editor.
package p5js

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/jareddonovan/creative-coding-showcase/pkg/platforms"
	"github.com/jareddonovan/creative-coding-showcase/pkg/whttp"
	"github.com/tidwall/gjson"
	"github.com/weppos/publicsuffix-go/publicsuffix"
)

const (
	DefaultEditorURL    = "https://editor.p5js.org/editor"
	DefaultEditorDomain = "p5js.org"
)

// sketchKinds are the path segments that precede a sketch id in editor URLs.
var sketchKinds = map[string]bool{
	"sketches": true,
	"full":     true,
	"present":  true,
	"embed":    true,
}

type Editor struct {
	baseURL string
	domain  string
	client  *whttp.Client
}

// NewEditor returns an editor client. editorURL is the API base the project
// path is appended to; domain is the registrable domain sketch URLs must
// belong to.
func NewEditor(editorURL, domain string, client *whttp.Client) *Editor {
	if editorURL == "" {
		editorURL = DefaultEditorURL
	}
	if domain == "" {
		domain = DefaultEditorDomain
	}
	return &Editor{
		baseURL: strings.TrimRight(editorURL, "/"),
		domain:  strings.ToLower(domain),
		client:  client,
	}
}

// ParseSketchURL accepts https://editor.p5js.org/<user>/(sketches|full|present|embed)/<id>.
func (e *Editor) ParseSketchURL(rawURL string) (platforms.SketchRef, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return platforms.SketchRef{}, fmt.Errorf("%w: %q", platforms.ErrBadSketchURL, rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return platforms.SketchRef{}, fmt.Errorf("%w: unsupported scheme %q", platforms.ErrBadSketchURL, u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	registrable, err := publicsuffix.Domain(host)
	if err != nil {
		// Hosts such as "localhost" have no registrable domain.
		registrable = host
	}
	if registrable != e.domain {
		return platforms.SketchRef{}, fmt.Errorf("%w: host %s is not on %s", platforms.ErrBadSketchURL, host, e.domain)
	}

	parts := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	if len(parts) < 3 || !sketchKinds[parts[1]] {
		return platforms.SketchRef{}, fmt.Errorf("%w: %q", platforms.ErrBadSketchURL, rawURL)
	}
	ref := platforms.SketchRef{User: parts[0], SketchID: parts[2]}
	if !validSegment(ref.User) || !validSegment(ref.SketchID) {
		return platforms.SketchRef{}, fmt.Errorf("%w: %q", platforms.ErrBadSketchURL, rawURL)
	}
	return ref, nil
}

// FetchProject performs GET <editor>/<user>/projects/<id> and returns the
// project's flat file list.
func (e *Editor) FetchProject(ctx context.Context, ref platforms.SketchRef) ([]platforms.RemoteNode, error) {
	projectURL := fmt.Sprintf("%s/%s/projects/%s", e.baseURL, url.PathEscape(ref.User), url.PathEscape(ref.SketchID))
	res, err := e.client.SendHTTPRequest(ctx, &whttp.WHTTPReq{
		Method:  "GET",
		URL:     projectURL,
		Headers: []whttp.WHTTPHeader{{Name: "Accept", Value: "application/json"}},
	})
	if err != nil {
		return nil, fmt.Errorf("fetching project %s/%s: %w", ref.User, ref.SketchID, err)
	}
	return ParseProject(res.BodyString)
}

// ParseProject extracts the nodes of a `{files: [...]}` project document.
func ParseProject(body string) ([]platforms.RemoteNode, error) {
	if !gjson.Valid(body) {
		return nil, fmt.Errorf("project response is not JSON")
	}
	files := gjson.Get(body, "files")
	if !files.IsArray() {
		return nil, fmt.Errorf("project response has no files array")
	}

	var nodes []platforms.RemoteNode
	var parseErr error
	files.ForEach(func(_, f gjson.Result) bool {
		n := platforms.RemoteNode{
			ID:       f.Get("id").String(),
			Name:     f.Get("name").String(),
			FileType: f.Get("fileType").String(),
			Content:  f.Get("content").String(),
			URL:      f.Get("url").String(),
		}
		if n.ID == "" {
			n.ID = f.Get("_id").String()
		}
		if n.ID == "" {
			parseErr = fmt.Errorf("project file %q has no id", n.Name)
			return false
		}
		if n.FileType == "" {
			n.FileType = platforms.FileTypeFile
		}
		for _, c := range f.Get("children").Array() {
			n.Children = append(n.Children, c.String())
		}
		nodes = append(nodes, n)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return nodes, nil
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `\`)
}
