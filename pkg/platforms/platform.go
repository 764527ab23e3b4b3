package platforms

import (
	"context"
	"errors"
	"io"
)

// ErrBadSketchURL is returned for sketch URLs that do not point at a
// project on the configured editor.
var ErrBadSketchURL = errors.New("unrecognised sketch url")

// ImportRequest is one pending import listed by the remote import service.
// It only lives for the duration of a poll cycle.
type ImportRequest struct {
	ImportCode string `json:"import_code"`
	IDHash     string `json:"id_hash"`
	SketchURL  string `json:"sketch_url"`
}

// Node types as reported by the editor.
const (
	FileTypeFolder = "folder"
	FileTypeFile   = "file"
)

// RemoteNode is one file or folder of a sketch project. The project is a
// flat list; hierarchy is expressed through Children ids.
type RemoteNode struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	FileType string   `json:"fileType"`
	Children []string `json:"children"`
	Content  string   `json:"content,omitempty"`
	URL      string   `json:"url,omitempty"`
}

func (n RemoteNode) IsFolder() bool { return n.FileType == FileTypeFolder }

// SketchRef identifies a project on the editor.
type SketchRef struct {
	User     string
	SketchID string
}

// RequestLister lists pending import requests for a cabinet.
type RequestLister interface {
	ListImportRequests(ctx context.Context, cabinet string) ([]ImportRequest, error)
}

// ProjectFetcher resolves sketch URLs and fetches a project's file graph.
type ProjectFetcher interface {
	ParseSketchURL(rawURL string) (SketchRef, error)
	FetchProject(ctx context.Context, ref SketchRef) ([]RemoteNode, error)
}

// Downloader streams remote file content.
type Downloader interface {
	Download(ctx context.Context, url string, w io.Writer) (int64, error)
}
