// Package imports talks to the kiosk's import service: the web form a
// visitor fills in after scanning the QR code, which queues requests per
// cabinet.
package imports

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jareddonovan/creative-coding-showcase/pkg/platforms"
	"github.com/jareddonovan/creative-coding-showcase/pkg/whttp"
	"github.com/tidwall/gjson"
)

// DefaultTimeout bounds the listing request.
const DefaultTimeout = 5 * time.Second

type Lister struct {
	baseURL string
	timeout time.Duration
	client  *whttp.Client
}

// NewLister returns a lister for the service at baseURL. A zero timeout
// means DefaultTimeout.
func NewLister(baseURL string, timeout time.Duration, client *whttp.Client) *Lister {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Lister{baseURL: strings.TrimRight(baseURL, "/"), timeout: timeout, client: client}
}

// ListImportRequests performs GET <base>?c=<cabinet>. Entries missing any of
// the three fields are dropped.
func (l *Lister) ListImportRequests(ctx context.Context, cabinet string) ([]platforms.ImportRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	res, err := l.client.SendHTTPRequest(ctx, &whttp.WHTTPReq{
		Method:  "GET",
		URL:     l.baseURL + "?c=" + url.QueryEscape(cabinet),
		Headers: []whttp.WHTTPHeader{{Name: "Accept", Value: "application/json"}},
	})
	if err != nil {
		return nil, fmt.Errorf("listing imports: %w", err)
	}

	body := strings.TrimSpace(res.BodyString)
	if body == "" || body == "null" {
		return nil, nil
	}
	if !gjson.Valid(body) {
		return nil, fmt.Errorf("listing imports: response is not JSON")
	}
	parsed := gjson.Parse(body)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("listing imports: expected a JSON array")
	}

	var requests []platforms.ImportRequest
	parsed.ForEach(func(_, value gjson.Result) bool {
		r := platforms.ImportRequest{
			ImportCode: strings.TrimSpace(value.Get("import_code").String()),
			IDHash:     strings.TrimSpace(value.Get("id_hash").String()),
			SketchURL:  strings.TrimSpace(value.Get("sketch_url").String()),
		}
		if r.ImportCode == "" || r.IDHash == "" || r.SketchURL == "" {
			return true
		}
		requests = append(requests, r)
		return true
	})
	return requests, nil
}

// NewImportURL is the address the kiosk shows (as link and QR code) for a
// freshly generated code.
func NewImportURL(baseURL, code, cabinet string) string {
	return strings.TrimRight(baseURL, "/") + "/new.php?i=" + url.QueryEscape(code) + "&c=" + url.QueryEscape(cabinet)
}
