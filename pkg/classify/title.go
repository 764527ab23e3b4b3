package classify

import (
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// SketchInfo is what can be read from a sketch's entry page.
type SketchInfo struct {
	Title   string
	Scripts []string
}

// InspectSketch reads the entry html and returns its <title> and the src
// of every <script>. Unreadable or non-html files give a zero SketchInfo.
func InspectSketch(path string) SketchInfo {
	f, err := os.Open(path)
	if err != nil {
		return SketchInfo{}
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return SketchInfo{}
	}

	info := SketchInfo{
		Title: strings.Join(strings.Fields(doc.Find("title").First().Text()), " "),
	}
	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && src != "" {
			info.Scripts = append(info.Scripts, src)
		}
	})
	return info
}
