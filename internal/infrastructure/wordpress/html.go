package wordpress

import (
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// stripped elements never reach a post body.
const stripped = "script, style, iframe, svg, canvas"

// CleanHTML removes executable and embedded elements along with inline
// styles and event handlers from a generated article body.
func CleanHTML(body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<div id=\"tubearticles-root\">" + body + "</div>"))
	if err != nil {
		return body
	}
	root := doc.Find("#tubearticles-root")
	root.Find(stripped).Remove()

	// A model-supplied <article> wrapper is unwrapped.
	if articles := root.ChildrenFiltered("article"); articles.Length() == 1 && root.Children().Length() == 1 {
		articles.Contents().Unwrap()
	}

	root.Find("*").Each(func(_ int, sel *goquery.Selection) {
		for _, node := range sel.Nodes {
			attrs := node.Attr[:0]
			for _, attr := range node.Attr {
				if attr.Key == "style" || strings.HasPrefix(attr.Key, "on") {
					continue
				}
				attrs = append(attrs, attr)
			}
			node.Attr = attrs
		}
	})

	out, err := root.Html()
	if err != nil {
		return body
	}
	return strings.TrimSpace(out)
}

// sourceLink renders the trailing link back to the video.
func sourceLink(videoURL string) string {
	if videoURL == "" {
		return ""
	}
	escaped := html.EscapeString(videoURL)
	return fmt.Sprintf(`<p><a href="%s" target="_blank" rel="noopener">Watch the video on YouTube</a></p>`, escaped)
}
