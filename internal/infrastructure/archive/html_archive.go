// Package archive keeps a standalone HTML copy of every generated article.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"TubeArticles/internal/domain"
	"TubeArticles/internal/ports"
)

var page = template.Must(template.New("article").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}}</title>
<meta name="description" content="{{.Description}}">
</head>
<body>
<h1>{{.Title}}</h1>
{{.Body}}
<p class="source">Source: <a href="{{.VideoURL}}" target="_blank">{{.VideoURL}}</a></p>
</body>
</html>
`))

// HTMLArchive writes articles as <videoID>_<timestamp>.html under dir.
type HTMLArchive struct {
	dir string
	now func() time.Time
}

var _ ports.ArticleArchive = (*HTMLArchive)(nil)

// NewHTMLArchive targets dir; it is created on first save.
func NewHTMLArchive(dir string) *HTMLArchive {
	return &HTMLArchive{dir: dir, now: time.Now}
}

// Save renders the article and returns the written path.
func (a *HTMLArchive) Save(_ context.Context, video domain.Video, article domain.Article) (string, error) {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	title := article.Title
	if title == "" {
		title = "Generated Article"
	}

	var buf bytes.Buffer
	err := page.Execute(&buf, struct {
		Title       string
		Description string
		Body        template.HTML
		VideoURL    string
	}{
		Title:       title,
		Description: article.MetaDescription,
		Body:        template.HTML(article.BodyHTML),
		VideoURL:    video.URL,
	})
	if err != nil {
		return "", fmt.Errorf("render article: %w", err)
	}

	name := fmt.Sprintf("%s_%s.html", video.ID, a.now().Format("20060102_150405"))
	path := filepath.Join(a.dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write article: %w", err)
	}
	return path, nil
}
