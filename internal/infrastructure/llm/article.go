package llm

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"TubeArticles/internal/domain"
)

const (
	defaultTitle       = "Generated Article"
	maxMetaDescription = 155
)

// DefaultSystemPrompt asks for the TITLE / META_DESCRIPTION / <article> layout
// that ParseArticle understands.
const DefaultSystemPrompt = `You are a professional content writer specializing in creating articles based on YouTube video transcripts.

Generate a high-quality comprehensive article based on the provided transcript:
1. Cover all major points from the transcript in depth; do not summarize.
2. Include a compelling title with the main topic and keywords.
3. Write a concise meta description (max 155 characters).
4. Format the article in clean HTML (h1, h2, h3, p, ul, li). No CSS or classes.
5. Article length should be proportional to the transcript length.

Your response must follow this exact format:

TITLE: The article title
META_DESCRIPTION: The meta description

<article>
[Your complete HTML content here]
</article>`

var (
	titlePattern = regexp.MustCompile(`(?i)TITLE:\s*(.*?)(?:\n|$)`)
	metaPattern  = regexp.MustCompile(`(?i)META_DESCRIPTION:\s*(.*?)(?:\n|$)`)
)

func userPrompt(transcript string) string {
	return "Here is the transcript from a YouTube video. Please create a comprehensive, in-depth article based on it:\n\n" + transcript
}

func systemPrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return DefaultSystemPrompt
	}
	return prompt
}

// ParseArticle splits a model response into title, meta description and body.
// Missing markers fall back to a default title and the remaining text as body.
func ParseArticle(content string) (domain.Article, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Article{}, fmt.Errorf("%w: empty model response", domain.ErrGeneration)
	}

	article := domain.Article{Title: defaultTitle}
	if m := titlePattern.FindStringSubmatch(content); m != nil && strings.TrimSpace(m[1]) != "" {
		article.Title = strings.TrimSpace(m[1])
	}
	metaLoc := metaPattern.FindStringSubmatchIndex(content)
	if metaLoc != nil {
		article.MetaDescription = truncate(strings.TrimSpace(content[metaLoc[2]:metaLoc[3]]), maxMetaDescription)
	}

	body, ok := articleBody(content)
	switch {
	case ok:
		article.BodyHTML = body
	case metaLoc != nil:
		article.BodyHTML = strings.TrimSpace(content[metaLoc[1]:])
	default:
		article.BodyHTML = content
	}

	if strings.TrimSpace(article.BodyHTML) == "" {
		return domain.Article{}, fmt.Errorf("%w: model response has no article body", domain.ErrGeneration)
	}
	return article, nil
}

func articleBody(content string) (string, bool) {
	if !strings.Contains(strings.ToLower(content), "<article") {
		return "", false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return "", false
	}
	sel := doc.Find("article").First()
	if sel.Length() == 0 {
		return "", false
	}
	html, err := sel.Html()
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(html), true
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit]))
}
