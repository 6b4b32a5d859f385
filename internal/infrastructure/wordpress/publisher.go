package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"TubeArticles/internal/domain"
	"TubeArticles/internal/ports"
	"TubeArticles/internal/retry"
)

// Publisher creates posts through the WordPress REST API using an
// application password.
type Publisher struct {
	apiURL      string
	username    string
	appPassword string
	postStatus  string
	client      *http.Client
	policy      retry.Policy
	logger      *slog.Logger
}

var _ ports.Publisher = (*Publisher)(nil)

type statusError struct {
	Op     string
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: wordpress status %d: %s", e.Op, e.Status, e.Body)
}

type postRequest struct {
	Title      string `json:"title"`
	Content    string `json:"content"`
	Excerpt    string `json:"excerpt,omitempty"`
	Status     string `json:"status"`
	Categories []int  `json:"categories,omitempty"`
}

type postResponse struct {
	ID   int    `json:"id"`
	Link string `json:"link"`
}

type category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Publish uploads the cleaned article with a link back to videoURL.
// Categories are resolved by name and created when missing.
func (p *Publisher) Publish(ctx context.Context, article domain.Article, videoURL string, categories []string) (domain.Post, error) {
	payload := postRequest{
		Title:      article.Title,
		Content:    CleanHTML(article.BodyHTML) + "\n" + sourceLink(videoURL),
		Excerpt:    article.MetaDescription,
		Status:     p.postStatus,
		Categories: p.resolveCategories(ctx, categories),
	}

	var created postResponse
	err := retry.Do(ctx, p.policy, isRetryable, func(ctx context.Context) error {
		return p.do(ctx, http.MethodPost, "/posts", nil, payload, &created)
	})
	if err != nil {
		return domain.Post{}, publishError("create post", err)
	}
	if created.ID == 0 {
		return domain.Post{}, fmt.Errorf("%w: create post: response has no id", domain.ErrPublish)
	}

	return domain.Post{ID: strconv.Itoa(created.ID), URL: created.Link}, nil
}

// resolveCategories maps names to IDs. Lookup failures drop the category
// rather than the post.
func (p *Publisher) resolveCategories(ctx context.Context, names []string) []int {
	ids := make([]int, 0, len(names))
	seen := map[int]bool{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id, err := p.categoryID(ctx, name)
		if err != nil {
			if p.logger != nil {
				p.logger.Warn("category unavailable", "category", name, "error", err)
			}
			continue
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

func (p *Publisher) categoryID(ctx context.Context, name string) (int, error) {
	var found []category
	if err := p.do(ctx, http.MethodGet, "/categories", url.Values{"search": {name}}, nil, &found); err != nil {
		return 0, fmt.Errorf("search category: %w", err)
	}
	for _, c := range found {
		if strings.EqualFold(c.Name, name) {
			return c.ID, nil
		}
	}

	var created category
	if err := p.do(ctx, http.MethodPost, "/categories", nil, map[string]string{"name": name}, &created); err != nil {
		return 0, fmt.Errorf("create category: %w", err)
	}
	return created.ID, nil
}

func (p *Publisher) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := p.apiURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.SetBasicAuth(p.username, p.appPassword)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &statusError{Op: method + " " + path, Status: resp.StatusCode, Body: strings.TrimSpace(string(detail))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func isRetryable(err error) bool {
	if !retry.Always(err) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.Status >= http.StatusInternalServerError || se.Status == http.StatusTooManyRequests
	}
	return true
}

func publishError(op string, err error) error {
	var se *statusError
	if errors.As(err, &se) && (se.Status == http.StatusUnauthorized || se.Status == http.StatusForbidden) {
		return fmt.Errorf("%w: %w: %s: %w", domain.ErrPublish, domain.ErrUnauthorized, op, err)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrPublish, op, err)
}
