package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google-pay/storefront/internal/domain"
)

const defaultTimeout = 8 * time.Second

// ErrNotFound is returned by sources when a category has no data file.
var ErrNotFound = errors.New("catalog: category data not found")

var categoryNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Source loads the items of one category.
type Source interface {
	FetchItems(ctx context.Context, category string) ([]domain.Item, error)
}

// HTTPSource fetches GET {baseURL}/data/{category}.json.
type HTTPSource struct {
	baseURL string
	http    *http.Client
}

// NewHTTPSource constructs a source against baseURL. A non-positive timeout uses the default.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPSource{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// FetchItems implements Source.
func (s *HTTPSource) FetchItems(ctx context.Context, category string) ([]domain.Item, error) {
	if !categoryNamePattern.MatchString(category) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, category)
	}
	endpoint, err := url.JoinPath(s.baseURL, "data", category+".json")
	if err != nil {
		return nil, fmt.Errorf("catalog: build url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog: fetch %s: %w", category, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %q", ErrNotFound, category)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("catalog: fetch %s: status %d: %s", category, resp.StatusCode, drainError(resp.Body))
	}

	var items []domain.Item
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("catalog: decode %s: %w", category, err)
	}
	return items, nil
}

// DirSource reads {category}.json from a filesystem, such as os.DirFS of the public data folder.
type DirSource struct {
	fsys fs.FS
}

func NewDirSource(fsys fs.FS) *DirSource {
	return &DirSource{fsys: fsys}
}

// FetchItems implements Source.
func (s *DirSource) FetchItems(_ context.Context, category string) ([]domain.Item, error) {
	if !categoryNamePattern.MatchString(category) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, category)
	}
	raw, err := fs.ReadFile(s.fsys, category+".json")
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, category)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", category, err)
	}

	var items []domain.Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("catalog: decode %s: %w", category, err)
	}
	return items, nil
}

func drainError(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(data))
}
