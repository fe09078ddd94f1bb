package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"PatternScan/internal/domain/models"
	domrepo "PatternScan/internal/domain/repository"
	"PatternScan/internal/service/ratelimit"
	pkghttp "PatternScan/pkg/http"
	"PatternScan/pkg/util"
)

// HTTPBarProvider fetches bars from a REST endpoint:
//
//	GET {base}/bars?exchange=SET&symbol=PTT&interval=1d&limit=500&since=2024-01-02
//
// The response is either JSON ({"bars": [...]}) or CSV in the cache layout.
type HTTPBarProvider struct {
	client  *pkghttp.Client
	limiter *ratelimit.Limiter
	baseURL string
	apiKey  string
	host    string
}

// NewHTTPBarProvider creates a provider. limiter may be nil.
func NewHTTPBarProvider(client *pkghttp.Client, limiter *ratelimit.Limiter, baseURL, apiKey string) (*HTTPBarProvider, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("bar provider base url %q: invalid", baseURL)
	}
	return &HTTPBarProvider{
		client:  client,
		limiter: limiter,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		host:    u.Host,
	}, nil
}

func (p *HTTPBarProvider) Name() string { return "http" }

type barsResponse struct {
	Bars []models.Bar `json:"bars"`
}

func (p *HTTPBarProvider) FetchBars(ctx context.Context, key domrepo.BarKey, n int, since time.Time) (models.Bars, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, p.host); err != nil {
			return nil, err
		}
	}
	q := map[string][]string{
		"exchange": {key.Exchange},
		"symbol":   {key.Symbol},
		"interval": {string(key.Interval)},
	}
	if n > 0 {
		q["limit"] = []string{strconv.Itoa(n)}
	}
	if !since.IsZero() {
		q["since"] = []string{util.FormatTimestamp(since)}
	}
	headers := map[string]string{"Accept": "application/json, text/csv"}
	if p.apiKey != "" {
		headers["X-API-Key"] = p.apiKey
	}

	resp, err := p.client.SendRequest(ctx, &pkghttp.RequestOptions{
		Method:      pkghttp.MethodGet,
		URL:         p.baseURL + "/bars",
		Headers:     headers,
		QueryParams: q,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := pkghttp.CheckStatus(resp); err != nil {
		var se *pkghttp.StatusError
		if errors.As(err, &se) && se.Status == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", models.ErrNotFound, key)
		}
		return nil, fmt.Errorf("bar provider: %w", err)
	}

	var bars models.Bars
	if strings.Contains(resp.Header.Get("Content-Type"), "csv") {
		bars, err = DecodeBars(resp.Body)
	} else {
		var out barsResponse
		err = pkghttp.DecodeJSON(resp.Body, &out)
		bars = out.Bars
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", models.ErrCorruptBars, key, err)
	}
	return bars.Tail(n), nil
}

// FileBarProvider serves bars from CSV drops in a directory, using the same
// file naming as the cache.
type FileBarProvider struct {
	dir string
}

func NewFileBarProvider(dir string) *FileBarProvider { return &FileBarProvider{dir: dir} }

func (p *FileBarProvider) Name() string { return "file" }

func (p *FileBarProvider) FetchBars(ctx context.Context, key domrepo.BarKey, n int, since time.Time) (models.Bars, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := BarFilePath(p.dir, key)
	bars, err := ReadBarFile(path)
	if err != nil {
		return nil, err
	}
	if bars == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, path)
	}
	return filterBars(bars, n, since), nil
}

// filterBars keeps bars newer than since, then the last n of those.
func filterBars(bars models.Bars, n int, since time.Time) models.Bars {
	if !since.IsZero() {
		i := 0
		for i < len(bars) && !bars[i].Timestamp.After(since) {
			i++
		}
		bars = bars[i:]
	}
	return bars.Tail(n).Clone()
}

// IsUpToDate reports whether err only means the provider had nothing newer.
func IsUpToDate(err error) bool { return errors.Is(err, models.ErrEmptyResponse) }
