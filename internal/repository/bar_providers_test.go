package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"PatternScan/internal/domain/models"
	domrepo "PatternScan/internal/domain/repository"
	"PatternScan/internal/service/ratelimit"
	"PatternScan/internal/testutil"
	pkghttp "PatternScan/pkg/http"
)

func TestHTTPBarProvider(t *testing.T) {
	series := testutil.FromReturns(100, testutil.Uniform(39, 0.01, 7), 0.005)

	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bars" || r.Header.Get("X-API-Key") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		q := r.URL.Query()
		gotQuery = map[string]string{"limit": q.Get("limit"), "since": q.Get("since"), "interval": q.Get("interval")}
		switch q.Get("symbol") {
		case "PTT":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"bars": series})
		case "CSV":
			var buf bytes.Buffer
			_ = EncodeBars(&buf, series[:5])
			w.Header().Set("Content-Type", "text/csv")
			_, _ = w.Write(buf.Bytes())
		case "BAD":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"bars": [`))
		case "FAIL":
			http.Error(w, "upstream down", http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	prov, err := NewHTTPBarProvider(pkghttp.NewClient(pkghttp.WithTimeout(2*time.Second)), ratelimit.New(10, 100), srv.URL+"/", "k")
	if err != nil {
		t.Fatalf("NewHTTPBarProvider: %v", err)
	}
	ctx := context.Background()
	key := func(sym string) domrepo.BarKey {
		return domrepo.BarKey{Exchange: "SET", Symbol: sym, Interval: domrepo.Interval1d}
	}

	bars, err := prov.FetchBars(ctx, key("PTT"), 10, series[20].Timestamp)
	if err != nil {
		t.Fatalf("json fetch: %v", err)
	}
	if len(bars) != 10 || !bars.Last().Timestamp.Equal(series.Last().Timestamp) {
		t.Fatalf("json fetch returned %d bars", len(bars))
	}
	if gotQuery["limit"] != "10" || gotQuery["since"] != "2020-02-03" || gotQuery["interval"] != "1d" {
		t.Fatalf("query = %v", gotQuery)
	}

	bars, err = prov.FetchBars(ctx, key("CSV"), 0, time.Time{})
	if err != nil || len(bars) != 5 {
		t.Fatalf("csv fetch = %d bars, %v", len(bars), err)
	}
	if gotQuery["limit"] != "" || gotQuery["since"] != "" {
		t.Fatalf("zero limit/since should be omitted: %v", gotQuery)
	}

	tests := []struct {
		symbol string
		want   error
	}{
		{"MISSING", models.ErrNotFound},
		{"BAD", models.ErrCorruptBars},
	}
	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			if _, err := prov.FetchBars(ctx, key(tt.symbol), 10, time.Time{}); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if _, err := prov.FetchBars(ctx, key("FAIL"), 10, time.Time{}); err == nil {
		t.Fatalf("want error for 502")
	}

	if _, err := NewHTTPBarProvider(pkghttp.NewClient(), nil, "not a url", ""); err == nil {
		t.Fatalf("want error for bad base url")
	}
}

func TestFileBarProvider(t *testing.T) {
	dir := t.TempDir()
	series := testutil.FromReturns(50, testutil.Uniform(29, 0.01, 3), 0.005)
	if err := WriteBarFile(BarFilePath(dir, testKey), series); err != nil {
		t.Fatalf("seed: %v", err)
	}
	prov := NewFileBarProvider(dir)

	bars, err := prov.FetchBars(context.Background(), testKey, 0, series[24].Timestamp)
	if err != nil {
		t.Fatalf("FetchBars: %v", err)
	}
	if len(bars) != 5 || !bars[0].Timestamp.Equal(series[25].Timestamp) {
		t.Fatalf("since filter returned %d bars", len(bars))
	}

	bars, err = prov.FetchBars(context.Background(), testKey, 3, time.Time{})
	if err != nil || len(bars) != 3 {
		t.Fatalf("limit returned %d bars, %v", len(bars), err)
	}

	other := domrepo.BarKey{Exchange: "SET", Symbol: "AOT", Interval: domrepo.Interval1d}
	if _, err := prov.FetchBars(context.Background(), other, 3, time.Time{}); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("missing file err = %v", err)
	}
}
