package xl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestImagePipelineDrain(t *testing.T) {
	blob := pngBytes(t, 8, 2)
	var running, peak atomic.Int32
	fetcher := FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		if strings.Contains(url, "bad") {
			return nil, errors.New("not found")
		}
		if strings.Contains(url, "html") {
			return []byte("<html/>"), nil
		}
		return blob, nil
	})
	ip := imagePipeline{fetcher: fetcher, limit: 3, logger: slog.New(slog.DiscardHandler)}
	for i := range 30 {
		url := fmt.Sprintf("https://example.com/ok%d.png", i)
		switch i % 3 {
		case 1:
			url = fmt.Sprintf("https://example.com/bad%d.png", i)
		case 2:
			url = fmt.Sprintf("https://example.com/html%d", i)
		}
		ip.Enqueue(queuedImage{Row: i + 1, Col: 0, URL: url})
	}

	got := ip.Drain(context.Background())
	if len(got) != 30 {
		t.Fatalf("got %d results", len(got))
	}
	if ip.Len() != 0 {
		t.Errorf("queue still holds %d images", ip.Len())
	}
	if p := peak.Load(); p > 3 {
		t.Errorf("%d fetches ran at once", p)
	}
	for i, img := range got {
		if i%3 != 0 {
			if img != nil {
				t.Errorf("%d: failed fetch returned %+v", i, img.queuedImage)
			}
			continue
		}
		if img == nil {
			t.Errorf("%d: missing", i)
			continue
		}
		if img.Row != i+1 || img.Width != 8 || img.Height != 2 || img.Format != "png" {
			t.Errorf("%d: got row=%d %dx%d %s", i, img.Row, img.Width, img.Height, img.Format)
		}
		if img.Name != MediaName(img.URL, "png") {
			t.Errorf("%d: name %q", i, img.Name)
		}
	}
}

func TestHTTPFetcher(t *testing.T) {
	blob := pngBytes(t, 2, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/a.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(blob)
	}))
	defer srv.Close()

	ctx := context.Background()
	hf := NewHTTPFetcher(srv.Client())
	b, err := hf.Fetch(ctx, srv.URL+"/a.png")
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != len(blob) {
		t.Errorf("got %d bytes, wanted %d", len(b), len(blob))
	}
	if _, err := hf.Fetch(ctx, srv.URL+"/missing.png"); err == nil {
		t.Error("404 succeeded")
	}
	hf.MaxSize = 10
	if _, err := hf.Fetch(ctx, srv.URL+"/a.png"); err == nil {
		t.Error("oversized payload accepted")
	}
}
