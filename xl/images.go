package xl

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"
)

// DefaultImageConcurrency is the number of image fetches run at once.
const DefaultImageConcurrency = 20

// Fetcher downloads the payload of an image URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) { return f(ctx, url) }

// HTTPFetcher fetches images with plain GET requests.
type HTTPFetcher struct {
	Client *http.Client
	// MaxSize limits the accepted payload size; 0 means 64 MiB.
	MaxSize int64
}

func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{Client: client}
}

func (hf *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := hf.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	limit := hf.MaxSize
	if limit <= 0 {
		limit = 64 << 20
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("GET %s: payload exceeds %d bytes", url, limit)
	}
	return b, nil
}

// queuedImage is an image cell waiting for its payload.
type queuedImage struct {
	Row int // 1-based
	Col int // 0-based
	URL string
}

// fetchedImage is a queued image whose payload was fetched and decoded.
type fetchedImage struct {
	queuedImage
	Name   string
	Format string
	Width  int
	Height int
	Blob   []byte
}

// imagePipeline collects the image cells of a sheet and fetches them, with
// bounded concurrency, when the sheet closes.
type imagePipeline struct {
	fetcher Fetcher
	limit   int
	logger  *slog.Logger
	queue   []queuedImage
}

func (ip *imagePipeline) Enqueue(img queuedImage) {
	ip.queue = append(ip.queue, img)
}

func (ip *imagePipeline) Len() int { return len(ip.queue) }

// Drain fetches every queued image and returns once all of them settled.
// The result is in queue order; failed fetches are nil. The queue is
// emptied.
func (ip *imagePipeline) Drain(ctx context.Context) []*fetchedImage {
	queue := ip.queue
	ip.queue = nil
	results := make([]*fetchedImage, len(queue))
	if len(queue) == 0 {
		return results
	}
	var grp errgroup.Group
	grp.SetLimit(ip.limit)
	for i, q := range queue {
		grp.Go(func() error {
			img, err := ip.fetch(ctx, q)
			if err != nil {
				ip.logger.Debug("image dropped", "url", q.URL, "row", q.Row, "col", q.Col, "error", err)
				return nil
			}
			results[i] = img
			return nil
		})
	}
	grp.Wait()
	return results
}

func (ip *imagePipeline) fetch(ctx context.Context, q queuedImage) (*fetchedImage, error) {
	blob, err := ip.fetcher.Fetch(ctx, q.URL)
	if err != nil {
		return nil, err
	}
	cfg, format, err := decodeImageConfig(blob)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if _, ok := imageContentTypes[format]; !ok {
		return nil, fmt.Errorf("unsupported image format %q", format)
	}
	return &fetchedImage{
		queuedImage: q,
		Name:        MediaName(q.URL, format),
		Format:      format,
		Width:       cfg.Width,
		Height:      cfg.Height,
		Blob:        blob,
	}, nil
}
