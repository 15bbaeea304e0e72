package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/veritas/backend/pkg/apperr"
	"github.com/veritas/backend/pkg/logger"
)

var ErrTooLarge = errors.New("media exceeds size limit")

// Fetcher stores uploads and remote media in temporary files. Callers own
// the returned paths and must remove them.
type Fetcher struct {
	tmpDir     string
	httpClient *http.Client
}

func NewFetcher(tmpDir string, timeout time.Duration) *Fetcher {
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &Fetcher{
		tmpDir: tmpDir,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Download fetches rawURL into a temp file. When the URL serves an HTML page
// its og:image, og:video or twitter:image tag is followed once.
func (f *Fetcher) Download(ctx context.Context, rawURL string, kind Kind, maxBytes int64) (string, error) {
	u, err := parseHTTPURL(rawURL)
	if err != nil {
		return "", err
	}

	path, info, err := f.fetch(ctx, u.String(), maxBytes)
	if err != nil {
		return "", err
	}

	if info.Kind == KindHTML {
		target, resolveErr := resolveEmbedded(path, u, kind)
		os.Remove(path)
		if resolveErr != nil {
			return "", resolveErr
		}

		logger.Info("Resolved embedded media", zap.String("page", u.String()), zap.String("media", target))

		path, info, err = f.fetch(ctx, target, maxBytes)
		if err != nil {
			return "", err
		}
	}

	if info.Kind != kind {
		os.Remove(path)
		return "", apperr.Unsupported("expected %s, got %s", kind, info.MIME)
	}

	return path, nil
}

// SaveUpload copies r into a temp file named with suffix.
func (f *Fetcher) SaveUpload(r io.Reader, suffix string, maxBytes int64) (string, error) {
	tmp, err := os.CreateTemp(f.tmpDir, "veritas-*"+suffix)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer tmp.Close()

	if err := copyLimited(tmp, r, maxBytes); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func (f *Fetcher) fetch(ctx context.Context, target string, maxBytes int64) (string, Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", Info{}, apperr.Invalid("bad url: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; veritas/1.0)")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", Info{}, apperr.External("download", fmt.Errorf("failed to download %s: %w", target, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", Info{}, apperr.External("download", fmt.Errorf("download returned status %d", resp.StatusCode))
	}
	if resp.ContentLength > 0 && maxBytes > 0 && resp.ContentLength > maxBytes {
		return "", Info{}, apperr.Invalid("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}

	tmp, err := os.CreateTemp(f.tmpDir, "veritas-*")
	if err != nil {
		return "", Info{}, fmt.Errorf("failed to create temp file: %w", err)
	}

	if err := copyLimited(tmp, resp.Body, maxBytes); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", Info{}, err
	}
	tmp.Close()

	info, err := InspectFile(tmp.Name())
	if err != nil {
		os.Remove(tmp.Name())
		return "", Info{}, err
	}

	path := tmp.Name() + suffixFor(info)
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", Info{}, fmt.Errorf("failed to rename temp file: %w", err)
	}

	return path, info, nil
}

func copyLimited(dst io.Writer, src io.Reader, maxBytes int64) error {
	if maxBytes <= 0 {
		if _, err := io.Copy(dst, src); err != nil {
			return fmt.Errorf("failed to write media: %w", err)
		}
		return nil
	}

	n, err := io.Copy(dst, io.LimitReader(src, maxBytes+1))
	if err != nil {
		return fmt.Errorf("failed to write media: %w", err)
	}
	if n > maxBytes {
		return apperr.Invalid("%w: limit is %d bytes", ErrTooLarge, maxBytes)
	}
	return nil
}

func suffixFor(info Info) string {
	if info.Extension != "" {
		return info.Extension
	}
	switch info.Kind {
	case KindImage:
		return ".jpg"
	case KindVideo:
		return ".mp4"
	case KindHTML:
		return ".html"
	}
	return ""
}

var embedSelectors = map[Kind][]string{
	KindImage: {`meta[property="og:image"]`, `meta[name="twitter:image"]`, `meta[property="twitter:image"]`},
	KindVideo: {`meta[property="og:video"]`, `meta[property="og:video:url"]`, `meta[property="og:video:secure_url"]`},
}

func resolveEmbedded(htmlPath string, base *url.URL, kind Kind) (string, error) {
	file, err := os.Open(htmlPath)
	if err != nil {
		return "", fmt.Errorf("failed to open page: %w", err)
	}
	defer file.Close()

	doc, err := goquery.NewDocumentFromReader(file)
	if err != nil {
		return "", apperr.Unsupported("failed to parse HTML: %v", err)
	}

	for _, selector := range embedSelectors[kind] {
		content, ok := doc.Find(selector).First().Attr("content")
		content = strings.TrimSpace(content)
		if !ok || content == "" {
			continue
		}
		ref, err := url.Parse(content)
		if err != nil {
			continue
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			continue
		}
		return resolved.String(), nil
	}

	return "", apperr.Unsupported("page has no embedded %s", kind)
}

func parseHTTPURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperr.Invalid("url must be an absolute http(s) URL")
	}
	return u, nil
}
