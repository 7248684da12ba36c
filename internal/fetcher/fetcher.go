// Package fetcher downloads KPI exports from HTTP(S) and FTP locations and
// unpacks ZIP archives of exports.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Fetcher downloads a remote file.
type Fetcher interface {
	// Download fetches the URL and returns the body. The caller closes it.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// Options configures New.
type Options struct {
	UserAgent         string
	Timeout           time.Duration
	MaxAttempts       int
	RequestsPerSecond float64 // per host; 0 means unlimited
}

// Multi dispatches downloads by URL scheme.
type Multi struct {
	HTTP *HTTPFetcher
	FTP  *FTPFetcher
}

// New returns a fetcher for http, https and ftp URLs.
func New(opts Options) *Multi {
	return &Multi{
		HTTP: NewHTTPFetcher(HTTPOptions{
			UserAgent:         opts.UserAgent,
			Timeout:           opts.Timeout,
			MaxAttempts:       opts.MaxAttempts,
			RequestsPerSecond: opts.RequestsPerSecond,
		}),
		FTP: NewFTPFetcher(FTPOptions{Timeout: opts.Timeout}),
	}
}

// Download implements Fetcher.
func (m *Multi) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	switch scheme(rawURL) {
	case "http", "https":
		return m.HTTP.Download(ctx, rawURL)
	case "ftp":
		return m.FTP.Download(ctx, rawURL)
	default:
		return nil, eris.Errorf("fetcher: unsupported url %q", rawURL)
	}
}

// IsRemote reports whether arg is a URL this package can download.
func IsRemote(arg string) bool {
	switch scheme(arg) {
	case "http", "https", "ftp":
		return true
	}
	return false
}

func scheme(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

// DownloadToDir downloads rawURL into dir, named after the last path
// segment of the URL, and returns the local path.
func DownloadToDir(ctx context.Context, f Fetcher, rawURL, dir string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", eris.Wrap(err, "fetcher: parse url")
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		name = "download"
	}

	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return "", err
	}
	defer body.Close() //nolint:errcheck

	dest := filepath.Join(dir, name)
	out, err := os.Create(dest)
	if err != nil {
		return "", eris.Wrap(err, "fetcher: create file")
	}
	defer out.Close() //nolint:errcheck

	n, err := io.Copy(out, body)
	if err != nil {
		return "", eris.Wrap(err, "fetcher: write file")
	}

	zap.L().Info("fetcher: downloaded", zap.String("url", rawURL), zap.String("path", dest), zap.Int64("bytes", n))
	return dest, nil
}
