package imagepkg

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/youruser/animelens/internal/util"
)

// HTTPFetcher downloads remote images and reports their origin and CORS
// response header so the loader can decide about tainting.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher wraps client; nil uses util.DefaultClient.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	return &HTTPFetcher{client: client}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, uri string) (*Fetched, error) {
	body, header, err := util.GetBytes(ctx, f.client, uri)
	if err != nil {
		return nil, err
	}
	return &Fetched{
		Data:        body,
		Origin:      originOf(uri),
		AllowOrigin: header.Get("Access-Control-Allow-Origin"),
	}, nil
}

func originOf(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + u.Host
}

// fetchFile reads a local path or file:// URI.
func fetchFile(ctx context.Context, uri string) (*Fetched, error) {
	path := uri
	if strings.HasPrefix(uri, "file://") {
		u, err := url.Parse(uri)
		if err != nil {
			return nil, err
		}
		path = u.Path
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &Fetched{Data: b}, nil
}
