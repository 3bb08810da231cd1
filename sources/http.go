package sources

import (
	"context"
	"errors"

	"github.com/marketlens/marketlens/config"
	"github.com/marketlens/marketlens/core"
	"github.com/marketlens/marketlens/httpx"
)

// ParseFunc turns a raw feed payload into events. Parsers are feed-specific;
// the fetch/retry plumbing is not.
type ParseFunc func(data []byte) ([]core.Event, error)

// NewHTTP builds a source that fetches url through the retrying client and
// hands the payload to parse. The configured user agent is applied by the
// client; per-call timeout and retry counts come from its construction.
func NewHTTP(name, url string, client *httpx.Client, parse ParseFunc) (Source, error) {
	if url == "" {
		return nil, errors.New("sources: http source requires a url")
	}
	if client == nil {
		return nil, errors.New("sources: http source requires a client")
	}
	if parse == nil {
		return nil, errors.New("sources: http source requires a parse function")
	}
	return New(name, func(ctx context.Context, cfg config.Config) ([]core.Event, error) {
		data, err := client.Get(ctx, url)
		if err != nil {
			return nil, err
		}
		return parse(data)
	})
}
