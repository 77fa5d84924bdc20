// Package storage resolves source identifiers to raw image bytes.
// Decoding belongs to the transformation pipeline; fetchers never touch
// pixel data.
package storage

import (
	"context"
	"fmt"
	"strings"
)

// SourceFetcher retrieves the raw bytes behind a source identifier.
type SourceFetcher interface {
	Fetch(ctx context.Context, source string) ([]byte, error)
}

// Resolver routes a source identifier to the fetcher for its scheme:
// http(s) URLs to the HTTP fetcher, azblob URLs to the blob fetcher, and
// everything else to the local assets fetcher.
type Resolver struct {
	http  SourceFetcher
	local SourceFetcher
	blob  SourceFetcher
}

// NewResolver composes the configured fetchers. The blob fetcher may be
// nil when no account is configured.
func NewResolver(httpFetcher, localFetcher, blobFetcher SourceFetcher) *Resolver {
	return &Resolver{http: httpFetcher, local: localFetcher, blob: blobFetcher}
}

func (r *Resolver) Fetch(ctx context.Context, source string) ([]byte, error) {
	switch {
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return r.http.Fetch(ctx, source)
	case strings.HasPrefix(source, "azblob://"):
		if r.blob == nil {
			return nil, fmt.Errorf("blob storage is not configured")
		}
		return r.blob.Fetch(ctx, source)
	default:
		return r.local.Fetch(ctx, source)
	}
}
