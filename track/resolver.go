package track

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/leeineian/chorus/sys"
	"golang.org/x/time/rate"
)

// SearchPrefix scopes free-text queries to a single search result.
const SearchPrefix = "ytsearch1:"

var (
	// ErrResolution classifies every failure to turn a query into metadata,
	// timeouts included.
	ErrResolution = errors.New("failed to resolve track")

	errEmptyQuery = errors.New("empty query")
)

// ResolutionError carries the query that failed to resolve.
type ResolutionError struct {
	Query string
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %q: %v", e.Query, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func (e *ResolutionError) Is(target error) bool { return target == ErrResolution }

// Extractor runs the external resolver on a normalized query and returns its
// raw structured output.
type Extractor interface {
	Extract(ctx context.Context, query string) ([]byte, error)
}

// Streamer is implemented by extractors that can pipe the media themselves.
type Streamer interface {
	Stream(ctx context.Context, query string) (io.ReadCloser, error)
}

type ResolverOptions struct {
	Extractor      Extractor
	Prober         Prober
	Cache          *Cache
	ResolveTimeout time.Duration
	ProbeTimeout   time.Duration
	// Rate limits extractor invocations per second; zero disables the limit.
	Rate  float64
	Burst int
}

// Resolver turns queries into playable sources, consulting the cache first.
type Resolver struct {
	extractor      Extractor
	prober         Prober
	cache          *Cache
	limiter        *rate.Limiter
	resolveTimeout time.Duration
	probeTimeout   time.Duration
}

func NewResolver(opts ResolverOptions) *Resolver {
	r := &Resolver{
		extractor:      opts.Extractor,
		prober:         opts.Prober,
		cache:          opts.Cache,
		resolveTimeout: opts.ResolveTimeout,
		probeTimeout:   opts.ProbeTimeout,
	}
	if r.cache == nil {
		r.cache = NewCache()
	}
	if r.prober == nil {
		r.prober = HTTPProber{}
	}
	if r.resolveTimeout <= 0 {
		r.resolveTimeout = 30 * time.Second
	}
	if r.probeTimeout <= 0 {
		r.probeTimeout = 5 * time.Second
	}
	if opts.Rate > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(opts.Rate), burst)
	}
	return r
}

func (r *Resolver) Cache() *Cache { return r.cache }

// Normalize passes URLs and paths through and scopes anything else to search.
func Normalize(query string) string {
	if isPathLike(query) {
		return query
	}
	return SearchPrefix + query
}

func isPathLike(query string) bool {
	return strings.ContainsAny(query, `/\`)
}

// Resolve returns a playable source and metadata for query. A cached entry is
// reused only if its stream still answers the liveness probe.
func (r *Resolver) Resolve(ctx context.Context, query string) (*Source, Metadata, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, Metadata{}, &ResolutionError{Query: query, Err: errEmptyQuery}
	}

	md, ok := r.lookup(ctx, query)
	if !ok {
		var err error
		md, err = r.extract(ctx, query)
		if err != nil {
			return nil, Metadata{}, err
		}
		r.cache.Store(md, query, md.WebpageURL)
	}

	src, err := r.source(query, md)
	if err != nil {
		return nil, Metadata{}, err
	}
	return src, md, nil
}

func (r *Resolver) lookup(ctx context.Context, query string) (Metadata, bool) {
	md, ok := r.cache.Get(query)
	if !ok {
		return Metadata{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	if err := r.prober.Probe(ctx, md.StreamURL); err != nil {
		sys.LogResolver(sys.MsgResolverProbeFailed, query, err)
		return Metadata{}, false
	}
	return md, true
}

func (r *Resolver) extract(ctx context.Context, query string) (Metadata, error) {
	if r.extractor == nil {
		return Metadata{}, &ResolutionError{Query: query, Err: errors.New("no extractor configured")}
	}

	ctx, cancel := context.WithTimeout(ctx, r.resolveTimeout)
	defer cancel()

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return Metadata{}, &ResolutionError{Query: query, Err: err}
		}
	}

	start := time.Now()
	raw, err := r.extractor.Extract(ctx, Normalize(query))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return Metadata{}, &ResolutionError{Query: query, Err: err}
	}

	md, err := ParseMetadata(raw)
	if err != nil {
		return Metadata{}, &ResolutionError{Query: query, Err: err}
	}
	sys.LogResolver(sys.MsgResolverResolved, md.DisplayTitle(), time.Since(start).Milliseconds())
	return md, nil
}

func (r *Resolver) source(query string, md Metadata) (*Source, error) {
	if isPathLike(query) {
		if s, ok := r.extractor.(Streamer); ok {
			return NewStreamedSource(query, func(ctx context.Context) (io.ReadCloser, error) {
				return s.Stream(ctx, query)
			})
		}
	}
	return NewURLSource(md.StreamURL)
}
