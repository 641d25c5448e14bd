package track

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"
)

// Prober checks that a cached stream location is still usable without
// fetching the stream itself.
type Prober interface {
	Probe(ctx context.Context, target string) error
}

// HTTPProber issues a HEAD request against remote stream URLs and stats local
// paths.
type HTTPProber struct {
	Client *http.Client
}

var defaultProbeClient = &http.Client{
	Timeout: 10 * time.Second,
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		if len(via) >= 5 {
			return http.ErrUseLastResponse
		}
		return nil
	},
}

func (p HTTPProber) Probe(ctx context.Context, target string) error {
	if target == "" {
		return errors.New("no stream url to probe")
	}

	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		_, statErr := os.Stat(target)
		return statErr
	}

	client := p.Client
	if client == nil {
		client = defaultProbeClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("probe returned status %d", resp.StatusCode)
	}
	return nil
}
