package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/soundprediction/casegraph/pkg/config"
	"github.com/soundprediction/casegraph/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// DefaultRxNormBaseURL is the public RxNav REST endpoint.
const DefaultRxNormBaseURL = "https://rxnav.nlm.nih.gov/REST"

// Lookup results reported to metrics.
const (
	lookupHit    = "hit"
	lookupMiss   = "miss"
	lookupCached = "cached"
	lookupError  = "error"
)

// DrugLookup resolves a candidate term to a canonical drug name. An empty name with a
// nil error means the term names no known drug.
type DrugLookup interface {
	Lookup(ctx context.Context, term string) (string, error)
}

// RxNormClient resolves terms through the RxNav approximate match and properties
// endpoints. Results, including misses, are cached per term; failed requests are not.
type RxNormClient struct {
	baseURL string
	http    *http.Client
	metrics *metrics.Registry
	logger  *slog.Logger

	mu    sync.RWMutex
	cache map[string]string
	group singleflight.Group
}

// NewRxNormClient creates a client for cfg.BaseURL, or the public endpoint when unset.
func NewRxNormClient(cfg config.RxNormConfig, reg *metrics.Registry, logger *slog.Logger) *RxNormClient {
	if logger == nil {
		logger = slog.Default()
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultRxNormBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RxNormClient{
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
		metrics: reg,
		logger:  logger,
		cache:   make(map[string]string),
	}
}

type approximateTermResponse struct {
	ApproximateGroup struct {
		Candidate []struct {
			RxCUI string `json:"rxcui"`
		} `json:"candidate"`
	} `json:"approximateGroup"`
}

type propertiesResponse struct {
	Properties struct {
		RxCUI string `json:"rxcui"`
		Name  string `json:"name"`
	} `json:"properties"`
}

// Lookup implements DrugLookup.
func (c *RxNormClient) Lookup(ctx context.Context, term string) (string, error) {
	c.mu.RLock()
	name, ok := c.cache[term]
	c.mu.RUnlock()
	if ok {
		c.metrics.RecordRxNormLookup(lookupCached)
		return name, nil
	}

	v, err, _ := c.group.Do(term, func() (interface{}, error) {
		name, err := c.resolve(ctx, term)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.cache[term] = name
		c.mu.Unlock()
		return name, nil
	})
	if err != nil {
		c.metrics.RecordRxNormLookup(lookupError)
		return "", err
	}

	name = v.(string)
	if name == "" {
		c.metrics.RecordRxNormLookup(lookupMiss)
	} else {
		c.metrics.RecordRxNormLookup(lookupHit)
	}
	return name, nil
}

func (c *RxNormClient) resolve(ctx context.Context, term string) (string, error) {
	q := url.Values{}
	q.Set("term", term)
	q.Set("maxEntries", "1")

	var approx approximateTermResponse
	if err := c.getJSON(ctx, "/approximateTerm.json?"+q.Encode(), &approx); err != nil {
		return "", fmt.Errorf("approximate term %q: %w", term, err)
	}
	candidates := approx.ApproximateGroup.Candidate
	if len(candidates) == 0 || candidates[0].RxCUI == "" {
		return "", nil
	}

	rxcui := candidates[0].RxCUI
	var props propertiesResponse
	if err := c.getJSON(ctx, "/rxcui/"+url.PathEscape(rxcui)+"/properties.json", &props); err != nil {
		return "", fmt.Errorf("properties of rxcui %s: %w", rxcui, err)
	}
	c.logger.Debug("Resolved drug term", "term", term, "rxcui", rxcui, "name", props.Properties.Name)
	return props.Properties.Name, nil
}

func (c *RxNormClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
