package index

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"casefile/internal/config"
)

// HTTPStore is the production Store, talking newline-delimited JSON to the
// index service's bulk endpoints.
type HTTPStore struct {
	endpoint string
	index    string
	username string
	password string
	client   *http.Client
}

// NewHTTP builds an HTTPStore from search configuration.
func NewHTTP(cfg config.Search) (*HTTPStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("search endpoint is required")
	}
	if cfg.Index == "" {
		return nil, fmt.Errorf("search index name is required")
	}
	timeout := time.Duration(cfg.TimeoutS) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPStore{
		endpoint: cfg.Endpoint,
		index:    cfg.Index,
		username: cfg.Username,
		password: cfg.Password,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (s *HTTPStore) BulkIndex(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, doc := range docs {
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode document %s: %w", doc.DocID, err)
		}
	}
	return s.post(ctx, s.path("_bulk"), &body)
}

func (s *HTTPStore) ScanArtifact(ctx context.Context, caseID, artifactID string, pageSize int, fn func([]Document) error) error {
	if pageSize <= 0 {
		pageSize = 500
	}
	from := 0
	for {
		query := url.Values{}
		query.Set("case_id", caseID)
		query.Set("artifact_id", artifactID)
		query.Set("from", strconv.Itoa(from))
		query.Set("size", strconv.Itoa(pageSize))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.path("_search")+"?"+query.Encode(), nil)
		if err != nil {
			return err
		}
		s.auth(req)
		resp, err := s.client.Do(req)
		if err != nil {
			return fmt.Errorf("search request: %w", err)
		}
		var page struct {
			Hits []Document `json:"hits"`
		}
		err = json.NewDecoder(resp.Body).Decode(&page)
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("search returned status %d", resp.StatusCode)
		}
		if err != nil {
			return fmt.Errorf("decode search page: %w", err)
		}
		if len(page.Hits) == 0 {
			return nil
		}
		if err := fn(page.Hits); err != nil {
			return err
		}
		if len(page.Hits) < pageSize {
			return nil
		}
		from += pageSize
	}
}

func (s *HTTPStore) UpdateFlags(ctx context.Context, updates []FlagUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, update := range updates {
		if err := enc.Encode(update); err != nil {
			return fmt.Errorf("encode flag update %s: %w", update.DocID, err)
		}
	}
	return s.post(ctx, s.path("_update_flags"), &body)
}

func (s *HTTPStore) PurgeArtifact(ctx context.Context, caseID, artifactID string) error {
	query := url.Values{}
	query.Set("case_id", caseID)
	query.Set("artifact_id", artifactID)
	return s.post(ctx, s.path("_purge")+"?"+query.Encode(), nil)
}

func (s *HTTPStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *HTTPStore) path(op string) string {
	return fmt.Sprintf("%s/%s/%s", s.endpoint, url.PathEscape(s.index), op)
}

func (s *HTTPStore) post(ctx context.Context, target string, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	s.auth(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("index request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("index service returned status %d: %s", resp.StatusCode, string(payload))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (s *HTTPStore) auth(req *http.Request) {
	if s.username != "" {
		req.SetBasicAuth(s.username, s.password)
	}
}
