package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/oksasatya/go-user-graph/internal/application"
	"github.com/oksasatya/go-user-graph/internal/domain/entity"
	"github.com/oksasatya/go-user-graph/internal/metrics"
)

const requestTimeout = 3 * time.Second

// UserIndexer projects user profiles into an Elasticsearch index. Calls go
// through a circuit breaker so an unavailable cluster fails fast instead of
// stalling ingestion.
type UserIndexer struct {
	es      *elasticsearch.Client
	index   string
	breaker *gobreaker.CircuitBreaker[*esapi.Response]
}

// BreakerSettings tunes the breaker around Elasticsearch.
type BreakerSettings struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

func NewUserIndexer(es *elasticsearch.Client, index string, bs BreakerSettings) *UserIndexer {
	if bs.FailureThreshold == 0 {
		bs.FailureThreshold = 5
	}
	if bs.OpenTimeout <= 0 {
		bs.OpenTimeout = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        "elasticsearch",
		MaxRequests: 1,
		Timeout:     bs.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.FailureThreshold
		},
		OnStateChange: func(name string, _, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	}
	return &UserIndexer{es: es, index: index, breaker: gobreaker.NewCircuitBreaker[*esapi.Response](settings)}
}

// userDocument holds only profile fields. Follow counts change on every
// follow and unfollow and are read from the store, not the index.
type userDocument struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"fullName"`
	AvatarURL string    `json:"avatar"`
	Bio       string    `json:"bio"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toDocument(u *entity.User) userDocument {
	return userDocument{
		ID:        u.ID,
		Username:  u.Username,
		FullName:  u.FullName,
		AvatarURL: u.AvatarURL,
		Bio:       u.Bio,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (x *UserIndexer) Index(ctx context.Context, u *entity.User) error {
	b, err := json.Marshal(toDocument(u))
	if err != nil {
		return err
	}
	req := esapi.IndexRequest{Index: x.index, DocumentID: u.ID, Body: bytes.NewReader(b), Refresh: "false"}
	return x.do(ctx, req, false)
}

// Remove deletes the document for id. A missing document is not an error.
func (x *UserIndexer) Remove(ctx context.Context, id string) error {
	req := esapi.DeleteRequest{Index: x.index, DocumentID: id}
	return x.do(ctx, req, true)
}

// Search runs a multi_match query over username, full name and bio.
func (x *UserIndexer) Search(ctx context.Context, q string, size int) ([]entity.FollowUser, error) {
	out := []entity.FollowUser{}
	if x == nil || x.es == nil || x.index == "" {
		return out, nil
	}
	if size <= 0 || size > 50 {
		size = 10
	}
	query := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  q,
				"fields": []string{"username^2", "fullName", "bio"},
			},
		},
		"size": size,
	}
	b, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	req := esapi.SearchRequest{Index: []string{x.index}, Body: bytes.NewReader(b)}
	err = x.do(ctx, req, false, func(res *esapi.Response) error {
		var parsed struct {
			Hits struct {
				Hits []struct {
					Source userDocument `json:"_source"`
				} `json:"hits"`
			} `json:"hits"`
		}
		if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
			return fmt.Errorf("search: decode hits: %w", err)
		}
		for _, h := range parsed.Hits.Hits {
			out = append(out, entity.FollowUser{ID: h.Source.ID, FullName: h.Source.FullName, AvatarURL: h.Source.AvatarURL})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (x *UserIndexer) do(ctx context.Context, req esapi.Request, allowNotFound bool, decode ...func(*esapi.Response) error) error {
	if x == nil || x.es == nil || x.index == "" {
		return nil
	}
	c, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	res, err := x.breaker.Execute(func() (*esapi.Response, error) {
		res, err := req.Do(c, x.es)
		if err != nil {
			return nil, err
		}
		if res.StatusCode >= http.StatusInternalServerError {
			_ = res.Body.Close()
			return nil, fmt.Errorf("search: %s", res.Status())
		}
		return res, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("search: breaker open: %w", err)
		}
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode == http.StatusNotFound && allowNotFound {
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("search: %s", res.Status())
	}
	for _, fn := range decode {
		if err := fn(res); err != nil {
			return err
		}
	}
	return nil
}

var (
	_ application.UserIndexer  = (*UserIndexer)(nil)
	_ application.UserSearcher = (*UserIndexer)(nil)
)
