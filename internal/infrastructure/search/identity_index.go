package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/oksasatya/identity-service/internal/application"
	"github.com/oksasatya/identity-service/internal/domain/entity"
)

const requestTimeout = 3 * time.Second

const indexMapping = `{
  "mappings": {
    "properties": {
      "id":         {"type": "keyword"},
      "email":      {"type": "text", "fields": {"raw": {"type": "keyword"}}},
      "name":       {"type": "text"},
      "phone":      {"type": "keyword"},
      "tax_id":     {"type": "keyword"},
      "role":       {"type": "keyword"},
      "avatar_url": {"type": "keyword", "index": false},
      "verified":   {"type": "boolean"},
      "created_at": {"type": "date"}
    }
  }
}`

// IdentityIndex projects identities into an Elasticsearch index.
type IdentityIndex struct {
	es    *elasticsearch.Client
	index string
}

func NewIdentityIndex(es *elasticsearch.Client, index string) *IdentityIndex {
	return &IdentityIndex{es: es, index: index}
}

var _ application.IdentityIndex = (*IdentityIndex)(nil)

// EnsureIndex creates the index with its mapping when missing.
func (x *IdentityIndex) EnsureIndex(ctx context.Context) error {
	c, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	res, err := esapi.IndicesExistsRequest{Index: []string{x.index}}.Do(c, x.es)
	if err != nil {
		return err
	}
	_ = res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}
	res, err = esapi.IndicesCreateRequest{Index: x.index, Body: strings.NewReader(indexMapping)}.Do(c, x.es)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return fmt.Errorf("create index %s: %s", x.index, res.Status())
	}
	return nil
}

func document(i *entity.Identity) map[string]any {
	return map[string]any{
		"id":         i.ID().String(),
		"email":      i.Email(),
		"name":       i.Name(),
		"phone":      i.Phone(),
		"tax_id":     i.TaxID(),
		"role":       string(i.Role()),
		"avatar_url": i.AvatarURL(),
		"verified":   i.IsEmailVerified(),
		"created_at": i.CreatedAt().Format(time.RFC3339Nano),
	}
}

func (x *IdentityIndex) Index(ctx context.Context, i *entity.Identity) error {
	b, err := json.Marshal(document(i))
	if err != nil {
		return err
	}
	c, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	req := esapi.IndexRequest{Index: x.index, DocumentID: i.ID().String(), Body: bytes.NewReader(b), Refresh: "false"}
	res, err := req.Do(c, x.es)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return fmt.Errorf("index identity %s: %s", i.ID(), res.Status())
	}
	return nil
}

func (x *IdentityIndex) Remove(ctx context.Context, identityID string) error {
	c, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	res, err := esapi.DeleteRequest{Index: x.index, DocumentID: identityID}.Do(c, x.es)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("remove identity %s: %s", identityID, res.Status())
	}
	return nil
}

// Search runs a multi_match over email, name and phone.
func (x *IdentityIndex) Search(ctx context.Context, q string, size int) ([]map[string]any, error) {
	query := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  q,
				"fields": []string{"email^2", "name", "phone"},
			},
		},
		"size": size,
	}
	b, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	c, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	res, err := x.es.Search(x.es.Search.WithContext(c), x.es.Search.WithIndex(x.index), x.es.Search.WithBody(bytes.NewReader(b)))
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return nil, fmt.Errorf("search identities: %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}
