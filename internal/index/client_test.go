package index

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestValidateSearchResponse(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"hits":[{"article_id":7,"chunk_id":12,"seq":0,"text_start":0,"text_end":40,"text":"some chunk text","score":0.91}]}`)
	resp, err := validateSearchResponse(payload)
	if err != nil {
		t.Fatalf("expected valid response, got %v", err)
	}
	if len(resp.Hits) != 1 || resp.Hits[0].ArticleID != 7 {
		t.Fatalf("unexpected hits: %+v", resp.Hits)
	}
}

func TestValidateSearchResponse_Invalid(t *testing.T) {
	t.Parallel()

	if _, err := validateSearchResponse([]byte(`{"hits":[{"article_id":"x"}]}`)); err == nil {
		t.Fatalf("expected schema validation error")
	}
	if _, err := validateSearchResponse([]byte(`{"hits":[{"article_id":1,"chunk_id":1,"seq":0,"text_start":10,"text_end":4,"text":"t","score":1}]}`)); err == nil {
		t.Fatalf("expected inverted span error")
	}
}

func TestValidateRerankResponse_CountMismatch(t *testing.T) {
	t.Parallel()

	if _, err := validateRerankResponse([]byte(`{"scores":[0.5]}`), 2); err == nil {
		t.Fatalf("expected score count mismatch error")
	}
}

func TestClientSearch_BackendErrorOnStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewClient(ClientOptions{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.DenseSearch(context.Background(), "database migration", 10)
	if err == nil {
		t.Fatalf("expected backend error")
	}
	if !IsBackendError(err) {
		t.Fatalf("expected error to be marked as backend error, got %v", err)
	}
}

func TestClientRerank_RoundTrip(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/rerank") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"scores":[0.8,0.2]}`))
	}))
	defer server.Close()

	client, err := NewClient(ClientOptions{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	scores, err := client.Rerank(context.Background(), "query", []RerankDoc{
		{ID: 1, Text: "first"},
		{ID: 2, Text: "second"},
	})
	if err != nil {
		t.Fatalf("Rerank failed: %v", err)
	}
	if len(scores) != 2 || scores[0] != 0.8 {
		t.Fatalf("unexpected scores: %v", scores)
	}
}
