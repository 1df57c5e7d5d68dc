package health

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsHealthyAllProbesOK(t *testing.T) {
	node := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer node.Close()
	indexer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer indexer.Close()

	c := New(Options{NodeURL: node.URL, IndexerURL: indexer.URL}, nil)
	ok, reason := c.IsHealthy(testContext(t))
	if !ok {
		t.Fatalf("expected healthy, got reason: %s", reason)
	}
}

func TestIsHealthyIndexer400CountsAsAlive(t *testing.T) {
	node := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer node.Close()
	indexer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer indexer.Close()

	c := New(Options{NodeURL: node.URL, IndexerURL: indexer.URL}, nil)
	ok, reason := c.IsHealthy(testContext(t))
	if !ok {
		t.Fatalf("expected 400 from indexer to count as healthy, got reason: %s", reason)
	}
}

func TestIsHealthyShortCircuitsOnNodeFailure(t *testing.T) {
	node := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer node.Close()

	c := New(Options{NodeURL: node.URL, IndexerURL: "http://unused.invalid"}, nil)
	ok, _ := c.IsHealthy(testContext(t))
	if ok {
		t.Fatal("expected unhealthy when node probe fails")
	}
}

func TestIsHealthyUnreachableNodeIsNotAnError(t *testing.T) {
	c := New(Options{NodeURL: "http://127.0.0.1:1", IndexerURL: "http://127.0.0.1:1"}, nil)
	ok, reason := c.IsHealthy(testContext(t))
	if ok {
		t.Fatal("expected unhealthy for unreachable node")
	}
	if reason == "" {
		t.Fatal("expected a reason string")
	}
}
