package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEndpointChecker_Healthy(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := EndpointChecker("morph", srv.URL, srv.Client())
	if c.Name != "morph" {
		t.Errorf("name = %q", c.Name)
	}
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("Check: %v", err)
	}
}

func TestEndpointChecker_NotFoundStillHealthy(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := EndpointChecker("chroma", srv.URL, srv.Client())
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("Check: %v", err)
	}
}

func TestEndpointChecker_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := EndpointChecker("chroma", srv.URL, srv.Client())
	if err := c.Check(context.Background()); err == nil {
		t.Error("Check must fail on 5xx")
	}
}

func TestEndpointChecker_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	srv.Close()

	c := EndpointChecker("morph", srv.URL, nil)
	if err := c.Check(context.Background()); err == nil {
		t.Error("Check must fail when the endpoint is down")
	}
}
