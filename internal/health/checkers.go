package health

import (
	"context"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresChecker reports readiness of the grammar dictionary database.
func PostgresChecker(pool *pgxpool.Pool) Checker {
	return Checker{
		Name: "postgres",
		Check: func(ctx context.Context) error {
			return pool.Ping(ctx)
		},
	}
}

// ElasticsearchChecker reports readiness of the lexical retrieval index.
func ElasticsearchChecker(es *elasticsearch.Client) Checker {
	return Checker{
		Name: "elasticsearch",
		Check: func(ctx context.Context) error {
			res, err := es.Ping(es.Ping.WithContext(ctx))
			if err != nil {
				return err
			}
			defer res.Body.Close()
			if res.IsError() {
				return fmt.Errorf("ping returned %s", res.Status())
			}
			return nil
		},
	}
}

// EndpointChecker reports readiness of an HTTP dependency by issuing a GET to
// url. Any response below 500 counts as healthy, so endpoints that answer 404
// on their root path still pass.
func EndpointChecker(name, url string, client *http.Client) Checker {
	if client == nil {
		client = http.DefaultClient
	}
	return Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			res, err := client.Do(req)
			if err != nil {
				return err
			}
			defer res.Body.Close()
			if res.StatusCode >= http.StatusInternalServerError {
				return fmt.Errorf("endpoint returned %d", res.StatusCode)
			}
			return nil
		},
	}
}
