package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Check is one named readiness dependency.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// ReadyProbe runs readiness checks. With no checks the portal is always ready.
type ReadyProbe struct {
	Checks []Check
}

// CheckEach runs every check concurrently and reports each result by name.
func (rp ReadyProbe) CheckEach(ctx context.Context) map[string]error {
	var (
		mu  sync.Mutex
		out = make(map[string]error, len(rp.Checks))
		g   errgroup.Group
	)
	for _, c := range rp.Checks {
		g.Go(func() error {
			err := c.Fn(ctx)
			mu.Lock()
			out[c.Name] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Check returns every failing check joined, in name order.
func (rp ReadyProbe) Check(ctx context.Context) error {
	results := rp.CheckEach(ctx)
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	var errs []error
	for _, name := range names {
		if err := results[name]; err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// DBCheck pings the database.
func DBCheck(db *sql.DB) Check {
	return Check{Name: "database", Fn: func(ctx context.Context) error {
		return db.PingContext(ctx)
	}}
}

// HTTPCheck treats an upstream as reachable when its base URL answers with
// anything below 500.
func HTTPCheck(name, baseURL string, client *http.Client) Check {
	if client == nil {
		client = http.DefaultClient
	}
	return Check{Name: name, Fn: func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		_ = resp.Body.Close()
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		return nil
	}}
}
