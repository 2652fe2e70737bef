package main

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"aiportal.dev/internal/httpapi"
)

func TestSmokePassesAgainstHealthyPortal(t *testing.T) {
	srv := httptest.NewServer(httpapi.New(httpapi.Services{}, httpapi.Options{Version: "test"}).Handler())
	defer srv.Close()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	gs := grpc.NewServer()
	health := httpapi.NewHealthServer(httpapi.ReadyProbe{})
	health.Register(gs)
	require.True(t, health.Sync(context.Background()))
	go func() { _ = gs.Serve(lis) }()
	defer gs.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var out bytes.Buffer
	err = smoke(ctx, &out, smokeOptions{baseURL: srv.URL + "/", grpcAddr: lis.Addr().String()})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "ok   /readyz")
	assert.Contains(t, out.String(), "ok   grpc "+lis.Addr().String())
	assert.Contains(t, out.String(), "smoke test passed")
}

func TestSmokeReportsFailingReadiness(t *testing.T) {
	probe := httpapi.ReadyProbe{Checks: []httpapi.Check{
		{Name: "datumo", Fn: func(context.Context) error { return errors.New("connection refused") }},
	}}
	srv := httptest.NewServer(httpapi.New(httpapi.Services{}, httpapi.Options{Ready: probe}).Handler())
	defer srv.Close()

	var out bytes.Buffer
	err := smoke(context.Background(), &out, smokeOptions{baseURL: srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GET /readyz: status 503 upstream-unavailable not ready")
	assert.Contains(t, out.String(), "ok   /healthz")
}
