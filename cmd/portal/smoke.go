package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"aiportal.dev/internal/httpapi"
)

type smokeOptions struct {
	baseURL  string
	grpcAddr string
	token    string
	timeout  time.Duration
}

func smokeCmd() *cobra.Command {
	var o smokeOptions
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Check a running portal over HTTP and gRPC health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
			defer cancel()
			return smoke(ctx, cmd.OutOrStdout(), o)
		},
	}
	cmd.Flags().StringVar(&o.baseURL, "base-url", "http://localhost:8080", "portal HTTP base URL")
	cmd.Flags().StringVar(&o.grpcAddr, "grpc-addr", "", "portal gRPC health address, skipped when empty")
	cmd.Flags().StringVar(&o.token, "token", "", "bearer token for authenticated routes")
	cmd.Flags().DurationVar(&o.timeout, "timeout", 10*time.Second, "overall timeout")
	return cmd
}

type smokeEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *string         `json:"error"`
}

func smoke(ctx context.Context, out io.Writer, o smokeOptions) error {
	client := &http.Client{Timeout: 5 * time.Second}
	base := strings.TrimRight(o.baseURL, "/")

	for _, path := range []string{"/healthz", "/readyz", "/v1/info"} {
		env, status, err := smokeGet(ctx, client, base+path, o.token)
		if err != nil {
			return fmt.Errorf("GET %s: %w", path, err)
		}
		if status != http.StatusOK || !env.Success {
			kind := ""
			if env.Error != nil {
				kind = *env.Error
			}
			return fmt.Errorf("GET %s: status %d %s %s", path, status, kind, env.Message)
		}
		fmt.Fprintf(out, "ok   %s\n", path)
	}

	if o.grpcAddr != "" {
		status, err := smokeGRPC(ctx, o.grpcAddr)
		if err != nil {
			return fmt.Errorf("grpc health %s: %w", o.grpcAddr, err)
		}
		if status != grpc_health_v1.HealthCheckResponse_SERVING {
			return fmt.Errorf("grpc health %s: %s", o.grpcAddr, status)
		}
		fmt.Fprintf(out, "ok   grpc %s\n", o.grpcAddr)
	}

	fmt.Fprintln(out, "smoke test passed")
	return nil
}

func smokeGet(ctx context.Context, client *http.Client, url, token string) (smokeEnvelope, int, error) {
	var env smokeEnvelope
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return env, 0, err
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return env, 0, err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return env, resp.StatusCode, fmt.Errorf("decode envelope: %w", err)
	}
	return env, resp.StatusCode, nil
}

func smokeGRPC(ctx context.Context, addr string, opts ...grpc.DialOption) (grpc_health_v1.HealthCheckResponse_ServingStatus, error) {
	if len(opts) == 0 {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, err
	}
	defer conn.Close()
	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: httpapi.ServiceName})
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}
