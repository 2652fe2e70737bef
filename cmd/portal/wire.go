package main

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"aiportal.dev/internal/approval"
	"aiportal.dev/internal/auth"
	"aiportal.dev/internal/config"
	"aiportal.dev/internal/datumo"
	"aiportal.dev/internal/httpapi"
	"aiportal.dev/internal/monitoring"
	"aiportal.dev/internal/sktai"
	"aiportal.dev/internal/store/pg"
	"aiportal.dev/internal/tokencache"
	"aiportal.dev/internal/upstream"
)

// app is everything serve needs, built from configuration.
type app struct {
	db       *sql.DB
	services httpapi.Services
	probe    httpapi.ReadyProbe
	verifier *auth.Verifier
}

func (a *app) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func build(cfg *config.Config) (*app, error) {
	a := &app{}
	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
	if err != nil {
		return nil, err
	}
	a.verifier = verifier

	var cacheOpts []tokencache.Option
	if cfg.Database.DSN != "" {
		db, err := pg.Open(cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.db = db
		cacheOpts = append(cacheOpts, tokencache.WithStore(pg.NewTokenStore(db)))
		a.probe.Checks = append(a.probe.Checks, httpapi.DBCheck(db))
	}
	if cfg.SKTAI.Timeout > 0 {
		// refresh may try refresh then login, each bounded by the client timeout
		cacheOpts = append(cacheOpts, tokencache.WithRefreshTimeout(2*cfg.SKTAI.Timeout))
	}
	cache := tokencache.New(cacheOpts...)

	probeClient := &http.Client{Timeout: 2 * time.Second}
	userAgent := "aiportal/" + version
	clientConfig := func(u config.UpstreamConfig) upstream.Config {
		c := u.Client()
		c.UserAgent = userAgent
		return c
	}

	if cfg.Datumo.Enabled {
		c, err := datumo.NewClient(clientConfig(cfg.Datumo))
		if err != nil {
			return nil, a.fail(fmt.Errorf("datumo: %w", err))
		}
		a.services.Evaluations = datumo.NewService(c)
		a.probe.Checks = append(a.probe.Checks, httpapi.HTTPCheck(datumo.System, cfg.Datumo.BaseURL, probeClient))
	}

	if cfg.SKTAI.Enabled {
		base := clientConfig(cfg.SKTAI)
		tokens, err := sktai.NewTokens(base, sktai.Credentials{
			ClientID:     cfg.SKTAI.ClientID,
			ClientSecret: cfg.SKTAI.ClientSecret,
		}, cache)
		if err != nil {
			return nil, a.fail(fmt.Errorf("sktai: %w", err))
		}
		c, err := sktai.NewClient(base, tokens.Authorizer())
		if err != nil {
			return nil, a.fail(fmt.Errorf("sktai: %w", err))
		}
		models := sktai.NewService(c, tokens)
		a.services.Models = models
		a.services.ImportJobs = sktai.NewJobWatcher(models, sktai.DefaultWatchInterval)
		a.probe.Checks = append(a.probe.Checks, httpapi.HTTPCheck(sktai.System, cfg.SKTAI.BaseURL, probeClient))
	}

	if cfg.Approval.Enabled {
		c, err := approval.NewClient(clientConfig(cfg.Approval), approval.Credentials{
			APIKey:        cfg.Approval.APIKey,
			SigningSecret: cfg.Approval.SigningSecret,
		})
		if err != nil {
			return nil, a.fail(fmt.Errorf("approval: %w", err))
		}
		a.services.Approvals = approval.NewService(c)
		a.probe.Checks = append(a.probe.Checks, httpapi.HTTPCheck(approval.System, cfg.Approval.BaseURL, probeClient))
	}

	if cfg.Prometheus.Enabled {
		mc := clientConfig(cfg.Prometheus)
		if cfg.Prometheus.BearerToken != "" {
			mc.Auth = upstream.StaticBearer{System: monitoring.System, Token: cfg.Prometheus.BearerToken}
		}
		c, err := monitoring.NewClient(mc)
		if err != nil {
			return nil, a.fail(fmt.Errorf("prometheus: %w", err))
		}
		a.services.Monitoring = monitoring.NewService(c)
		a.probe.Checks = append(a.probe.Checks, httpapi.HTTPCheck(monitoring.System, cfg.Prometheus.BaseURL+"/-/ready", probeClient))
	}
	return a, nil
}

func (a *app) fail(err error) error {
	_ = a.Close()
	return err
}
