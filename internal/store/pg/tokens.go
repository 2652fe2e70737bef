package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"aiportal.dev/internal/tokencache"
)

// TokenStore persists upstream credentials in upstream_tokens.
type TokenStore struct {
	db *sql.DB
}

var _ tokencache.Store = (*TokenStore)(nil)

func NewTokenStore(db *sql.DB) *TokenStore {
	return &TokenStore{db: db}
}

func (s *TokenStore) Load(ctx context.Context, subject string) (tokencache.Entry, error) {
	var (
		e       tokencache.Entry
		refresh sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select subject, access_token, refresh_token, issued_at, expires_at, expired
		from upstream_tokens where subject=$1
	`, subject).Scan(&e.Subject, &e.AccessToken, &refresh, &e.IssuedAt, &e.ExpiresAt, &e.Expired)
	if errors.Is(err, sql.ErrNoRows) {
		return tokencache.Entry{}, tokencache.ErrNotFound
	}
	if err != nil {
		return tokencache.Entry{}, err
	}
	if refresh.Valid {
		e.RefreshToken = refresh.String
	}
	return e, nil
}

func (s *TokenStore) Save(ctx context.Context, e tokencache.Entry) error {
	var refresh sql.NullString
	if e.RefreshToken != "" {
		refresh = sql.NullString{String: e.RefreshToken, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		insert into upstream_tokens(subject, access_token, refresh_token, issued_at, expires_at, expired, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7)
		on conflict (subject) do update set
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			issued_at = excluded.issued_at,
			expires_at = excluded.expires_at,
			expired = excluded.expired,
			updated_at = excluded.updated_at
	`, e.Subject, e.AccessToken, refresh, e.IssuedAt.UTC(), e.ExpiresAt.UTC(), e.Expired, time.Now().UTC())
	return err
}

func (s *TokenStore) Delete(ctx context.Context, subject string) error {
	res, err := s.db.ExecContext(ctx, `delete from upstream_tokens where subject=$1`, subject)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return tokencache.ErrNotFound
	}
	return nil
}
