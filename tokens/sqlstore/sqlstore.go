// Package sqlstore is the durable tokens.Store on sqlite via bun.
// Multi-step operations run inside RunInTx so a rotation is a single atomic
// unit: concurrent rotations of the same refresh token are decided by the
// revoked-flag update, and the loser observes the token as already revoked.
package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-token-service/tokens"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

var _ tokens.Store = (*Store)(nil)

const maxGenerationAttempts = 10

type Store struct {
	db      *bun.DB
	nowFunc func() time.Time
}

type Option func(*Store)

func WithNowFunc(now func() time.Time) Option {
	return func(s *Store) {
		s.nowFunc = now
	}
}

func New(db *bun.DB, options ...Option) *Store {
	s := &Store{
		db:      db,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// OpenDB opens (or creates) the sqlite database at path. Use ":memory:" for
// an ephemeral store.
func OpenDB(path string) (*bun.DB, error) {
	sqldb, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "sqlstore.OpenDB")
	}
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// InitSchema creates the token tables when they do not exist yet.
func (s *Store) InitSchema(ctx context.Context) error {
	models := []any{(*accessTokenRecord)(nil), (*refreshTokenRecord)(nil)}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return errors.Wrap(err, "sqlstore.InitSchema")
		}
	}
	return nil
}

func (s *Store) Issue(ctx context.Context, req tokens.IssueRequest) (*tokens.AccessToken, *tokens.RefreshToken, error) {
	scope := req.Scope
	if scope == "" {
		scope = tokens.ScopeWrite
	}
	applicationID := ""
	if req.Application != nil {
		applicationID = req.Application.ID
	}

	var at *tokens.AccessToken
	var rt *tokens.RefreshToken
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := s.nowFunc()
		atRec, err := s.insertAccessToken(ctx, tx, applicationID, req.UserID, scope, req.Description, req.Expires, now)
		if err != nil {
			return err
		}
		at = atRec.toDomain()

		if !req.RefreshWanted() {
			return nil
		}

		rtRec, err := s.insertRefreshToken(ctx, tx, applicationID, req.UserID, scope, atRec.ID, now)
		if err != nil {
			return err
		}
		rt = rtRec.toDomain()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return at, rt, nil
}

func (s *Store) GetAccessToken(ctx context.Context, token string) (*tokens.AccessToken, error) {
	rec := new(accessTokenRecord)
	err := s.db.NewSelect().Model(rec).Where("token = ?", token).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(tokens.ErrNotFound, "access token")
	}
	if err != nil {
		return nil, errors.Wrap(err, "sqlstore.GetAccessToken")
	}
	return rec.toDomain(), nil
}

func (s *Store) GetAccessTokenByID(ctx context.Context, id string) (*tokens.AccessToken, error) {
	rec := new(accessTokenRecord)
	err := s.db.NewSelect().Model(rec).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(tokens.ErrNotFound, "access token id")
	}
	if err != nil {
		return nil, errors.Wrap(err, "sqlstore.GetAccessTokenByID")
	}
	return rec.toDomain(), nil
}

func (s *Store) GetRefreshToken(ctx context.Context, token string) (*tokens.RefreshToken, error) {
	rec := new(refreshTokenRecord)
	err := s.db.NewSelect().Model(rec).Where("token = ?", token).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(tokens.ErrNotFound, "refresh token")
	}
	if err != nil {
		return nil, errors.Wrap(err, "sqlstore.GetRefreshToken")
	}
	return rec.toDomain(), nil
}

func (s *Store) RevokeAccessToken(ctx context.Context, token string) error {
	res, err := s.db.NewDelete().Model((*accessTokenRecord)(nil)).Where("token = ?", token).Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "sqlstore.RevokeAccessToken")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "sqlstore.RevokeAccessToken RowsAffected")
	}
	if affected == 0 {
		return errors.Wrap(tokens.ErrNotFound, "access token")
	}
	return nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, token string) error {
	// The row is recycled: flagged revoked in place, never replaced, so the
	// surviving row keeps the caller's token identity. The linked access
	// token is untouched.
	now := s.nowFunc()
	res, err := s.db.NewUpdate().
		Model((*refreshTokenRecord)(nil)).
		Set("revoked = ?", true).
		Set("revoked_at = ?", now).
		Where("token = ?", token).
		Where("revoked = ?", false).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "sqlstore.RevokeRefreshToken")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "sqlstore.RevokeRefreshToken RowsAffected")
	}
	if affected == 0 {
		// Either unknown or already revoked; revoking twice is a no-op.
		exists, err := s.db.NewSelect().Model((*refreshTokenRecord)(nil)).Where("token = ?", token).Exists(ctx)
		if err != nil {
			return errors.Wrap(err, "sqlstore.RevokeRefreshToken exists")
		}
		if !exists {
			return errors.Wrap(tokens.ErrNotFound, "refresh token")
		}
	}
	return nil
}

func (s *Store) RotateRefreshToken(ctx context.Context, oldToken string, expires time.Time) (*tokens.AccessToken, *tokens.RefreshToken, error) {
	var at *tokens.AccessToken
	var rt *tokens.RefreshToken
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		old := new(refreshTokenRecord)
		err := tx.NewSelect().Model(old).Where("token = ?", oldToken).Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return errors.Wrap(tokens.ErrNotFound, "refresh token")
		}
		if err != nil {
			return errors.Wrap(err, "sqlstore.RotateRefreshToken select")
		}

		now := s.nowFunc()

		// Conditional update is the single-winner guard: a concurrent
		// rotation that lost the race sees zero rows affected here.
		res, err := tx.NewUpdate().
			Model((*refreshTokenRecord)(nil)).
			Set("revoked = ?", true).
			Set("revoked_at = ?", now).
			Set("rotations = rotations + 1").
			Set("access_token_id = ?", "").
			Where("token = ?", oldToken).
			Where("revoked = ?", false).
			Exec(ctx)
		if err != nil {
			return errors.Wrap(err, "sqlstore.RotateRefreshToken revoke")
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "sqlstore.RotateRefreshToken RowsAffected")
		}
		if affected == 0 {
			return errors.Wrap(tokens.ErrRevoked, "already rotated or revoked")
		}

		if old.AccessTokenID != "" {
			if _, err := tx.NewDelete().Model((*accessTokenRecord)(nil)).Where("id = ?", old.AccessTokenID).Exec(ctx); err != nil {
				return errors.Wrap(err, "sqlstore.RotateRefreshToken delete access")
			}
		}

		atRec, err := s.insertAccessToken(ctx, tx, old.ApplicationID, old.UserID, tokens.Scope(old.Scope), "", expires, now)
		if err != nil {
			return err
		}
		rtRec, err := s.insertRefreshToken(ctx, tx, old.ApplicationID, old.UserID, tokens.Scope(old.Scope), atRec.ID, now)
		if err != nil {
			return err
		}
		at = atRec.toDomain()
		rt = rtRec.toDomain()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return at, rt, nil
}

func (s *Store) UpdateAccessToken(ctx context.Context, id string, patch tokens.AccessTokenPatch) (*tokens.AccessToken, error) {
	q := s.db.NewUpdate().
		Model((*accessTokenRecord)(nil)).
		Set("modified = ?", s.nowFunc()).
		Where("id = ?", id)
	if patch.Scope != nil {
		q = q.Set("scope = ?", string(*patch.Scope))
	}
	if patch.Description != nil {
		q = q.Set("description = ?", *patch.Description)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "sqlstore.UpdateAccessToken")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "sqlstore.UpdateAccessToken RowsAffected")
	}
	if affected == 0 {
		return nil, errors.Wrap(tokens.ErrNotFound, "access token id")
	}
	return s.GetAccessTokenByID(ctx, id)
}

func (s *Store) ListAccessTokens(ctx context.Context, filter tokens.AccessTokenFilter) ([]*tokens.AccessToken, error) {
	var recs []accessTokenRecord
	q := s.db.NewSelect().Model(&recs).Order("created ASC")
	if filter.ApplicationID != "" {
		q = q.Where("application_id = ?", filter.ApplicationID)
	}
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.PersonalOnly {
		q = q.Where("application_id = ?", "")
	}
	if err := q.Scan(ctx); err != nil {
		return nil, errors.Wrap(err, "sqlstore.ListAccessTokens")
	}

	list := make([]*tokens.AccessToken, 0, len(recs))
	for i := range recs {
		list = append(list, recs[i].toDomain())
	}
	return list, nil
}

func (s *Store) DeleteForApplication(ctx context.Context, applicationID string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*accessTokenRecord)(nil)).Where("application_id = ?", applicationID).Exec(ctx); err != nil {
			return errors.Wrap(err, "sqlstore.DeleteForApplication access")
		}
		if _, err := tx.NewDelete().Model((*refreshTokenRecord)(nil)).Where("application_id = ?", applicationID).Exec(ctx); err != nil {
			return errors.Wrap(err, "sqlstore.DeleteForApplication refresh")
		}
		return nil
	})
}

func (s *Store) CountAccessTokens(ctx context.Context) (int, error) {
	count, err := s.db.NewSelect().Model((*accessTokenRecord)(nil)).Count(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "sqlstore.CountAccessTokens")
	}
	return count, nil
}

func (s *Store) CountRefreshTokens(ctx context.Context) (int, error) {
	count, err := s.db.NewSelect().Model((*refreshTokenRecord)(nil)).Count(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "sqlstore.CountRefreshTokens")
	}
	return count, nil
}

// insertAccessToken generates and inserts a token row, retrying generation
// when the uniqueness constraint fires rather than pre-checking.
func (s *Store) insertAccessToken(ctx context.Context, tx bun.Tx, applicationID, userID string, scope tokens.Scope, description string, expires, now time.Time) (*accessTokenRecord, error) {
	for attempt := 0; attempt < maxGenerationAttempts; attempt++ {
		token, err := tokens.GenerateTokenString()
		if err != nil {
			return nil, err
		}
		rec := &accessTokenRecord{
			ID:            uuid.New().String(),
			Token:         token,
			ApplicationID: applicationID,
			UserID:        userID,
			Scope:         string(scope),
			Description:   description,
			Expires:       expires,
			Created:       now,
			Modified:      now,
		}
		_, err = tx.NewInsert().Model(rec).Exec(ctx)
		if isUniqueViolation(err) {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "sqlstore insert access token")
		}
		return rec, nil
	}
	return nil, errors.New("sqlstore: exhausted access token generation attempts")
}

func (s *Store) insertRefreshToken(ctx context.Context, tx bun.Tx, applicationID, userID string, scope tokens.Scope, accessTokenID string, now time.Time) (*refreshTokenRecord, error) {
	for attempt := 0; attempt < maxGenerationAttempts; attempt++ {
		token, err := tokens.GenerateTokenString()
		if err != nil {
			return nil, err
		}
		rec := &refreshTokenRecord{
			ID:            uuid.New().String(),
			Token:         token,
			ApplicationID: applicationID,
			UserID:        userID,
			Scope:         string(scope),
			AccessTokenID: accessTokenID,
			Created:       now,
		}
		_, err = tx.NewInsert().Model(rec).Exec(ctx)
		if isUniqueViolation(err) {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "sqlstore insert refresh token")
		}
		return rec, nil
	}
	return nil, errors.New("sqlstore: exhausted refresh token generation attempts")
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
