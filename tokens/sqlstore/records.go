package sqlstore

import (
	"time"

	"github.com/jrsteele09/go-token-service/tokens"
	"github.com/uptrace/bun"
)

type accessTokenRecord struct {
	bun.BaseModel `bun:"table:access_tokens,alias:at"`

	ID            string    `bun:"id,pk"`
	Token         string    `bun:"token,notnull,unique"`
	ApplicationID string    `bun:"application_id"`
	UserID        string    `bun:"user_id,notnull"`
	Scope         string    `bun:"scope,notnull"`
	Description   string    `bun:"description"`
	Expires       time.Time `bun:"expires,nullzero"`
	Created       time.Time `bun:"created,notnull"`
	Modified      time.Time `bun:"modified,notnull"`
}

func (r *accessTokenRecord) toDomain() *tokens.AccessToken {
	return &tokens.AccessToken{
		ID:            r.ID,
		Token:         r.Token,
		ApplicationID: r.ApplicationID,
		UserID:        r.UserID,
		Scope:         tokens.Scope(r.Scope),
		Description:   r.Description,
		Expires:       r.Expires,
		Created:       r.Created,
		Modified:      r.Modified,
	}
}

type refreshTokenRecord struct {
	bun.BaseModel `bun:"table:refresh_tokens,alias:rt"`

	ID            string     `bun:"id,pk"`
	Token         string     `bun:"token,notnull,unique"`
	ApplicationID string     `bun:"application_id"`
	UserID        string     `bun:"user_id,notnull"`
	Scope         string     `bun:"scope,notnull"`
	AccessTokenID string     `bun:"access_token_id"`
	Revoked       bool       `bun:"revoked,notnull,default:false"`
	RevokedAt     *time.Time `bun:"revoked_at,nullzero"`
	Rotations     int        `bun:"rotations,notnull,default:0"`
	Created       time.Time  `bun:"created,notnull"`
}

func (r *refreshTokenRecord) toDomain() *tokens.RefreshToken {
	return &tokens.RefreshToken{
		ID:            r.ID,
		Token:         r.Token,
		ApplicationID: r.ApplicationID,
		UserID:        r.UserID,
		Scope:         tokens.Scope(r.Scope),
		AccessTokenID: r.AccessTokenID,
		Revoked:       r.Revoked,
		RevokedAt:     r.RevokedAt,
		Rotations:     r.Rotations,
		Created:       r.Created,
	}
}
