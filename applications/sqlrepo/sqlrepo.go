// Package sqlrepo is the durable applications.Repo on sqlite via bun.
package sqlrepo

import (
	"context"
	"database/sql"
	"time"

	"github.com/jrsteele09/go-token-service/applications"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

var _ applications.Repo = (*Repo)(nil)

type applicationRecord struct {
	bun.BaseModel `bun:"table:applications,alias:a"`

	ID                     string    `bun:"id,pk"`
	ClientID               string    `bun:"client_id,notnull,unique"`
	ClientSecret           string    `bun:"client_secret,notnull"`
	Name                   string    `bun:"name,notnull"`
	OrganizationID         string    `bun:"organization_id,notnull"`
	ClientType             string    `bun:"client_type,notnull"`
	AuthorizationGrantType string    `bun:"authorization_grant_type,notnull"`
	RedirectURIs           string    `bun:"redirect_uris"`
	SkipAuthorization      bool      `bun:"skip_authorization"`
	Created                time.Time `bun:"created,notnull"`
	Modified               time.Time `bun:"modified,notnull"`
}

func (r *applicationRecord) toDomain() *applications.Application {
	return &applications.Application{
		ID:                     r.ID,
		ClientID:               r.ClientID,
		ClientSecret:           r.ClientSecret,
		Name:                   r.Name,
		OrganizationID:         r.OrganizationID,
		ClientType:             applications.ClientType(r.ClientType),
		AuthorizationGrantType: applications.GrantType(r.AuthorizationGrantType),
		RedirectURIs:           r.RedirectURIs,
		SkipAuthorization:      r.SkipAuthorization,
		Created:                r.Created,
		Modified:               r.Modified,
	}
}

func fromDomain(app *applications.Application) *applicationRecord {
	return &applicationRecord{
		ID:                     app.ID,
		ClientID:               app.ClientID,
		ClientSecret:           app.ClientSecret,
		Name:                   app.Name,
		OrganizationID:         app.OrganizationID,
		ClientType:             string(app.ClientType),
		AuthorizationGrantType: string(app.AuthorizationGrantType),
		RedirectURIs:           app.RedirectURIs,
		SkipAuthorization:      app.SkipAuthorization,
		Created:                app.Created,
		Modified:               app.Modified,
	}
}

type Repo struct {
	db *bun.DB
}

func New(db *bun.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) InitSchema(ctx context.Context) error {
	_, err := r.db.NewCreateTable().Model((*applicationRecord)(nil)).IfNotExists().Exec(ctx)
	return errors.Wrap(err, "applications sqlrepo.InitSchema")
}

// Upsert writes the full record; the grant-type immutability rule is enforced
// above this layer, so the column is written as given.
func (r *Repo) Upsert(app *applications.Application) error {
	_, err := r.db.NewInsert().Model(fromDomain(app)).
		On("CONFLICT (id) DO UPDATE").
		Set("client_secret = EXCLUDED.client_secret").
		Set("name = EXCLUDED.name").
		Set("organization_id = EXCLUDED.organization_id").
		Set("client_type = EXCLUDED.client_type").
		Set("redirect_uris = EXCLUDED.redirect_uris").
		Set("skip_authorization = EXCLUDED.skip_authorization").
		Set("modified = EXCLUDED.modified").
		Exec(context.Background())
	return errors.Wrap(err, "applications sqlrepo.Upsert")
}

func (r *Repo) Delete(id string) error {
	_, err := r.db.NewDelete().Model((*applicationRecord)(nil)).Where("id = ?", id).Exec(context.Background())
	return errors.Wrap(err, "applications sqlrepo.Delete")
}

func (r *Repo) Get(id string) (*applications.Application, error) {
	return r.getWhere("id = ?", id)
}

func (r *Repo) GetByClientID(clientID string) (*applications.Application, error) {
	return r.getWhere("client_id = ?", clientID)
}

func (r *Repo) getWhere(clause string, arg any) (*applications.Application, error) {
	rec := new(applicationRecord)
	err := r.db.NewSelect().Model(rec).Where(clause, arg).Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.New("application not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "applications sqlrepo get")
	}
	return rec.toDomain(), nil
}

func (r *Repo) List(offset, limit int) ([]*applications.Application, error) {
	var recs []applicationRecord
	query := r.db.NewSelect().Model(&recs).Order("created ASC").Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Scan(context.Background()); err != nil {
		return nil, errors.Wrap(err, "applications sqlrepo.List")
	}
	list := make([]*applications.Application, 0, len(recs))
	for i := range recs {
		list = append(list, recs[i].toDomain())
	}
	return list, nil
}
