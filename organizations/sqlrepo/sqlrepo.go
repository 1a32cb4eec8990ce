// Package sqlrepo is the durable organizations.Repo on sqlite via bun.
package sqlrepo

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-token-service/organizations"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

var _ organizations.Repo = (*Repo)(nil)

type orgRecord struct {
	bun.BaseModel `bun:"table:organizations,alias:o"`

	ID      string    `bun:"id,pk"`
	Name    string    `bun:"name,notnull"`
	Created time.Time `bun:"created,notnull"`
}

func (r *orgRecord) toDomain() *organizations.Organization {
	return &organizations.Organization{
		ID:      r.ID,
		Name:    r.Name,
		Created: r.Created,
	}
}

type Repo struct {
	db *bun.DB
}

func New(db *bun.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) InitSchema(ctx context.Context) error {
	_, err := r.db.NewCreateTable().Model((*orgRecord)(nil)).IfNotExists().Exec(ctx)
	return errors.Wrap(err, "orgs sqlrepo.InitSchema")
}

func (r *Repo) Upsert(org *organizations.Organization) error {
	if org.ID == "" {
		org.ID = uuid.New().String()
	}
	if org.Created.IsZero() {
		org.Created = time.Now()
	}
	rec := &orgRecord{ID: org.ID, Name: org.Name, Created: org.Created}
	_, err := r.db.NewInsert().Model(rec).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Exec(context.Background())
	return errors.Wrap(err, "orgs sqlrepo.Upsert")
}

func (r *Repo) Delete(orgID string) error {
	_, err := r.db.NewDelete().Model((*orgRecord)(nil)).Where("id = ?", orgID).Exec(context.Background())
	return errors.Wrap(err, "orgs sqlrepo.Delete")
}

func (r *Repo) Get(orgID string) (*organizations.Organization, error) {
	rec := new(orgRecord)
	err := r.db.NewSelect().Model(rec).Where("id = ?", orgID).Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.New("organization not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "orgs sqlrepo.Get")
	}
	return rec.toDomain(), nil
}

func (r *Repo) List(offset, limit int) ([]*organizations.Organization, error) {
	var recs []orgRecord
	query := r.db.NewSelect().Model(&recs).Order("name ASC").Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Scan(context.Background()); err != nil {
		return nil, errors.Wrap(err, "orgs sqlrepo.List")
	}
	list := make([]*organizations.Organization, 0, len(recs))
	for i := range recs {
		list = append(list, recs[i].toDomain())
	}
	return list, nil
}
