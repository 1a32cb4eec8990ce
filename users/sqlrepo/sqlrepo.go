// Package sqlrepo is the durable users.Repo on sqlite via bun.
package sqlrepo

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-token-service/users"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

var _ users.Repo = (*Repo)(nil)

type userRecord struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID               string    `bun:"id,pk"`
	Username         string    `bun:"username,notnull,unique"`
	Email            string    `bun:"email"`
	PasswordHash     string    `bun:"password_hash"`
	FirstName        string    `bun:"first_name"`
	LastName         string    `bun:"last_name"`
	ExternalProvider string    `bun:"external_provider"`
	DateJoined       time.Time `bun:"date_joined"`
	LastLogin        time.Time `bun:"last_login,nullzero"`
}

func (r *userRecord) toDomain() *users.User {
	return &users.User{
		ID:               r.ID,
		Username:         r.Username,
		Email:            r.Email,
		PasswordHash:     r.PasswordHash,
		FirstName:        r.FirstName,
		LastName:         r.LastName,
		ExternalProvider: r.ExternalProvider,
		DateJoined:       r.DateJoined,
		LastLogin:        r.LastLogin,
	}
}

func fromDomain(u *users.User) *userRecord {
	return &userRecord{
		ID:               u.ID,
		Username:         u.Username,
		Email:            u.Email,
		PasswordHash:     u.PasswordHash,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		ExternalProvider: u.ExternalProvider,
		DateJoined:       u.DateJoined,
		LastLogin:        u.LastLogin,
	}
}

type Repo struct {
	db *bun.DB
}

func New(db *bun.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) InitSchema(ctx context.Context) error {
	_, err := r.db.NewCreateTable().Model((*userRecord)(nil)).IfNotExists().Exec(ctx)
	return errors.Wrap(err, "users sqlrepo.InitSchema")
}

func (r *Repo) Upsert(user *users.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.DateJoined.IsZero() {
		user.DateJoined = time.Now()
	}
	_, err := r.db.NewInsert().Model(fromDomain(user)).
		On("CONFLICT (id) DO UPDATE").
		Set("username = EXCLUDED.username").
		Set("email = EXCLUDED.email").
		Set("password_hash = EXCLUDED.password_hash").
		Set("first_name = EXCLUDED.first_name").
		Set("last_name = EXCLUDED.last_name").
		Set("external_provider = EXCLUDED.external_provider").
		Set("last_login = EXCLUDED.last_login").
		Exec(context.Background())
	return errors.Wrap(err, "users sqlrepo.Upsert")
}

func (r *Repo) Delete(userID string) error {
	_, err := r.db.NewDelete().Model((*userRecord)(nil)).Where("id = ?", userID).Exec(context.Background())
	return errors.Wrap(err, "users sqlrepo.Delete")
}

func (r *Repo) GetByID(userID string) (*users.User, error) {
	return r.getWhere("id = ?", userID)
}

func (r *Repo) GetByUsername(username string) (*users.User, error) {
	return r.getWhere("username = ?", username)
}

func (r *Repo) getWhere(clause string, arg any) (*users.User, error) {
	rec := new(userRecord)
	err := r.db.NewSelect().Model(rec).Where(clause, arg).Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.New("user not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "users sqlrepo get")
	}
	return rec.toDomain(), nil
}

func (r *Repo) List(offset, limit int) ([]*users.User, error) {
	var recs []userRecord
	query := r.db.NewSelect().Model(&recs).Order("username ASC").Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Scan(context.Background()); err != nil {
		return nil, errors.Wrap(err, "users sqlrepo.List")
	}
	list := make([]*users.User, 0, len(recs))
	for i := range recs {
		list = append(list, recs[i].toDomain())
	}
	return list, nil
}
