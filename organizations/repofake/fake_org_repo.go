package orgrepofake

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-token-service/organizations"
)

var _ organizations.Repo = (*FakeOrgRepo)(nil)

type FakeOrgRepo struct {
	orgs map[string]*organizations.Organization
	lock sync.RWMutex
}

func NewFakeOrgRepo() organizations.Repo {
	return &FakeOrgRepo{
		orgs: make(map[string]*organizations.Organization),
	}
}

func (or *FakeOrgRepo) Upsert(org *organizations.Organization) error {
	or.lock.Lock()
	defer or.lock.Unlock()

	if org.ID == "" {
		org.ID = uuid.New().String()
	}
	or.orgs[org.ID] = org
	return nil
}

func (or *FakeOrgRepo) Delete(orgID string) error {
	or.lock.Lock()
	defer or.lock.Unlock()

	if _, ok := or.orgs[orgID]; !ok {
		return errors.New("not found")
	}
	delete(or.orgs, orgID)
	return nil
}

func (or *FakeOrgRepo) Get(orgID string) (*organizations.Organization, error) {
	or.lock.RLock()
	defer or.lock.RUnlock()

	org, ok := or.orgs[orgID]
	if !ok {
		return nil, errors.New("not found")
	}
	return org, nil
}

func (or *FakeOrgRepo) List(offset, limit int) ([]*organizations.Organization, error) {
	or.lock.RLock()
	defer or.lock.RUnlock()

	orgs := make([]*organizations.Organization, 0, len(or.orgs))
	for _, v := range or.orgs {
		orgs = append(orgs, v)
	}

	sort.Slice(orgs, func(i, j int) bool {
		return orgs[i].Name < orgs[j].Name
	})

	if offset >= len(orgs) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(orgs) {
		end = len(orgs)
	}
	return orgs[offset:end], nil
}
