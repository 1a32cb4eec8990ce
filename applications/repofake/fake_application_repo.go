package fakeapplicationrepo

import (
	"errors"
	"sort"
	"sync"

	"github.com/jrsteele09/go-token-service/applications"
)

var _ applications.Repo = (*FakeApplicationRepo)(nil)

type FakeApplicationRepo struct {
	apps      map[string]*applications.Application
	clientIDs map[string]string // client id to application id
	lock      sync.RWMutex
}

func NewFakeApplicationRepo() applications.Repo {
	return &FakeApplicationRepo{
		apps:      make(map[string]*applications.Application),
		clientIDs: make(map[string]string),
	}
}

func (ar *FakeApplicationRepo) Upsert(app *applications.Application) error {
	ar.lock.Lock()
	defer ar.lock.Unlock()

	copied := *app
	ar.apps[app.ID] = &copied
	ar.clientIDs[app.ClientID] = app.ID
	return nil
}

func (ar *FakeApplicationRepo) Delete(id string) error {
	ar.lock.Lock()
	defer ar.lock.Unlock()

	app, ok := ar.apps[id]
	if !ok {
		return errors.New("not found")
	}
	delete(ar.clientIDs, app.ClientID)
	delete(ar.apps, id)
	return nil
}

func (ar *FakeApplicationRepo) Get(id string) (*applications.Application, error) {
	ar.lock.RLock()
	defer ar.lock.RUnlock()

	app, ok := ar.apps[id]
	if !ok {
		return nil, errors.New("not found")
	}
	copied := *app
	return &copied, nil
}

func (ar *FakeApplicationRepo) GetByClientID(clientID string) (*applications.Application, error) {
	ar.lock.RLock()
	defer ar.lock.RUnlock()

	id, ok := ar.clientIDs[clientID]
	if !ok {
		return nil, errors.New("not found")
	}
	copied := *ar.apps[id]
	return &copied, nil
}

func (ar *FakeApplicationRepo) List(offset, limit int) ([]*applications.Application, error) {
	ar.lock.RLock()
	defer ar.lock.RUnlock()

	apps := make([]*applications.Application, 0, len(ar.apps))
	for _, v := range ar.apps {
		copied := *v
		apps = append(apps, &copied)
	}

	sort.Slice(apps, func(i, j int) bool {
		return apps[i].Created.Before(apps[j].Created)
	})

	if offset >= len(apps) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(apps) {
		end = len(apps)
	}
	return apps[offset:end], nil
}
