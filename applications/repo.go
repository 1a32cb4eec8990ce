package applications

type Repo interface {
	Upsert(app *Application) error
	Delete(id string) error
	Get(id string) (*Application, error)
	GetByClientID(clientID string) (*Application, error)
	List(offset, limit int) ([]*Application, error)
}
