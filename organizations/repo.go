package organizations

type Repo interface {
	Upsert(org *Organization) error
	Delete(orgID string) error
	Get(orgID string) (*Organization, error)
	List(offset, limit int) ([]*Organization, error)
}
