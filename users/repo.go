package users

type Repo interface {
	Upsert(user *User) error
	Delete(userID string) error
	GetByID(userID string) (*User, error)
	GetByUsername(username string) (*User, error)
	List(offset, limit int) ([]*User, error)
}
