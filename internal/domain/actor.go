package domain

// Actor identifies the authenticated user performing an operation.
type Actor struct {
	UserID    string
	Superuser bool
}

// ActorOf returns the actor for u.
func ActorOf(u *User) Actor {
	if u == nil {
		return Actor{}
	}
	return Actor{UserID: u.ID, Superuser: u.Superuser}
}
