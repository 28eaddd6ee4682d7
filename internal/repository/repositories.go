package repository

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories bundles every store the services depend on.
type Repositories struct {
	ProblemTypes ProblemTypeRepository
	Clients      ClientRepository
	Tickets      TicketRepository
	Updates      UpdateRepository
	Users        UserRepository
	Tx           TxManager
}

// NewPostgresRepositories wires the pgx implementations over one pool.
func NewPostgresRepositories(pool *pgxpool.Pool) Repositories {
	return Repositories{
		ProblemTypes: NewProblemTypeRepository(pool),
		Clients:      NewClientRepository(pool),
		Tickets:      NewTicketRepository(pool),
		Updates:      NewUpdateRepository(pool),
		Users:        NewUserRepository(pool),
		Tx:           NewTxManager(pool),
	}
}
