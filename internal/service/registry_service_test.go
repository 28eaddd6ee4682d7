package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/protocol-service/internal/domain"
	apperrors "github.com/spec-kit/protocol-service/pkg/util"
)

func TestProblemTypeMutationsRequireSuperuser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.taxonomy.Create(ctx, env.operator, ProblemTypeInput{Name: "Hardware"})
	requireCode(t, err, apperrors.CodeForbidden)

	pt := env.problemType("Hardware")
	name := "Renamed"
	_, err = env.taxonomy.Update(ctx, env.operator, pt.ID, ProblemTypePatch{Name: &name})
	requireCode(t, err, apperrors.CodeForbidden)
	requireCode(t, env.taxonomy.Delete(ctx, env.operator, pt.ID), apperrors.CodeForbidden)

	_, err = env.taxonomy.Create(ctx, domain.Actor{}, ProblemTypeInput{Name: "X"})
	requireCode(t, err, apperrors.CodeUnauthorized)

	listed, err := env.taxonomy.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.NotNil(t, listed[0].CreatedBy)
	assert.Equal(t, env.admin.UserID, *listed[0].CreatedBy)
}

func TestProblemTypeNameRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.problemType("Hardware")

	_, err := env.taxonomy.Create(ctx, env.admin, ProblemTypeInput{Name: "Hardware"})
	domainErr := requireCode(t, err, apperrors.CodeValidation)
	assert.Contains(t, domainErr.Details["fields"], "name")

	_, err = env.taxonomy.Create(ctx, env.admin, ProblemTypeInput{Name: "  "})
	requireCode(t, err, apperrors.CodeValidation)

	long := make([]byte, maxProblemTypeNameLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = env.taxonomy.Create(ctx, env.admin, ProblemTypeInput{Name: string(long)})
	requireCode(t, err, apperrors.CodeValidation)
}

func TestReferencedProblemTypeCannotBeDeleted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pt := env.problemType("Hardware")
	client := env.client("ACME", "ops@acme.test")
	ticket := env.ticket(pt, client)

	err := env.taxonomy.Delete(ctx, env.admin, pt.ID)
	domainErr := requireCode(t, err, apperrors.CodeReferentialIntegrity)
	assert.Equal(t, 409, domainErr.HTTPStatus)
	assert.Equal(t, 1, domainErr.Details["tickets"])

	inactive := false
	updated, err := env.taxonomy.Update(ctx, env.admin, pt.ID, ProblemTypePatch{Active: &inactive})
	require.NoError(t, err)
	assert.False(t, updated.Active)

	detail, err := env.tickets.Get(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hardware", detail.ProblemType.Name)

	require.NoError(t, env.tickets.Delete(ctx, env.admin, ticket.ID))
	require.NoError(t, env.taxonomy.Delete(ctx, env.admin, pt.ID))
	_, err = env.taxonomy.Get(ctx, pt.ID)
	requireCode(t, err, apperrors.CodeNotFound)
}

func TestClientRegistration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := env.client("ACME", "ops@acme.test")

	assert.True(t, client.Active)
	assert.NotEqual(t, "client-secret", client.SecretHash)
	ok, err := env.clients.VerifySecret(ctx, client.ID, "client-secret")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = env.clients.VerifySecret(ctx, client.ID, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = env.clients.VerifySecret(ctx, "missing", "client-secret")
	requireCode(t, err, apperrors.CodeNotFound)

	inactive := false
	_, err = env.clients.Update(ctx, env.operator, client.ID, ClientPatch{Active: &inactive})
	require.NoError(t, err)
	ok, err = env.clients.VerifySecret(ctx, client.ID, "client-secret")
	require.NoError(t, err)
	assert.False(t, ok, "inactive clients never verify")

	_, err = env.clients.Register(ctx, env.operator, ClientInput{Name: "Other", Email: "OPS@acme.test", Secret: "s"})
	domainErr := requireCode(t, err, apperrors.CodeValidation)
	fields := domainErr.Details["fields"].(map[string]string)
	assert.Equal(t, "a client with this email already exists", fields["email"])

	_, err = env.clients.Register(ctx, env.operator, ClientInput{Name: "", Email: "not-an-email", Secret: "s"})
	domainErr = requireCode(t, err, apperrors.CodeValidation)
	fields = domainErr.Details["fields"].(map[string]string)
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "email")

	_, err = env.clients.Register(ctx, env.operator, ClientInput{Name: "NoSecret", Email: "x@acme.test"})
	requireCode(t, err, apperrors.CodeValidation)
}

func TestClientUpdateKeepsEmailUnique(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acme := env.client("ACME", "ops@acme.test")
	env.client("Globex", "it@globex.test")

	taken := "it@globex.test"
	_, err := env.clients.Update(ctx, env.operator, acme.ID, ClientPatch{Email: &taken})
	requireCode(t, err, apperrors.CodeValidation)

	sameDifferentCase := "OPS@acme.test"
	updated, err := env.clients.Update(ctx, env.operator, acme.ID, ClientPatch{Email: &sameDifferentCase})
	require.NoError(t, err)
	assert.Equal(t, "OPS@acme.test", updated.Email)
}

func TestDeletingClientDetachesTickets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pt := env.problemType("Hardware")
	acme := env.client("ACME", "ops@acme.test")
	globex := env.client("Globex", "it@globex.test")

	ticket, err := env.tickets.Create(ctx, env.operator, TicketCreateInput{
		ClientIDs:     []string{acme.ID, globex.ID},
		DeviceID:      "BUIC-1",
		ProblemTypeID: pt.ID,
		Description:   "shared socket",
	})
	require.NoError(t, err)

	require.NoError(t, env.clients.Delete(ctx, env.operator, acme.ID))

	detail, err := env.tickets.Get(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{globex.ID}, detail.Ticket.ClientIDs)
	require.Len(t, detail.Clients, 1)
	assert.Equal(t, "Globex", detail.Clients[0].Name)

	requireCode(t, env.clients.Delete(ctx, env.operator, acme.ID), apperrors.CodeNotFound)
}

func TestLoginAndCreateUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.auth.Login(ctx, "admin", "admin-password")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	claims, err := env.auth.TokenManager().ParseToken(result.Token)
	require.NoError(t, err)
	assert.Equal(t, env.admin.UserID, claims.UserID())
	assert.True(t, claims.Superuser)

	_, err = env.auth.Login(ctx, "admin", "wrong-password")
	requireCode(t, err, apperrors.CodeUnauthorized)
	_, err = env.auth.Login(ctx, "nobody", "admin-password")
	requireCode(t, err, apperrors.CodeUnauthorized)

	_, err = env.auth.CreateUser(ctx, env.operator, UserInput{Username: "new", Password: "long-enough"})
	requireCode(t, err, apperrors.CodeForbidden)

	created, err := env.auth.CreateUser(ctx, env.admin, UserInput{Username: "new", Password: "long-enough"})
	require.NoError(t, err)
	assert.False(t, created.Superuser)

	_, err = env.auth.CreateUser(ctx, env.admin, UserInput{Username: "new", Password: "long-enough"})
	requireCode(t, err, apperrors.CodeValidation)
	_, err = env.auth.CreateUser(ctx, env.admin, UserInput{Username: "short", Password: "x"})
	requireCode(t, err, apperrors.CodeValidation)

	_, created2, err := env.auth.EnsureUser(ctx, UserInput{Username: "admin", Password: "ignored-password"})
	require.NoError(t, err)
	assert.False(t, created2)
}
