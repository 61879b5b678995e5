package rbac

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/trustledger/internal/audit"
	"github.com/odyssey-erp/trustledger/internal/platform/memtx"
	"github.com/odyssey-erp/trustledger/internal/platform/sequence"
	"github.com/odyssey-erp/trustledger/internal/shared"
)

const admin shared.Principal = "admin"

func newTestService(t *testing.T) (*Service, *audit.Recorder) {
	t.Helper()
	tx := memtx.New()
	rec := audit.NewRecorder(audit.NewMemoryRepository(tx), sequence.NewMemory(tx), nil, nil)
	svc := NewService(tx, NewMemoryRepository(tx), rec, nil)
	require.NoError(t, svc.Initialize(context.Background(), admin))
	return svc, rec
}

func historyKinds(t *testing.T, rec *audit.Recorder) []audit.Kind {
	t.Helper()
	res, err := rec.History(context.Background(), audit.Filters{Page: shared.NewPage(1, shared.MaxPerPage)})
	require.NoError(t, err)
	kinds := make([]audit.Kind, 0, len(res.Entries))
	for _, e := range res.Entries {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func TestInitializeIsRootOfTrust(t *testing.T) {
	svc, rec := newTestService(t)
	ctx := context.Background()

	got, err := svc.Admin(ctx)
	require.NoError(t, err)
	require.Equal(t, admin, got)
	ok, err := svc.HasRole(ctx, RoleAdmin, admin)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, svc.Initialize(ctx, "someone-else"))
	got, err = svc.Admin(ctx)
	require.NoError(t, err)
	require.Equal(t, admin, got)
	require.Equal(t, []audit.Kind{audit.KindAdminInitialized}, historyKinds(t, rec))
}

func TestGrantRoleByAdmin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.GrantRole(ctx, RoleVerifier, "V", admin))
	ok, err := svc.HasRole(ctx, RoleVerifier, "V")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestGrantRoleRejectsNonAdmin(t *testing.T) {
	svc, rec := newTestService(t)
	ctx := context.Background()

	err := svc.GrantRole(ctx, RoleAuditor, "Y", "X")
	require.ErrorIs(t, err, shared.ErrUnauthorized)
	require.ErrorIs(t, err, ErrUnauthorized)

	roles, err := svc.RolesOf(ctx, "Y")
	require.NoError(t, err)
	require.Empty(t, roles)

	err = svc.RevokeRole(ctx, RoleAdmin, admin, "X")
	require.ErrorIs(t, err, shared.ErrUnauthorized)
	require.Len(t, historyKinds(t, rec), 1)
}

func TestRoleChangesAreIdempotent(t *testing.T) {
	svc, rec := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.GrantRole(ctx, RoleAuditor, "A", admin))
	require.NoError(t, svc.GrantRole(ctx, RoleAuditor, "A", admin))
	members, err := svc.MembersOf(ctx, RoleAuditor)
	require.NoError(t, err)
	require.Equal(t, []shared.Principal{"A"}, members)

	require.NoError(t, svc.RevokeRole(ctx, RoleAuditor, "A", admin))
	require.NoError(t, svc.RevokeRole(ctx, RoleAuditor, "A", admin))
	members, err = svc.MembersOf(ctx, RoleAuditor)
	require.NoError(t, err)
	require.Empty(t, members)

	require.Equal(t, []audit.Kind{
		audit.KindAdminInitialized,
		audit.KindRoleGranted,
		audit.KindRoleRevoked,
	}, historyKinds(t, rec))
}

func TestRolesOfOrdered(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.GrantRole(ctx, RoleAuditor, "P", admin))
	require.NoError(t, svc.GrantRole(ctx, RoleVerifier, "P", admin))

	roles, err := svc.RolesOf(ctx, "P")
	require.NoError(t, err)
	require.Equal(t, []Role{RoleVerifier, RoleAuditor}, roles)
}

func TestInvalidInputs(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.ErrorIs(t, svc.GrantRole(ctx, Role("Root"), "P", admin), shared.ErrValidation)
	require.ErrorIs(t, svc.GrantRole(ctx, RoleVerifier, "  ", admin), shared.ErrValidation)
	_, err := ParseRole("documentmanager")
	require.NoError(t, err)
	_, err = ParseRole("owner")
	require.ErrorIs(t, err, ErrInvalidRole)
}

func TestTransferAdminKeepsOutgoingRole(t *testing.T) {
	svc, rec := newTestService(t)
	ctx := context.Background()

	require.ErrorIs(t, svc.TransferAdminAuthority(ctx, "", admin), shared.ErrInvalidPrincipal)
	require.ErrorIs(t, svc.TransferAdminAuthority(ctx, "N", "X"), ErrNotAdminAuthority)

	require.NoError(t, svc.TransferAdminAuthority(ctx, "N", admin))
	got, err := svc.Admin(ctx)
	require.NoError(t, err)
	require.Equal(t, shared.Principal("N"), got)

	members, err := svc.MembersOf(ctx, RoleAdmin)
	require.NoError(t, err)
	require.Equal(t, []shared.Principal{"N", admin}, members)

	// the outgoing admin still holds the role but no longer the authority
	require.ErrorIs(t, svc.TransferAdminAuthority(ctx, "Z", admin), ErrNotAdminAuthority)
	require.NoError(t, svc.GrantRole(ctx, RoleVerifier, "V", admin))

	require.Contains(t, historyKinds(t, rec), audit.KindAdminTransferred)
}

func TestAdminAuthorityKeepsAdminRole(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.GrantRole(ctx, RoleAdmin, "B", admin))

	err := svc.RevokeRole(ctx, RoleAdmin, admin, "B")
	require.ErrorIs(t, err, ErrAdminAuthorityRole)
	require.ErrorIs(t, err, shared.ErrInvariant)

	require.NoError(t, svc.RevokeRole(ctx, RoleAdmin, "B", admin))
}

func TestConcurrentGrantsRecordOnce(t *testing.T) {
	svc, rec := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.GrantRole(ctx, RoleDocumentManager, "D", admin))
		}()
	}
	wg.Wait()

	kinds := historyKinds(t, rec)
	require.Equal(t, []audit.Kind{audit.KindAdminInitialized, audit.KindRoleGranted}, kinds)
}
