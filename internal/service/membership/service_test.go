package membership_test

import (
	"context"
	"os"
	"testing"
	"time"

	"dehive/internal/domain"
	"dehive/internal/dto"
	"dehive/internal/observability/metrics"
	"dehive/internal/service/dm"
	"dehive/internal/service/membership"
	"dehive/internal/store"
	apperr "dehive/pkg/errors"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	metrics.MustRegister("membership")
	os.Exit(m.Run())
}

// stubMemberCache records invalidations and optionally serves a canned list.
type stubMemberCache struct {
	data        map[string][]dto.ServerMember
	invalidated []string
}

func newStubCache() *stubMemberCache {
	return &stubMemberCache{data: map[string][]dto.ServerMember{}}
}

func (c *stubMemberCache) Get(_ context.Context, serverID string) ([]dto.ServerMember, error) {
	if members, ok := c.data[serverID]; ok {
		return members, nil
	}
	return nil, apperr.NotFound("cache miss")
}

func (c *stubMemberCache) Set(_ context.Context, serverID string, members []dto.ServerMember) error {
	c.data[serverID] = members
	return nil
}

func (c *stubMemberCache) Invalidate(_ context.Context, serverID string) error {
	delete(c.data, serverID)
	c.invalidated = append(c.invalidated, serverID)
	return nil
}

func setupService(t *testing.T) (*membership.Service, *store.Store, *stubMemberCache) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	st := store.New(db)
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cache := newStubCache()
	svc := membership.New(st, cache, dm.NewProfileResolver(nil, nil, nil), nil)
	return svc, st, cache
}

func seedServer(t *testing.T, svc *membership.Service) {
	t.Helper()
	if err := svc.CreateServer(context.Background(), "owner", "srv-1", "General"); err != nil {
		t.Fatalf("create server: %v", err)
	}
}

func TestCreateServerAndCounters(t *testing.T) {
	svc, st, _ := setupService(t)
	ctx := context.Background()
	seedServer(t, svc)

	if err := svc.CreateServer(ctx, "owner", "srv-1", "Again"); apperr.CodeOf(err) != apperr.CodeAlreadyExists {
		t.Fatalf("duplicate server: expected already exists, got %v", err)
	}

	sv, err := st.Servers().GetByID(ctx, "srv-1")
	if err != nil {
		t.Fatalf("get server: %v", err)
	}
	if sv.OwnerID != "owner" || sv.MemberCount != 1 {
		t.Fatalf("expected owner with count 1, got %+v", sv)
	}

	stats, err := st.UserStats().Get(ctx, "owner")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if stats.ServerCount != 1 {
		t.Fatalf("expected owner server_count 1, got %d", stats.ServerCount)
	}
}

func TestJoinLeaveCounters(t *testing.T) {
	svc, st, cache := setupService(t)
	ctx := context.Background()
	seedServer(t, svc)

	if err := svc.Join(ctx, "alice", "srv-1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := svc.Join(ctx, "alice", "srv-1"); apperr.CodeOf(err) != apperr.CodeAlreadyExists {
		t.Fatalf("double join: expected already exists, got %v", err)
	}
	if err := svc.Join(ctx, "alice", "no-such"); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Fatalf("unknown server: expected not found, got %v", err)
	}

	sv, _ := st.Servers().GetByID(ctx, "srv-1")
	if sv.MemberCount != 2 {
		t.Fatalf("expected member_count 2, got %d", sv.MemberCount)
	}

	if err := svc.Leave(ctx, "alice", "srv-1"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	sv, _ = st.Servers().GetByID(ctx, "srv-1")
	if sv.MemberCount != 1 {
		t.Fatalf("expected member_count back to 1, got %d", sv.MemberCount)
	}
	stats, _ := st.UserStats().Get(ctx, "alice")
	if stats.ServerCount != 0 {
		t.Fatalf("expected alice server_count 0, got %d", stats.ServerCount)
	}

	if len(cache.invalidated) == 0 {
		t.Fatalf("mutations must invalidate the member cache")
	}
}

func TestOwnerCannotLeave(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()
	seedServer(t, svc)

	if err := svc.Leave(ctx, "owner", "srv-1"); apperr.CodeOf(err) != apperr.CodePermissionDenied {
		t.Fatalf("owner leave: expected permission denied, got %v", err)
	}
}

func TestModerationMatrix(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()
	seedServer(t, svc)

	for _, u := range []string{"mod-a", "mod-b", "member-a", "member-b"} {
		if err := svc.Join(ctx, u, "srv-1"); err != nil {
			t.Fatalf("join %s: %v", u, err)
		}
	}
	for _, u := range []string{"mod-a", "mod-b"} {
		if err := svc.AssignRole(ctx, "owner", u, "srv-1", domain.RoleModerator); err != nil {
			t.Fatalf("promote %s: %v", u, err)
		}
	}

	// Members cannot moderate.
	if err := svc.Kick(ctx, "member-a", "member-b", "srv-1"); apperr.CodeOf(err) != apperr.CodePermissionDenied {
		t.Fatalf("member kick: expected permission denied, got %v", err)
	}
	// Moderators cannot act on moderators.
	if err := svc.Kick(ctx, "mod-a", "mod-b", "srv-1"); apperr.CodeOf(err) != apperr.CodePermissionDenied {
		t.Fatalf("mod on mod: expected permission denied, got %v", err)
	}
	// Nobody targets the owner.
	if err := svc.Ban(ctx, "mod-a", "owner", "srv-1"); apperr.CodeOf(err) != apperr.CodePermissionDenied {
		t.Fatalf("targeting owner: expected permission denied, got %v", err)
	}
	// Self-targeting is rejected outright.
	if err := svc.Kick(ctx, "mod-a", "mod-a", "srv-1"); apperr.CodeOf(err) != apperr.CodeInvalidArgument {
		t.Fatalf("self kick: expected invalid argument, got %v", err)
	}
	// Moderators can remove plain members.
	if err := svc.Kick(ctx, "mod-a", "member-a", "srv-1"); err != nil {
		t.Fatalf("mod kick member: %v", err)
	}
	// Only the owner assigns roles.
	if err := svc.AssignRole(ctx, "mod-a", "member-b", "srv-1", domain.RoleModerator); apperr.CodeOf(err) != apperr.CodePermissionDenied {
		t.Fatalf("mod assigning role: expected permission denied, got %v", err)
	}
	if err := svc.AssignRole(ctx, "owner", "member-b", "srv-1", domain.RoleOwner); apperr.CodeOf(err) != apperr.CodeInvalidArgument {
		t.Fatalf("assigning owner role: expected invalid argument, got %v", err)
	}
}

func TestBanKeepsRowAndBlocksRejoin(t *testing.T) {
	svc, st, _ := setupService(t)
	ctx := context.Background()
	seedServer(t, svc)

	if err := svc.Join(ctx, "alice", "srv-1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := svc.Ban(ctx, "owner", "alice", "srv-1"); err != nil {
		t.Fatalf("ban: %v", err)
	}

	m, err := st.Memberships().Get(ctx, "alice", "srv-1")
	if err != nil {
		t.Fatalf("banned row must remain: %v", err)
	}
	if !m.IsBanned {
		t.Fatalf("expected banned flag set")
	}

	sv, _ := st.Servers().GetByID(ctx, "srv-1")
	if sv.MemberCount != 1 {
		t.Fatalf("ban must decrement member_count, got %d", sv.MemberCount)
	}

	if err := svc.Join(ctx, "alice", "srv-1"); apperr.CodeOf(err) != apperr.CodePermissionDenied {
		t.Fatalf("banned rejoin: expected permission denied, got %v", err)
	}
	if err := svc.Ban(ctx, "owner", "alice", "srv-1"); apperr.CodeOf(err) != apperr.CodeAlreadyExists {
		t.Fatalf("double ban: expected already exists, got %v", err)
	}

	// Unban deletes the row without another counter walk-back.
	if err := svc.Unban(ctx, "owner", "alice", "srv-1"); err != nil {
		t.Fatalf("unban: %v", err)
	}
	if _, err := st.Memberships().Get(ctx, "alice", "srv-1"); err == nil {
		t.Fatalf("unban must delete the membership row")
	}
	sv, _ = st.Servers().GetByID(ctx, "srv-1")
	if sv.MemberCount != 1 {
		t.Fatalf("unban must not change member_count, got %d", sv.MemberCount)
	}

	if err := svc.Join(ctx, "alice", "srv-1"); err != nil {
		t.Fatalf("rejoin after unban: %v", err)
	}
}

func TestTransferOwnership(t *testing.T) {
	svc, st, _ := setupService(t)
	ctx := context.Background()
	seedServer(t, svc)

	if err := svc.Join(ctx, "alice", "srv-1"); err != nil {
		t.Fatalf("join: %v", err)
	}

	if err := svc.TransferOwnership(ctx, "alice", "owner", "srv-1"); apperr.CodeOf(err) != apperr.CodePermissionDenied {
		t.Fatalf("non-owner transfer: expected permission denied, got %v", err)
	}
	if err := svc.TransferOwnership(ctx, "owner", "alice", "srv-1"); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	sv, _ := st.Servers().GetByID(ctx, "srv-1")
	if sv.OwnerID != "alice" {
		t.Fatalf("expected alice as owner, got %q", sv.OwnerID)
	}
	prev, _ := st.Memberships().Get(ctx, "owner", "srv-1")
	if prev.Role != domain.RoleMember {
		t.Fatalf("previous owner must become a member, got %q", prev.Role)
	}
	next, _ := st.Memberships().Get(ctx, "alice", "srv-1")
	if next.Role != domain.RoleOwner {
		t.Fatalf("target must become the owner, got %q", next.Role)
	}

	// The old owner can leave now.
	if err := svc.Leave(ctx, "owner", "srv-1"); err != nil {
		t.Fatalf("leave after transfer: %v", err)
	}
}

func TestServerMembersUsesCache(t *testing.T) {
	svc, _, cache := setupService(t)
	ctx := context.Background()
	seedServer(t, svc)

	members, err := svc.ServerMembers(ctx, "srv-1")
	if err != nil {
		t.Fatalf("server members: %v", err)
	}
	if len(members) != 1 || members[0].Role != domain.RoleOwner {
		t.Fatalf("expected the owner row, got %+v", members)
	}
	if _, ok := cache.data["srv-1"]; !ok {
		t.Fatalf("listing must populate the cache")
	}

	// A canned cache entry short-circuits the store.
	cache.data["srv-1"] = []dto.ServerMember{{Role: "cached"}}
	members, err = svc.ServerMembers(ctx, "srv-1")
	if err != nil {
		t.Fatalf("cached members: %v", err)
	}
	if len(members) != 1 || members[0].Role != "cached" {
		t.Fatalf("expected the cached list, got %+v", members)
	}
}

func TestNotificationToggle(t *testing.T) {
	svc, st, _ := setupService(t)
	ctx := context.Background()
	seedServer(t, svc)

	if err := svc.UpdateNotification(ctx, "owner", "srv-1", false); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	m, _ := st.Memberships().Get(ctx, "owner", "srv-1")
	if m.NotificationsEnabled {
		t.Fatalf("expected notifications disabled")
	}
	if err := svc.UpdateNotification(ctx, "stranger", "srv-1", true); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Fatalf("non-member toggle: expected not found, got %v", err)
	}
}

func TestInviteLifecycle(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()
	seedServer(t, svc)

	inv, err := svc.CreateInvite(ctx, "owner", "srv-1", time.Hour)
	if err != nil {
		t.Fatalf("create invite: %v", err)
	}
	if inv.Code == "" || inv.ServerID != "srv-1" {
		t.Fatalf("unexpected invite %+v", inv)
	}

	serverID, err := svc.AcceptInvite(ctx, "alice", inv.Code)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if serverID != "srv-1" {
		t.Fatalf("expected srv-1, got %q", serverID)
	}
	if _, err := svc.AcceptInvite(ctx, "alice", inv.Code); apperr.CodeOf(err) != apperr.CodeAlreadyExists {
		t.Fatalf("double accept: expected already exists, got %v", err)
	}

	if err := svc.RevokeInvite(ctx, "alice", inv.Code); apperr.CodeOf(err) != apperr.CodePermissionDenied {
		t.Fatalf("member revoking: expected permission denied, got %v", err)
	}
	if err := svc.RevokeInvite(ctx, "owner", inv.Code); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := svc.AcceptInvite(ctx, "bob", inv.Code); apperr.CodeOf(err) != apperr.CodeInvalidArgument {
		t.Fatalf("revoked accept: expected invalid argument, got %v", err)
	}

	if _, err := svc.AcceptInvite(ctx, "bob", "nope"); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Fatalf("unknown code: expected not found, got %v", err)
	}
	if _, err := svc.CreateInvite(ctx, "stranger", "srv-1", 0); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Fatalf("non-member invite: expected not found, got %v", err)
	}
}
