package invite

import (
	"context"
	"errors"
	"testing"
	"time"

	"tavern/cmd/internal/remote"
)

func newTestService(t *testing.T, now time.Time, opts ...Option) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	svc, err := NewService(store, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store
}

func TestService_CreateValidateRevoke(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)

	creator := "profile-dm"
	inv, tok, err := svc.CreateInvite(ctx, CreateInput{WorldID: "world-waterdeep", CreatedBy: &creator, TTL: 48 * time.Hour})
	if err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}
	if inv.ID == "" || tok == "" || !inv.ExpiresAt.Equal(now.Add(48*time.Hour)) {
		t.Fatalf("unexpected invite %+v token %q", inv, tok)
	}

	got, err := svc.ValidateInvite(ctx, tok, now.Add(time.Hour))
	if err != nil || got.WorldID != "world-waterdeep" {
		t.Fatalf("ValidateInvite() = %+v, %v", got, err)
	}

	if err := svc.RevokeInvite(ctx, inv.ID); err != nil {
		t.Fatalf("RevokeInvite: %v", err)
	}
	if err := svc.RevokeInvite(ctx, inv.ID); err != nil {
		t.Fatalf("second RevokeInvite: %v", err)
	}
	if _, err := svc.ValidateInvite(ctx, tok, now.Add(time.Hour)); !errors.Is(err, ErrInvalidInvite) {
		t.Fatalf("revoked invite err = %v", err)
	}
}

func TestService_ValidateIsIndistinguishable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)

	_, tok, err := svc.CreateInvite(ctx, CreateInput{WorldID: "w", TTL: time.Hour})
	if err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}

	cases := map[string]struct {
		token string
		at    time.Time
	}{
		"unknown":      {"never-issued", now},
		"blank":        {"  ", now},
		"expired":      {tok, now.Add(2 * time.Hour)},
		"exact expiry": {tok, now.Add(time.Hour)},
	}
	for name, tc := range cases {
		_, err := svc.ValidateInvite(ctx, tc.token, tc.at)
		if !errors.Is(err, ErrInvalidInvite) {
			t.Fatalf("%s: err = %v, want ErrInvalidInvite", name, err)
		}
		if err.Error() != ErrInvalidInvite.Error() {
			t.Fatalf("%s: message leaks detail: %q", name, err.Error())
		}
	}
}

func TestService_StoreFailureIsTransient(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, store := newTestService(t, time.Now())
	store.GetErr = errors.New("connection reset")

	_, err := svc.ValidateInvite(ctx, "abc", time.Time{})
	if remote.Classify(err) != remote.KindTransient {
		t.Fatalf("err = %v, want transient", err)
	}
}

func TestService_HMACKeyChangesHash(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Now().UTC()
	store := NewMemoryStore()

	keyed, err := NewService(store, WithHMACKey([]byte("0123456789abcdef0123456789abcdef")))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	plain, err := NewService(store)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	_, tok, err := keyed.CreateInvite(ctx, CreateInput{WorldID: "w", Now: now})
	if err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}
	if _, err := keyed.ValidateInvite(ctx, tok, now); err != nil {
		t.Fatalf("keyed validate: %v", err)
	}
	if _, err := plain.ValidateInvite(ctx, tok, now); !errors.Is(err, ErrInvalidInvite) {
		t.Fatalf("validation with a different hash should fail, got %v", err)
	}
}

func TestService_CreateRejectsBadInput(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, time.Now())
	if _, _, err := svc.CreateInvite(context.Background(), CreateInput{WorldID: " "}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if _, err := NewService(nil); err == nil {
		t.Fatalf("expected nil store error")
	}
	if _, err := NewService(NewMemoryStore(), WithTokenBytes(8)); err == nil {
		t.Fatalf("expected short token error")
	}
}

func TestService_ListInvites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)

	var created []Invite
	for _, ttl := range []time.Duration{time.Hour, time.Hour, time.Hour} {
		inv, _, err := svc.CreateInvite(ctx, CreateInput{WorldID: "world-waterdeep", TTL: ttl})
		if err != nil {
			t.Fatalf("CreateInvite: %v", err)
		}
		created = append(created, inv)
	}
	if _, _, err := svc.CreateInvite(ctx, CreateInput{WorldID: "world-neverwinter"}); err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}
	if _, _, err := svc.CreateInvite(ctx, CreateInput{WorldID: "world-waterdeep", TTL: time.Hour, Now: now.Add(-2 * time.Hour)}); err != nil {
		t.Fatalf("CreateInvite expired: %v", err)
	}
	if err := svc.RevokeInvite(ctx, created[0].ID); err != nil {
		t.Fatalf("RevokeInvite: %v", err)
	}

	active, err := svc.ListInvites(ctx, "world-waterdeep", false)
	if err != nil {
		t.Fatalf("ListInvites: %v", err)
	}
	if len(active) != 2 || active[0].ID != created[2].ID || active[1].ID != created[1].ID {
		t.Fatalf("active invites = %+v", active)
	}

	all, err := svc.ListInvites(ctx, "world-waterdeep", true)
	if err != nil || len(all) != 4 {
		t.Fatalf("all invites = %d, %v; want 4", len(all), err)
	}
	if _, err := svc.ListInvites(ctx, " ", false); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank world err = %v", err)
	}
}

func TestService_RevokeRejectsMalformedID(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, time.Now())
	if err := svc.RevokeInvite(context.Background(), "not-a-ulid"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}
