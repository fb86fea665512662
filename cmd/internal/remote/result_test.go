package remote

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: KindOK},
		{name: "not found", err: NotFound("profile.Get", ""), want: KindNotFound},
		{name: "invalid", err: Invalid("invite.Validate", "empty token"), want: KindInvalid},
		{name: "conflict", err: Conflict("membership.Add", "world_user"), want: KindConflict},
		{name: "wrapped conflict", err: fmt.Errorf("add member: %w", Conflict("membership.Add", "")), want: KindConflict},
		{name: "network", err: errors.New("dial tcp: connection refused"), want: KindTransient},
		{name: "canceled", err: context.Canceled, want: KindTransient},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Fatalf("%s: Classify()=%s want %s", tc.name, got, tc.want)
		}
	}
}

func TestCall(t *testing.T) {
	t.Parallel()

	ok := Call(context.Background(), func(context.Context) (string, error) { return "elyra", nil })
	if !ok.OK() || ok.Value != "elyra" {
		t.Fatalf("unexpected ok result: %+v", ok)
	}

	nf := Call(context.Background(), func(context.Context) (string, error) { return "stale", NotFound("op", "") })
	if nf.Kind != KindNotFound || nf.Value != "" {
		t.Fatalf("not found must drop value: %+v", nf)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	tr := Call(ctx, func(context.Context) (int, error) { called = true; return 1, nil })
	if called || tr.Kind != KindTransient {
		t.Fatalf("canceled ctx must short-circuit as transient: called=%v kind=%s", called, tr.Kind)
	}
}

func TestOpError_Format(t *testing.T) {
	t.Parallel()

	err := OpError{Op: "profile.Create", Kind: ErrConflict, Msg: "username"}
	if err.Error() != "profile.Create: conflict: username" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected errors.Is conflict")
	}
}
