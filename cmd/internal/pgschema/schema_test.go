package pgschema

import (
	"strings"
	"testing"
)

func TestValidIdent(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"tavern":          true,
		"tavern_it_01abc": true,
		"":                false,
		"9lives":          false,
		"Tavern":          false,
		"drop;table":      false,
		strings.Repeat("a", 64): false,
	}
	for in, want := range cases {
		if got := ValidIdent(in); got != want {
			t.Fatalf("ValidIdent(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestDDL_QualifiesEveryTable(t *testing.T) {
	t.Parallel()

	ddl := DDL("tavern_x")
	for _, want := range []string{
		`"tavern_x"."profiles"`,
		`"tavern_x"."world_invites"`,
		`"tavern_x"."world_members"`,
		"uq_world_members_world_user",
	} {
		if !strings.Contains(ddl, want) {
			t.Fatalf("DDL missing %s", want)
		}
	}
}
