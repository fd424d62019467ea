package object_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	gamedomain "playground-flow/internal/game/domain"
	"playground-flow/internal/object"
	userdomain "playground-flow/internal/user/domain"
)

func newRegistry() *object.Registry {
	return object.NewRegistry(userdomain.Kind, gamedomain.GameKind, gamedomain.EntryKind)
}

func TestRegistry_Resolve(t *testing.T) {
	r := newRegistry()

	get, err := r.Resolve("user", "email")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	v, ok := get(&userdomain.User{Email: "a@b.c"})
	if !ok || v != "a@b.c" {
		t.Errorf("accessor = (%v, %v), want (a@b.c, true)", v, ok)
	}

	if _, ok := get(&gamedomain.Game{ID: "g"}); ok {
		t.Error("accessor on wrong type should report ok=false")
	}
	if _, ok := get(nil); ok {
		t.Error("accessor on nil should report ok=false")
	}
	var nilUser *userdomain.User
	if _, ok := get(nilUser); ok {
		t.Error("accessor on typed nil should report ok=false")
	}

	if _, err := r.Resolve("basket", "id"); !errors.Is(err, object.ErrUnknownRole) {
		t.Errorf("unknown role error = %v", err)
	}
	if _, err := r.Resolve("user", "password"); !errors.Is(err, object.ErrUnknownAttribute) {
		t.Errorf("unknown attribute error = %v", err)
	}
}

func TestRegistry_Roles(t *testing.T) {
	got := newRegistry().Roles()
	if diff := cmp.Diff([]string{"entry", "game", "user"}, got); diff != "" {
		t.Errorf("Roles (-want +got):\n%s", diff)
	}
	attrs := gamedomain.EntryKind.Attributes()
	if diff := cmp.Diff([]string{"active", "id", "points", "winner"}, attrs); diff != "" {
		t.Errorf("Attributes (-want +got):\n%s", diff)
	}
}

func TestRegistry_Decode(t *testing.T) {
	r := newRegistry()

	v, err := r.Decode("user", map[string]any{"id": "7", "email": "x@y.z", "optin": float64(1)})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	u, ok := v.(*userdomain.User)
	if !ok {
		t.Fatalf("Decode returned %T, want *User", v)
	}
	if u.ID != "7" || u.Email != "x@y.z" || u.Optin != 1 {
		t.Errorf("decoded user = %+v", u)
	}

	typed := &userdomain.User{ID: "1"}
	if v, _ := r.Decode("user", typed); v != typed {
		t.Error("typed instance should be returned unchanged")
	}
	if v, _ := r.Decode("data", map[string]any{"optin": "1"}); v == nil {
		t.Error("unknown role should be returned unchanged")
	}
	if _, err := r.Decode("user", map[string]any{"optin": []any{1}}); err == nil {
		t.Error("Decode with a list in a scalar field should fail")
	}
}

func TestRegistry_DecodeCoercesScalars(t *testing.T) {
	r := newRegistry()
	testCases := []struct {
		name string
		raw  map[string]any
		want userdomain.User
	}{
		{"numeric id", map[string]any{"id": float64(1), "name": "old"}, userdomain.User{ID: "1", Name: "old"}},
		{"large id", map[string]any{"id": float64(12345678901)}, userdomain.User{ID: "12345678901"}},
		{"string flag", map[string]any{"id": "u1", "optin": "1"}, userdomain.User{ID: "u1", Optin: 1}},
		{"bool flag", map[string]any{"id": "u1", "optinPartner": true}, userdomain.User{ID: "u1", OptinPartner: 1}},
		{"null field", map[string]any{"id": "u1", "email": nil}, userdomain.User{ID: "u1"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := r.Decode("user", tc.raw)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			u, ok := v.(*userdomain.User)
			if !ok {
				t.Fatalf("Decode returned %T", v)
			}
			if diff := cmp.Diff(tc.want, *u); diff != "" {
				t.Errorf("user mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if _, err := r.Decode("user", map[string]any{"id": "u1", "optin": "yes"}); err == nil {
		t.Error("Decode should reject a flag that is not a number")
	}

	v, err := r.Decode("entry", map[string]any{"points": "15", "winner": "true", "active": float64(0)})
	if err != nil {
		t.Fatalf("Decode entry: %v", err)
	}
	if e := v.(*gamedomain.Entry); e.Points != 15 || !e.Winner || e.Active {
		t.Errorf("entry = %+v", e)
	}
}

func TestRegistry_ResolveErrorListsKnownNames(t *testing.T) {
	r := newRegistry()
	_, err := r.Resolve("basket", "id")
	if err == nil || !strings.Contains(err.Error(), "entry, game, user") {
		t.Errorf("unknown role error = %v, want known roles listed", err)
	}
	_, err = r.Resolve("entry", "score")
	if err == nil || !strings.Contains(err.Error(), "active, id, points, winner") {
		t.Errorf("unknown attribute error = %v, want known attributes listed", err)
	}
}

func TestEqual(t *testing.T) {
	testCases := []struct {
		name string
		a, b any
		want bool
	}{
		{"int vs string", 1, "1", true},
		{"int vs float", 1, float64(1), true},
		{"zero vs empty", 0, "", false},
		{"nil vs empty", nil, "", true},
		{"bool true vs 1", true, "1", true},
		{"bool false vs empty", false, "", true},
		{"different strings", "old", "new", false},
		{"float fraction", 1.5, "1.5", true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := object.Equal(tc.a, tc.b); got != tc.want {
				t.Errorf("Equal(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestInt(t *testing.T) {
	testCases := []struct {
		in   any
		want int
	}{
		{nil, 0},
		{"1", 1},
		{float64(1), 1},
		{true, 1},
		{"on", 0},
		{int64(3), 3},
	}
	for _, tc := range testCases {
		if got := object.Int(tc.in); got != tc.want {
			t.Errorf("Int(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

