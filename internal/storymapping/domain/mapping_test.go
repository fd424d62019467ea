package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"playground-flow/internal/object"
	userdomain "playground-flow/internal/user/domain"
)

func TestStoryMapping_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		m       StoryMapping
		wantErr error
	}{
		{"valid", StoryMapping{ID: 1, EventAfterURL: "play.post"}, nil},
		{"missing after", StoryMapping{ID: 1, EventBeforeURL: "updateInfo.pre"}, ErrAfterEventRequired},
		{"zero id", StoryMapping{EventAfterURL: "play.post"}, ErrInvalidID},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.m.Validate()
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Validate error = %v, want %v", err, tc.wantErr)
			}
		})
	}

	empty := StoryMapping{ID: 2, EventAfterURL: "play.post", Objects: []ObjectMapping{{Code: "user", Attributes: []AttributeMapping{Attr("")}}}}
	if err := empty.Validate(); err == nil {
		t.Error("empty attribute code should fail")
	}
	noKey := StoryMapping{ID: 3, EventAfterURL: "play.post", Client: &ClientStory{}}
	if err := noKey.Validate(); err == nil {
		t.Error("client story without key should fail")
	}
}

func TestStoryMapping_Bind(t *testing.T) {
	reg := object.NewRegistry(userdomain.Kind)
	m := StoryMapping{ID: 1, EventAfterURL: "updateInfo.post", Objects: []ObjectMapping{
		{Code: "user", Attributes: []AttributeMapping{Attr("firstname")}},
	}}
	if m.Objects[0].Attributes[0].Bound() {
		t.Fatal("attribute should start unbound")
	}
	if _, ok := m.Objects[0].Attributes[0].Read(&userdomain.User{}); ok {
		t.Error("unbound Read should report ok=false")
	}
	if err := m.Bind(reg); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	v, ok := m.Objects[0].Attributes[0].Read(&userdomain.User{Firstname: "Ada"})
	if !ok || v != "Ada" {
		t.Errorf("Read = (%v, %v), want (Ada, true)", v, ok)
	}

	bad := StoryMapping{ID: 2, EventAfterURL: "x", Objects: []ObjectMapping{
		{Code: "user", Attributes: []AttributeMapping{Attr("shoeSize")}},
	}}
	if err := bad.Bind(reg); !errors.Is(err, object.ErrUnknownAttribute) {
		t.Errorf("Bind error = %v, want ErrUnknownAttribute", err)
	}
}

func TestAttributeMapping_Encoding(t *testing.T) {
	src := `
id: 4
eventAfterUrl: play.post
objects:
  - code: user
    attributes: [email, {code: username}]
`
	var m StoryMapping
	if err := yaml.Unmarshal([]byte(src), &m); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	want := []ObjectMapping{{Code: "user", Attributes: []AttributeMapping{Attr("email"), Attr("username")}}}
	if diff := cmp.Diff(want, m.Objects, cmp.Comparer(func(a, b AttributeMapping) bool { return a.Code == b.Code })); diff != "" {
		t.Errorf("objects (-want +got):\n%s", diff)
	}

	b, err := json.Marshal(m.Objects)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if got := string(b); got != `[{"code":"user","attributes":["email","username"]}]` {
		t.Errorf("json = %s", got)
	}
}

func TestStoryMapping_StoryEvent(t *testing.T) {
	m := StoryMapping{ID: 42}
	if got := m.StoryEvent(); got != "story.42" {
		t.Errorf("StoryEvent = %q", got)
	}
}
