package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"playground-flow/internal/event"
	gamedomain "playground-flow/internal/game/domain"
	"playground-flow/internal/object"
	smdomain "playground-flow/internal/storymapping/domain"
	"playground-flow/internal/storymapping/catalog"
	"playground-flow/internal/storytelling/domain"
	"playground-flow/internal/storytelling/gate"
	userdomain "playground-flow/internal/user/domain"
)

// memStoryRepo is an in-memory StoryRepo. Create fails for mapping ids listed in failFor.
type memStoryRepo struct {
	mu      sync.Mutex
	stories []*domain.StoryTelling
	failFor map[int64]bool
	findErr error
}

func (r *memStoryRepo) FindBySecretKey(_ context.Context, secretKey string) (*domain.StoryTelling, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.stories {
		if secretKey != "" && s.SecretKey == secretKey {
			return s, nil
		}
	}
	return nil, nil
}

func (r *memStoryRepo) FindByMappingAndUser(_ context.Context, mappingID int64, userID string) ([]*domain.StoryTelling, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.StoryTelling
	for _, s := range r.stories {
		if s.MappingID == mappingID && s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memStoryRepo) Create(_ context.Context, s *domain.StoryTelling) error {
	if r.failFor[s.MappingID] {
		return errors.New("insert failed")
	}
	if err := s.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stories = append(r.stories, s)
	return nil
}

func (r *memStoryRepo) byMapping(id int64) []*domain.StoryTelling {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.StoryTelling
	for _, s := range r.stories {
		if s.MappingID == id {
			out = append(out, s)
		}
	}
	return out
}

func (r *memStoryRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stories)
}

type denyGate struct{ calls int }

func (g *denyGate) Allow(context.Context, gate.Input) bool {
	g.calls++
	return false
}

func attr(codes ...string) []smdomain.AttributeMapping {
	out := make([]smdomain.AttributeMapping, len(codes))
	for i, c := range codes {
		out[i] = smdomain.Attr(c)
	}
	return out
}

func newCatalog(t *testing.T, mappings ...*smdomain.StoryMapping) *catalog.Catalog {
	t.Helper()
	c := catalog.New(object.NewRegistry(userdomain.Kind, gamedomain.GameKind, gamedomain.EntryKind))
	if err := c.Replace(mappings); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	return c
}

type fixture struct {
	listener *Listener
	manager  *event.Manager
	stories  *memStoryRepo
}

func newFixture(t *testing.T, mappings ...*smdomain.StoryMapping) *fixture {
	t.Helper()
	repo := &memStoryRepo{}
	l := NewListener(newCatalog(t, mappings...), repo, nil, nil, nil)
	n := 0
	l.newID = func() string {
		n++
		return fmt.Sprintf("story-%d", n)
	}
	m := event.NewManager()
	l.Attach(m)
	return &fixture{listener: l, manager: m, stories: repo}
}

// dispatch runs one correlation scope, as the event ingress does per request.
func (f *fixture) dispatch(t *testing.T, target string, events ...*event.Event) error {
	t.Helper()
	ctx := WithCorrelation(context.Background())
	for _, e := range events {
		if err := f.manager.Trigger(ctx, target, e.Name, e.Params); err != nil {
			return err
		}
	}
	return nil
}

func decodeObject(t *testing.T, s *domain.StoryTelling) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal([]byte(s.Object), &out); err != nil {
		t.Fatalf("story object %q: %v", s.Object, err)
	}
	return out
}

func TestTellStoryAfter_LiveSampling(t *testing.T) {
	f := newFixture(t, &smdomain.StoryMapping{
		ID: 1, EventAfterURL: "play.post", Points: 10,
		Objects: []smdomain.ObjectMapping{{Code: "user", Attributes: attr("name")}},
	})
	user := &userdomain.User{ID: "1", Name: "old"}

	err := f.dispatch(t, "game.service", &event.Event{Name: "play.post", Params: map[string]any{"user": user}})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	got := f.stories.byMapping(1)
	if len(got) != 1 {
		t.Fatalf("stories = %d, want 1", len(got))
	}
	want := map[string]any{"user": map[string]any{"name": "old"}}
	if diff := cmp.Diff(want, decodeObject(t, got[0])); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	if got[0].UserID != "1" {
		t.Errorf("UserID = %q, want 1", got[0].UserID)
	}
	if got[0].Points != 10 {
		t.Errorf("Points = %d, want 10", got[0].Points)
	}
}

func TestTellStoryAfter_SkipsObjectsMissingFromEvent(t *testing.T) {
	f := newFixture(t, &smdomain.StoryMapping{
		ID: 1, EventAfterURL: "play.post",
		Objects: []smdomain.ObjectMapping{
			{Code: "user", Attributes: attr("id")},
			{Code: "game", Attributes: attr("title")},
		},
	})
	if err := f.dispatch(t, "*", &event.Event{Name: "play.post", Params: map[string]any{"user": &userdomain.User{ID: "u1"}}}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	got := f.stories.byMapping(1)
	if len(got) != 1 {
		t.Fatalf("stories = %d, want 1", len(got))
	}
	want := map[string]any{"user": map[string]any{"id": "u1"}}
	if diff := cmp.Diff(want, decodeObject(t, got[0])); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestTellStoryBeforeAfter_RecordsDiff(t *testing.T) {
	f := newFixture(t, &smdomain.StoryMapping{
		ID: 4, EventBeforeURL: "updateInfo.pre", EventAfterURL: "updateInfo.post", Points: 5,
		Objects: []smdomain.ObjectMapping{{Code: "user", Attributes: attr("firstname", "lastname")}},
	})
	user := &userdomain.User{ID: "u1", Firstname: "Ann", Lastname: "Lee"}
	data := map[string]any{"firstname": "Anna", "lastname": "Lee"}

	err := f.dispatch(t, "user.service",
		&event.Event{Name: "updateInfo.pre", Params: map[string]any{"user": user, "data": data}},
		&event.Event{Name: "updateInfo.post", Params: map[string]any{"user": user}},
	)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	got := f.stories.byMapping(4)
	if len(got) != 1 {
		t.Fatalf("stories = %d, want 1", len(got))
	}
	want := map[string]any{
		"before": map[string]any{"user": map[string]any{"firstname": "Ann"}},
		"after":  map[string]any{"user": map[string]any{"firstname": "Anna"}},
	}
	if diff := cmp.Diff(want, decodeObject(t, got[0])); diff != "" {
		t.Errorf("diff snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestTellStoryBefore_WithoutCorrelationIsNoop(t *testing.T) {
	f := newFixture(t, &smdomain.StoryMapping{
		ID: 4, EventBeforeURL: "updateInfo.pre", EventAfterURL: "updateInfo.post",
		Objects: []smdomain.ObjectMapping{{Code: "user", Attributes: attr("firstname")}},
	})
	e := &event.Event{Name: "updateInfo.pre", Params: map[string]any{
		"user": &userdomain.User{ID: "u1"},
		"data": map[string]any{"firstname": "Anna"},
	}}
	if err := f.listener.TellStoryBefore(context.Background(), e); err != nil {
		t.Fatalf("TellStoryBefore: %v", err)
	}
	if f.stories.count() != 0 {
		t.Error("before handler must not persist")
	}
}

func TestCorrelation_DoesNotLeakBetweenCycles(t *testing.T) {
	f := newFixture(t, &smdomain.StoryMapping{
		ID: 4, EventBeforeURL: "updateInfo.pre", EventAfterURL: "updateInfo.post",
		Objects: []smdomain.ObjectMapping{{Code: "user", Attributes: attr("firstname")}},
	})
	user := &userdomain.User{ID: "u1", Firstname: "Ann"}

	// First cycle only runs the before hook; its diff must die with the cycle.
	err := f.dispatch(t, "*", &event.Event{Name: "updateInfo.pre", Params: map[string]any{
		"user": user, "data": map[string]any{"firstname": "Anna"},
	}})
	if err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	if err := f.dispatch(t, "*", &event.Event{Name: "updateInfo.post", Params: map[string]any{"user": user}}); err != nil {
		t.Fatalf("second dispatch: %v", err)
	}

	got := f.stories.byMapping(4)
	if len(got) != 1 {
		t.Fatalf("stories = %d, want 1", len(got))
	}
	want := map[string]any{"user": map[string]any{"firstname": "Ann"}}
	if diff := cmp.Diff(want, decodeObject(t, got[0])); diff != "" {
		t.Errorf("second cycle saw a foreign diff (-want +got):\n%s", diff)
	}
}

func TestNewsletter_Idempotence(t *testing.T) {
	mappings := []*smdomain.StoryMapping{
		{ID: 7, EventAfterURL: "updateNewsletter.post", Points: 3},
		{ID: 8, EventAfterURL: "updateNewsletter.post", Points: 1},
	}
	testCases := []struct {
		name   string
		before int
		data   any
		want   int
	}{
		{"transition 0 to 1", 0, "1", 1},
		{"already opted in", 1, "1", 0},
		{"opt out", 0, "0", 0},
		{"json number", 0, float64(1), 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, mappings...)
			user := &userdomain.User{ID: "u1", Email: "u1@example.com", Optin: tc.before}
			err := f.dispatch(t, "*",
				&event.Event{Name: "updateNewsletter.pre", Params: map[string]any{"user": user, "data": map[string]any{"optin": tc.data}}},
				&event.Event{Name: "updateNewsletter.post", Params: map[string]any{"user": user}},
			)
			if err != nil {
				t.Fatalf("dispatch: %v", err)
			}
			for _, id := range []int64{7, 8} {
				if got := len(f.stories.byMapping(id)); got != tc.want {
					t.Errorf("mapping %d: stories = %d, want %d", id, got, tc.want)
				}
			}
		})
	}
}

func TestNewsletter_PriorStoryBlocksSecondRecord(t *testing.T) {
	f := newFixture(t, &smdomain.StoryMapping{ID: 7, EventAfterURL: "updateNewsletter.post"})
	user := &userdomain.User{ID: "u1", Email: "u1@example.com"}
	cycle := func() {
		err := f.dispatch(t, "*",
			&event.Event{Name: "updateNewsletter.pre", Params: map[string]any{"user": user, "data": map[string]any{"optin": "1"}}},
			&event.Event{Name: "updateNewsletter.post", Params: map[string]any{"user": user}},
		)
		if err != nil {
			t.Fatalf("dispatch: %v", err)
		}
	}
	cycle()
	cycle()

	got := f.stories.byMapping(7)
	if len(got) != 1 {
		t.Fatalf("stories = %d, want 1", len(got))
	}
	want := map[string]any{"user": map[string]any{"id": "u1", "email": "u1@example.com"}}
	if diff := cmp.Diff(want, decodeObject(t, got[0])); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestNewsletter_PartnerChannelIsSeparate(t *testing.T) {
	f := newFixture(t,
		&smdomain.StoryMapping{ID: 7, EventAfterURL: "updateNewsletter.post"},
		&smdomain.StoryMapping{ID: 9, EventAfterURL: "updateNewsletterPartner.post"},
	)
	user := &userdomain.User{ID: "u1", Optin: 1}
	err := f.dispatch(t, "*",
		&event.Event{Name: "updateNewsletterPartner.pre", Params: map[string]any{"user": user, "data": map[string]any{"optinPartner": "1"}}},
		&event.Event{Name: "updateNewsletterPartner.post", Params: map[string]any{"user": user}},
		&event.Event{Name: "updateNewsletter.post", Params: map[string]any{"user": user}},
	)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := len(f.stories.byMapping(9)); got != 1 {
		t.Errorf("partner stories = %d, want 1", got)
	}
	if got := len(f.stories.byMapping(7)); got != 0 {
		t.Errorf("newsletter stories = %d, want 0 (not armed)", got)
	}
}

func TestNewsletter_GateDecides(t *testing.T) {
	repo := &memStoryRepo{}
	g := &denyGate{}
	l := NewListener(newCatalog(t, &smdomain.StoryMapping{ID: 7, EventAfterURL: "updateNewsletter.post"}), repo, g, nil, nil)
	m := event.NewManager()
	l.Attach(m)

	ctx := WithCorrelation(context.Background())
	user := &userdomain.User{ID: "u1"}
	if err := m.Trigger(ctx, "*", "updateNewsletter.pre", map[string]any{"user": user, "data": map[string]any{"optin": "1"}}); err != nil {
		t.Fatalf("pre: %v", err)
	}
	if err := m.Trigger(ctx, "*", "updateNewsletter.post", map[string]any{"user": user}); err != nil {
		t.Fatalf("post: %v", err)
	}
	if g.calls != 1 {
		t.Errorf("gate calls = %d, want 1", g.calls)
	}
	if repo.count() != 0 {
		t.Errorf("stories = %d, want 0 when the gate denies", repo.count())
	}
}

func TestTellStoryAfter_SecretKeyCreditsSponsor(t *testing.T) {
	f := newFixture(t, &smdomain.StoryMapping{
		ID: 2, EventAfterURL: "sendShareMail.post",
		Objects: []smdomain.ObjectMapping{{Code: "user", Attributes: attr("id")}},
	})
	f.stories.stories = append(f.stories.stories, &domain.StoryTelling{ID: "s0", MappingID: 99, UserID: "sponsor", Object: "{}", SecretKey: "k-1"})

	err := f.dispatch(t, "*", &event.Event{Name: "sendShareMail.post", Params: map[string]any{
		"user": &userdomain.User{ID: "friend"}, "secretKey": "k-1",
	}})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	got := f.stories.byMapping(2)
	if len(got) != 1 {
		t.Fatalf("stories = %d, want 1", len(got))
	}
	if got[0].UserID != "sponsor" {
		t.Errorf("UserID = %q, want sponsor", got[0].UserID)
	}
	if got[0].SecretKey != "k-1" {
		t.Errorf("SecretKey = %q, want k-1", got[0].SecretKey)
	}
}

func TestTellStoryAfter_UnknownSecretKeyCreditsActingUser(t *testing.T) {
	f := newFixture(t, &smdomain.StoryMapping{ID: 2, EventAfterURL: "sendShareMail.post"})
	err := f.dispatch(t, "*", &event.Event{Name: "sendShareMail.post", Params: map[string]any{
		"user": &userdomain.User{ID: "friend"}, "secretKey": "nope",
	}})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	got := f.stories.byMapping(2)
	if len(got) != 1 || got[0].UserID != "friend" {
		t.Fatalf("stories = %+v, want one crediting friend", got)
	}
}

func TestTellStoryAfter_LookupErrorIsReturned(t *testing.T) {
	f := newFixture(t, &smdomain.StoryMapping{ID: 2, EventAfterURL: "sendShareMail.post"})
	f.stories.findErr = errors.New("db down")
	err := f.dispatch(t, "*", &event.Event{Name: "sendShareMail.post", Params: map[string]any{
		"user": &userdomain.User{ID: "friend"}, "secretKey": "k",
	}})
	if err == nil || !strings.Contains(err.Error(), "db down") {
		t.Fatalf("err = %v, want lookup failure", err)
	}
}

func TestTellStoryAfter_WithoutSubjectRecordsNothing(t *testing.T) {
	f := newFixture(t, &smdomain.StoryMapping{ID: 2, EventAfterURL: "play.post"})
	testCases := []struct {
		name   string
		params map[string]any
	}{
		{"no user", map[string]any{}},
		{"user without id", map[string]any{"user": &userdomain.User{Name: "guest"}}},
		{"unknown secret key and no user", map[string]any{"secretKey": "nope"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := f.dispatch(t, "*", &event.Event{Name: "play.post", Params: tc.params}); err != nil {
				t.Fatalf("dispatch: %v", err)
			}
			if f.stories.count() != 0 {
				t.Errorf("stories = %d, want 0", f.stories.count())
			}
		})
	}
}

func TestTellStoryAfter_SecretKeyWithoutUserCreditsSponsor(t *testing.T) {
	f := newFixture(t, &smdomain.StoryMapping{ID: 2, EventAfterURL: "sendShareMail.post"})
	f.stories.stories = append(f.stories.stories, &domain.StoryTelling{ID: "s0", MappingID: 99, UserID: "sponsor", Object: "{}", SecretKey: "k-3"})

	if err := f.dispatch(t, "*", &event.Event{Name: "sendShareMail.post", Params: map[string]any{"secretKey": "k-3"}}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	got := f.stories.byMapping(2)
	if len(got) != 1 || got[0].UserID != "sponsor" {
		t.Fatalf("stories = %+v, want one crediting sponsor", got)
	}
}

func TestNewsletter_UserWithoutIDIsIgnored(t *testing.T) {
	f := newFixture(t, &smdomain.StoryMapping{ID: 7, EventAfterURL: "updateNewsletter.post"})
	user := &userdomain.User{Email: "anon@example.com"}
	err := f.dispatch(t, "*",
		&event.Event{Name: "updateNewsletter.pre", Params: map[string]any{"user": user, "data": map[string]any{"optin": "1"}}},
		&event.Event{Name: "updateNewsletter.post", Params: map[string]any{"user": user}},
	)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if f.stories.count() != 0 {
		t.Errorf("stories = %d, want 0", f.stories.count())
	}
}

func TestSponsorAfter_FanOut(t *testing.T) {
	f := newFixture(t,
		&smdomain.StoryMapping{ID: 11, EventAfterURL: "sponsor.post", Points: 20},
		&smdomain.StoryMapping{ID: 12, EventAfterURL: "sponsor.post", Points: 5},
		&smdomain.StoryMapping{ID: 13, EventAfterURL: "play.post"},
	)
	f.stories.stories = append(f.stories.stories, &domain.StoryTelling{ID: "s0", MappingID: 13, UserID: "sponsor", Object: "{}", SecretKey: "k-2"})
	newUser := &userdomain.User{ID: "new", Email: "new@example.com"}

	if err := f.dispatch(t, "*", &event.Event{Name: "sponsor.post", Params: map[string]any{"user": newUser, "secretKey": "k-2"}}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	want := map[string]any{"user": map[string]any{"id": "new", "email": "new@example.com"}}
	for _, id := range []int64{11, 12} {
		got := f.stories.byMapping(id)
		if len(got) != 1 {
			t.Fatalf("mapping %d: stories = %d, want 1", id, len(got))
		}
		if got[0].UserID != "sponsor" {
			t.Errorf("mapping %d: UserID = %q, want sponsor", id, got[0].UserID)
		}
		if diff := cmp.Diff(want, decodeObject(t, got[0])); diff != "" {
			t.Errorf("mapping %d: snapshot mismatch (-want +got):\n%s", id, diff)
		}
	}
}

func TestSponsorAfter_NoSponsorIsNoop(t *testing.T) {
	f := newFixture(t, &smdomain.StoryMapping{ID: 11, EventAfterURL: "sponsor.post"})
	for _, key := range []string{"", "unknown"} {
		if err := f.dispatch(t, "*", &event.Event{Name: "sponsor.post", Params: map[string]any{
			"user": &userdomain.User{ID: "new"}, "secretKey": key,
		}}); err != nil {
			t.Fatalf("dispatch(%q): %v", key, err)
		}
	}
	if f.stories.count() != 0 {
		t.Errorf("stories = %d, want 0", f.stories.count())
	}
}

func TestRegisterPost_OnlyFromUserService(t *testing.T) {
	f := newFixture(t, &smdomain.StoryMapping{ID: 3, EventAfterURL: "register.post"})
	params := map[string]any{"user": &userdomain.User{ID: "u1"}}
	if err := f.dispatch(t, "game.service", &event.Event{Name: "register.post", Params: params}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if f.stories.count() != 0 {
		t.Fatalf("register.post from another target recorded %d stories", f.stories.count())
	}
	if err := f.dispatch(t, "user.service", &event.Event{Name: "register.post", Params: params}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if f.stories.count() != 1 {
		t.Errorf("stories = %d, want 1", f.stories.count())
	}
}

func TestRecord_TriggersStoryEvent(t *testing.T) {
	f := newFixture(t, &smdomain.StoryMapping{ID: 5, EventAfterURL: "play.post"})
	var got *domain.StoryTelling
	f.manager.Attach(nil, "story.5", func(_ context.Context, e *event.Event) error {
		got, _ = e.Param(ParamStoryTelling).(*domain.StoryTelling)
		if e.Target != Target {
			t.Errorf("Target = %q, want %q", e.Target, Target)
		}
		return nil
	}, 0)

	if err := f.dispatch(t, "*", &event.Event{Name: "play.post", Params: map[string]any{"user": &userdomain.User{ID: "u1"}}}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got == nil {
		t.Fatal("story.5 was not triggered")
	}
	if got.MappingID != 5 || got.UserID != "u1" {
		t.Errorf("storyTelling = %+v", got)
	}
}

func TestTellStoryAfter_IsolatesMappingFailures(t *testing.T) {
	f := newFixture(t,
		&smdomain.StoryMapping{ID: 1, EventAfterURL: "play.post"},
		&smdomain.StoryMapping{ID: 2, EventAfterURL: "play.post"},
		&smdomain.StoryMapping{ID: 3, EventAfterURL: "play.post"},
	)
	f.stories.failFor = map[int64]bool{2: true}

	err := f.dispatch(t, "*", &event.Event{Name: "play.post", Params: map[string]any{"user": &userdomain.User{ID: "u1"}}})
	if err == nil {
		t.Fatal("dispatch should report the failed mapping")
	}
	if !strings.Contains(err.Error(), "story mapping 2") {
		t.Errorf("err = %v, want mapping 2 named", err)
	}
	if len(f.stories.byMapping(1)) != 1 || len(f.stories.byMapping(3)) != 1 {
		t.Errorf("healthy mappings were not recorded: %d stories", f.stories.count())
	}
}

func TestDetach_RemovesOnlyOwnSubscriptions(t *testing.T) {
	f := newFixture(t)
	other := f.manager.Attach(nil, "play.post", func(context.Context, *event.Event) error { return nil }, 0)

	if got := f.manager.Listeners("play.post"); got != 2 {
		t.Fatalf("play.post listeners = %d, want 2", got)
	}
	if n := f.listener.Detach(); n != len(subscriptions) {
		t.Errorf("Detach removed %d, want %d", n, len(subscriptions))
	}
	if got := f.manager.Listeners("play.post"); got != 1 {
		t.Errorf("play.post listeners = %d, want 1", got)
	}
	for _, name := range Events() {
		if name == "play.post" {
			continue
		}
		if got := f.manager.Listeners(name); got != 0 {
			t.Errorf("%s listeners = %d, want 0", name, got)
		}
	}
	if !f.manager.Detach(other) {
		t.Error("unrelated subscription should still be attached")
	}
	if n := f.listener.Detach(); n != 0 {
		t.Errorf("second Detach removed %d, want 0", n)
	}
}

func TestAttach_PriorityOrdering(t *testing.T) {
	f := newFixture(t, &smdomain.StoryMapping{ID: 9, EventAfterURL: "updateNewsletterPartner.post"})
	var order []string
	f.manager.Attach(nil, "updateNewsletterPartner.pre", func(ctx context.Context, e *event.Event) error {
		corr, _ := CorrelationFrom(ctx)
		if corr.Armed("updateNewsletterPartner.post") {
			order = append(order, "armed")
		} else {
			order = append(order, "unarmed")
		}
		return nil
	}, 200)

	err := f.dispatch(t, "*", &event.Event{Name: "updateNewsletterPartner.pre", Params: map[string]any{
		"user": &userdomain.User{ID: "u1"}, "data": map[string]any{"optinPartner": "1"},
	}})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if diff := cmp.Diff([]string{"armed"}, order); diff != "" {
		t.Errorf("listener at 201 should run before 200 (-want +got):\n%s", diff)
	}
}
