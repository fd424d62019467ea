// Package service records stories for host application events.
//
// The Listener subscribes to the host's event manager. Before handlers capture what an action
// is about to change into the request's Correlation; after handlers persist one story per
// matching mapping and trigger "story.<mappingId>" on the same manager.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"playground-flow/internal/event"
	"playground-flow/internal/object"
	smdomain "playground-flow/internal/storymapping/domain"
	"playground-flow/internal/storytelling/domain"
	"playground-flow/internal/storytelling/gate"
	"playground-flow/internal/telemetry"
	telemetrydomain "playground-flow/internal/telemetry/domain"
	userdomain "playground-flow/internal/user/domain"
)

// Target identifies the listener as the source of derived story events.
const Target = "playgroundflow.storytelling"

// Event parameter names read by the handlers.
const (
	ParamUser         = "user"
	ParamData         = "data"
	ParamSecretKey    = "secretKey"
	ParamStoryTelling = "storyTelling"
)

// ErrNoCorrelation is logged when a before handler runs outside a correlation scope.
var ErrNoCorrelation = errors.New("storytelling: no correlation scope in context")

// MappingFinder looks up active story mappings by event name.
type MappingFinder interface {
	FindByEventAfter(name string) []*smdomain.StoryMapping
	FindByEventBefore(name string) []*smdomain.StoryMapping
}

// StoryRepo is the story persistence needed by the listener.
type StoryRepo interface {
	FindBySecretKey(ctx context.Context, secretKey string) (*domain.StoryTelling, error)
	FindByMappingAndUser(ctx context.Context, mappingID int64, userID string) ([]*domain.StoryTelling, error)
	Create(ctx context.Context, s *domain.StoryTelling) error
}

// OptinGate decides whether a newsletter opt-in earns a story.
type OptinGate interface {
	Allow(ctx context.Context, in gate.Input) bool
}

// Triggerer dispatches derived events.
type Triggerer interface {
	Trigger(ctx context.Context, target, name string, params map[string]any) error
}

// Listener records stories. It keeps no per-request state; see Correlation.
type Listener struct {
	mappings MappingFinder
	stories  StoryRepo
	gate     OptinGate
	emitter  telemetry.EventEmitter
	logger   *zap.Logger

	mu      sync.Mutex
	manager *event.Manager
	subs    []*event.Subscription

	now   func() time.Time
	newID func() string
}

// NewListener returns a Listener. gate, emitter and logger may be nil: opt-ins then use the
// built-in rule, telemetry is skipped and logs are discarded.
func NewListener(mappings MappingFinder, stories StoryRepo, optin OptinGate, emitter telemetry.EventEmitter, logger *zap.Logger) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		mappings: mappings,
		stories:  stories,
		gate:     optin,
		emitter:  emitter,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.New().String() },
	}
}

// TellStoryBefore captures, for every mapping whose before event is e.Name, the monitored
// attributes that the request data is about to change. Nothing is persisted.
func (l *Listener) TellStoryBefore(ctx context.Context, e *event.Event) error {
	corr, ok := CorrelationFrom(ctx)
	if !ok {
		l.logger.Warn("before event outside a dispatch cycle", zap.String("event", e.Name), zap.Error(ErrNoCorrelation))
		return nil
	}
	corr.reset(e.Name)

	data := dataParam(e)
	var diff *domain.Diff
	for _, m := range l.mappings.FindByEventBefore(e.Name) {
		for _, om := range m.Objects {
			instance := e.Param(om.Code)
			for _, am := range om.Attributes {
				current, ok := am.Read(instance)
				if !ok {
					continue
				}
				requested, present := data[am.Code]
				if !present || requested == nil || object.Equal(current, requested) {
					continue
				}
				if diff == nil {
					diff = domain.NewDiff()
				}
				diff.Record(om.Code, am.Code, current, requested)
			}
		}
	}
	if !diff.Empty() {
		corr.setDiff(e.Name, diff)
	}
	return nil
}

// TellStoryAfter records one story per mapping whose after event is e.Name. The snapshot is
// the diff captured by the mapping's before event when there is one, else the live attribute
// values. A secret key matching an earlier story credits that story's user instead of the
// acting user. Every mapping is attempted; failures are combined.
func (l *Listener) TellStoryAfter(ctx context.Context, e *event.Event) error {
	secretKey := e.StringParam(ParamSecretKey)
	userID := ""
	if secretKey != "" {
		sponsor, err := l.stories.FindBySecretKey(ctx, secretKey)
		if err != nil {
			return fmt.Errorf("find story by secret key: %w", err)
		}
		if sponsor != nil {
			userID = sponsor.UserID
		}
	}
	if userID == "" {
		u := userParam(e)
		if err := u.Validate(); err != nil {
			l.logger.Warn("after event has no story subject", zap.String("event", e.Name), zap.Error(err))
			return nil
		}
		userID = u.ID
	}

	corr, _ := CorrelationFrom(ctx)
	var errs error
	consumed := make(map[string]bool)
	for _, m := range l.mappings.FindByEventAfter(e.Name) {
		var snapshot any
		if m.EventBeforeURL != "" {
			if d := corr.Diff(m.EventBeforeURL); !d.Empty() {
				snapshot = d
				consumed[m.EventBeforeURL] = true
			}
		}
		if snapshot == nil {
			snapshot = sample(m, e)
		}
		errs = multierr.Append(errs, l.record(ctx, e.Name, m, userID, snapshot, secretKey))
	}
	for name := range consumed {
		corr.reset(name)
	}
	return errs
}

// SponsorAfter credits the sponsor owning the event's secret key with one story per mapping
// whose after event is e.Name. The snapshot identifies the newly registered user.
func (l *Listener) SponsorAfter(ctx context.Context, e *event.Event) error {
	secretKey := e.StringParam(ParamSecretKey)
	if secretKey == "" {
		return nil
	}
	sponsor, err := l.stories.FindBySecretKey(ctx, secretKey)
	if err != nil {
		return fmt.Errorf("find sponsor story: %w", err)
	}
	if sponsor == nil {
		return nil
	}
	snapshot := userSnapshot(userParam(e))
	var errs error
	for _, m := range l.mappings.FindByEventAfter(e.Name) {
		errs = multierr.Append(errs, l.record(ctx, e.Name, m, sponsor.UserID, snapshot, ""))
	}
	return errs
}

// newsletterChannel links an opt-in before event to its user flag and after event.
type newsletterChannel struct {
	field string
	after string
}

var newsletterChannels = map[string]newsletterChannel{
	"updateNewsletter.pre":        {field: "optin", after: "updateNewsletter.post"},
	"updateNewsletterPartner.pre": {field: "optinPartner", after: "updateNewsletterPartner.post"},
}

// NewsletterBefore arms the channel's after event when the opt-in gate allows the change:
// by default, the flag goes from unset to set and the user has no story for the channel yet.
func (l *Listener) NewsletterBefore(ctx context.Context, e *event.Event) error {
	ch, ok := newsletterChannels[e.Name]
	if !ok {
		return nil
	}
	corr, ok := CorrelationFrom(ctx)
	if !ok {
		l.logger.Warn("before event outside a dispatch cycle", zap.String("event", e.Name), zap.Error(ErrNoCorrelation))
		return nil
	}
	corr.disarm(ch.after)
	user := userParam(e)
	if err := user.Validate(); err != nil {
		l.logger.Warn("opt-in without a user", zap.String("event", e.Name), zap.Error(err))
		return nil
	}

	prior := 0
	for _, m := range l.mappings.FindByEventAfter(ch.after) {
		stories, err := l.stories.FindByMappingAndUser(ctx, m.ID, user.ID)
		if err != nil {
			return fmt.Errorf("count stories of mapping %d: %w", m.ID, err)
		}
		prior += len(stories)
	}

	in := gate.Input{
		Channel:      ch.after,
		Before:       user.Flag(ch.field),
		Requested:    object.Int(dataParam(e)[ch.field]),
		PriorStories: prior,
	}
	allowed := in.Allow()
	if l.gate != nil {
		allowed = l.gate.Allow(ctx, in)
	}
	if allowed {
		corr.arm(ch.after)
	}
	return nil
}

// NewsletterAfter records one story per mapping of e.Name when NewsletterBefore armed it,
// then disarms the channel.
func (l *Listener) NewsletterAfter(ctx context.Context, e *event.Event) error {
	corr, _ := CorrelationFrom(ctx)
	if !corr.Armed(e.Name) {
		return nil
	}
	defer corr.disarm(e.Name)

	user := userParam(e)
	if err := user.Validate(); err != nil {
		return nil
	}
	snapshot := userSnapshot(user)
	var errs error
	for _, m := range l.mappings.FindByEventAfter(e.Name) {
		errs = multierr.Append(errs, l.record(ctx, e.Name, m, user.ID, snapshot, ""))
	}
	return errs
}

// record persists one story, triggers its derived event and emits telemetry.
func (l *Listener) record(ctx context.Context, eventName string, m *smdomain.StoryMapping, userID string, snapshot any, secretKey string) error {
	obj, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("story mapping %d: encode snapshot: %w", m.ID, err)
	}
	st := &domain.StoryTelling{
		ID:        l.newID(),
		MappingID: m.ID,
		UserID:    userID,
		Object:    string(obj),
		Points:    m.Points,
		SecretKey: secretKey,
		CreatedAt: l.now(),
	}
	if err := l.stories.Create(ctx, st); err != nil {
		return fmt.Errorf("story mapping %d: create story: %w", m.ID, err)
	}
	l.logger.Info("story recorded",
		zap.String("story_id", st.ID),
		zap.Int64("mapping_id", m.ID),
		zap.String("event", eventName),
		zap.String("user_id", userID),
		zap.Int("points", st.Points))

	if mgr := l.currentManager(); mgr != nil {
		if err := mgr.Trigger(ctx, Target, m.StoryEvent(), map[string]any{ParamStoryTelling: st}); err != nil {
			return fmt.Errorf("story mapping %d: %w", m.ID, err)
		}
	}

	telemetry.EmitAsync(l.emitter, l.logger, &telemetrydomain.StoryEvent{
		StoryID:   st.ID,
		MappingID: st.MappingID,
		UserID:    st.UserID,
		EventName: eventName,
		Points:    st.Points,
		Object:    json.RawMessage(obj),
		CreatedAt: st.CreatedAt,
	})
	return nil
}

func (l *Listener) currentManager() *event.Manager {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.manager
}

// sample reads the live value of every mapped attribute from the event's objects.
func sample(m *smdomain.StoryMapping, e *event.Event) domain.Snapshot {
	snap := domain.Snapshot{}
	for _, om := range m.Objects {
		instance := e.Param(om.Code)
		for _, am := range om.Attributes {
			if v, ok := am.Read(instance); ok {
				snap.Set(om.Code, am.Code, v)
			}
		}
	}
	return snap
}

func userSnapshot(u *userdomain.User) domain.Snapshot {
	snap := domain.Snapshot{}
	if u != nil {
		snap.Set("user", "id", u.ID)
		snap.Set("user", "email", u.Email)
	}
	return snap
}

func userParam(e *event.Event) *userdomain.User {
	u, _ := e.Param(ParamUser).(*userdomain.User)
	return u
}

func dataParam(e *event.Event) map[string]any {
	switch d := e.Param(ParamData).(type) {
	case map[string]any:
		return d
	case map[string]string:
		out := make(map[string]any, len(d))
		for k, v := range d {
			out[k] = v
		}
		return out
	}
	return nil
}
