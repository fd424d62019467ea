// Package client tracks a visitor's login state and story conditions from inside a browser
// page and reports page views and stories to the tracking API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	smdomain "playground-flow/internal/storymapping/domain"
	"playground-flow/internal/tracking/domain"
)

// Cookie names.
const (
	CookieLogin     = "login"
	CookieLogoutTry = "logout-try"
	CookieLoginTry  = "login-try"
	CookieAuthent   = "authent"
	CookieLastSync  = "last-sync"
	CookiePrevURL   = "prev-url"
	CookieUID       = "pg-uid"
)

// Defaults for Config.
const (
	DefaultAuthentTTL   = 24 * time.Hour
	DefaultFetchTimeout = 5 * time.Second
)

// MaxAuthentBytes is the largest encoded authent cookie the session writes. Browsers cap a
// cookie, name and attributes included, at about 4KB.
const MaxAuthentBytes = 3800

// CookieJar reads and writes the visitor's cookies.
type CookieJar interface {
	Cookie(name string) (string, bool)
	SetCookie(name, value string) error
	EraseCookie(name string) error
}

// Page inspects the current document.
type Page interface {
	// URL returns the current location.
	URL(ctx context.Context) (string, error)
	// HasXPath reports whether xpath selects at least one node.
	HasXPath(ctx context.Context, xpath string) (bool, error)
	// ValueAt returns the value (form fields) or text of the first node selected by xpath.
	ValueAt(ctx context.Context, xpath string) (string, bool, error)
}

// Backend fetches session data from the tracking API.
type Backend interface {
	Connect(ctx context.Context, login string) (*domain.SessionData, error)
}

// Sender posts beacons to the tracking API.
type Sender interface {
	Send(ctx context.Context, p *domain.Payload) error
}

// Config tunes a Session.
type Config struct {
	// APIKey is copied into every beacon.
	APIKey string
	// AuthentTTL is how long cached session data is reused. Zero means DefaultAuthentTTL.
	AuthentTTL time.Duration
	// FetchTimeout bounds the session data fetch. Zero means DefaultFetchTimeout.
	FetchTimeout time.Duration
	Logger       *zap.Logger
}

// Session is one visitor on one page. It is not safe for concurrent use.
type Session struct {
	cookies CookieJar
	page    Page
	backend Backend
	sender  Sender
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time

	id      string
	uid     string
	prevURL string
	data    *domain.SessionData
}

// NewSession returns a Session over the given collaborators.
func NewSession(cookies CookieJar, page Page, backend Backend, sender Sender, cfg Config) *Session {
	if cfg.AuthentTTL <= 0 {
		cfg.AuthentTTL = DefaultAuthentTTL
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		cookies: cookies,
		page:    page,
		backend: backend,
		sender:  sender,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		data:    &domain.SessionData{},
	}
}

// Data returns the current session data.
func (s *Session) Data() *domain.SessionData { return s.data }

// UID returns the anonymous browser id.
func (s *Session) UID() string { return s.uid }

// PrevURL returns the location recorded by the previous page's Quit.
func (s *Session) PrevURL() string { return s.prevURL }

// Init loads session data and reconciles the login state. Cached data younger than
// AuthentTTL is reused; otherwise it is fetched. A failed fetch leaves the visitor logged out
// with empty data until the next Init.
func (s *Session) Init(ctx context.Context) error {
	s.ensureUID()
	s.prevURL, _ = s.cookies.Cookie(CookiePrevURL)

	if data, ok := s.cachedData(); ok {
		s.data = data
	} else if err := s.loadAuthent(ctx); err != nil {
		s.logger.Warn("session data unavailable, continuing logged out", zap.Error(err))
		s.data = &domain.SessionData{}
		s.Logout()
	}
	return s.CheckUser(ctx)
}

func (s *Session) ensureUID() {
	if uid, ok := s.cookies.Cookie(CookieUID); ok && uid != "" {
		s.uid = uid
		return
	}
	s.uid = uuid.New().String()
	s.setCookie(CookieUID, s.uid)
}

func (s *Session) cachedData() (*domain.SessionData, bool) {
	raw, ok := s.cookies.Cookie(CookieAuthent)
	if !ok || raw == "" {
		return nil, false
	}
	last, ok := s.cookies.Cookie(CookieLastSync)
	if !ok {
		return nil, false
	}
	ms, err := strconv.ParseInt(last, 10, 64)
	if err != nil || s.now().Sub(time.UnixMilli(ms)) > s.cfg.AuthentTTL {
		return nil, false
	}
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		return nil, false
	}
	var data domain.SessionData
	if err := json.Unmarshal([]byte(decoded), &data); err != nil {
		return nil, false
	}
	return &data, true
}

func (s *Session) loadAuthent(ctx context.Context) error {
	if s.backend == nil {
		return errors.New("no backend configured")
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	login, _ := s.cookies.Cookie(CookieLogin)
	data, err := s.backend.Connect(ctx, login)
	if err != nil {
		return err
	}
	if data == nil {
		data = &domain.SessionData{}
	}
	s.data = data
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	// Cookie values cannot hold raw JSON punctuation.
	encoded := url.QueryEscape(string(raw))
	if len(encoded) > MaxAuthentBytes {
		// Browsers drop oversized cookies silently; keep the data for this page only.
		s.logger.Warn("session data too large to cache, refetching on every page",
			zap.Int("bytes", len(encoded)), zap.Int("limit", MaxAuthentBytes))
		s.eraseCookie(CookieAuthent)
		s.eraseCookie(CookieLastSync)
		return nil
	}
	s.setCookie(CookieLastSync, strconv.FormatInt(s.now().UnixMilli(), 10))
	s.setCookie(CookieAuthent, encoded)
	return nil
}

// IsLogged reports whether the visitor is logged in, reading the login cookie when the
// session has no login yet.
func (s *Session) IsLogged() bool {
	if s.id == "" {
		s.id, _ = s.cookies.Cookie(CookieLogin)
	}
	return s.id != ""
}

// CheckUser settles an attempted login or logout from the previous page, then sends a page
// view beacon.
func (s *Session) CheckUser(ctx context.Context) error {
	logoutTry := s.hasCookie(CookieLogoutTry)
	loginTry, hasLoginTry := s.cookies.Cookie(CookieLoginTry)
	hasLoginTry = hasLoginTry && loginTry != ""

	switch logged := s.IsLogged(); {
	case logged && logoutTry:
		if s.storyAfterMatches(ctx, domain.StoryLogout) {
			s.Logout()
		}
	case !logged && hasLoginTry:
		if s.storyAfterMatches(ctx, domain.StoryLogin) {
			s.Login(loginTry)
		}
	case !logged && s.hasCookie(CookieLogin):
		login, _ := s.cookies.Cookie(CookieLogin)
		s.Login(login)
	case logged:
		s.Logout()
	}

	s.eraseCookie(CookieLogoutTry)
	s.eraseCookie(CookieLoginTry)

	href, err := s.page.URL(ctx)
	if err != nil {
		return err
	}
	if s.sender == nil {
		return nil
	}
	return s.sender.Send(ctx, s.Story(ctx, href, "", nil))
}

func (s *Session) storyAfterMatches(ctx context.Context, key string) bool {
	st := s.data.Story(key)
	return st != nil && st.Events.After != nil && s.CheckStory(ctx, st.Events.After)
}

func (s *Session) storyBeforeMatches(ctx context.Context, key string) (*smdomain.ClientStory, bool) {
	st := s.data.Story(key)
	if st == nil || st.Events.Before == nil {
		return nil, false
	}
	return st, s.CheckStory(ctx, st.Events.Before)
}

// Login records login as the visitor's identity when it is non-empty and returns the
// session data id.
func (s *Session) Login(login string) string {
	if login != "" {
		s.id = login
		s.setCookie(CookieLogin, login)
	}
	return s.data.ID
}

// Logout forgets the visitor's identity.
func (s *Session) Logout() {
	s.eraseCookie(CookieLogin)
	s.id = ""
}

// Quit runs when the visitor leaves the page. It records the location and flags a login or
// logout attempt for the next page's CheckUser.
func (s *Session) Quit(ctx context.Context) error {
	href, err := s.page.URL(ctx)
	if err != nil {
		return err
	}
	s.setCookie(CookiePrevURL, href)

	if s.IsLogged() {
		if _, ok := s.storyBeforeMatches(ctx, domain.StoryLogout); ok {
			s.setCookie(CookieLogoutTry, "true")
		}
		return nil
	}
	st, ok := s.storyBeforeMatches(ctx, domain.StoryLogin)
	if !ok {
		return nil
	}
	p := s.Story(ctx, href, domain.StoryLogin, &st.Object)
	if p.Objects != nil && p.Objects.Properties != nil && p.Objects.Properties.Value != "" {
		s.setCookie(CookieLoginTry, p.Objects.Properties.Value)
	}
	return nil
}

// CheckStory evaluates a story condition against the page: the url must be contained in the
// current location and the xpath must select a node. An unset part is ignored; a condition
// with neither part never matches.
func (s *Session) CheckStory(ctx context.Context, cond *smdomain.Condition) bool {
	if cond == nil || (cond.URL == "" && cond.XPath == "") {
		return false
	}
	if cond.URL != "" {
		current, err := s.page.URL(ctx)
		if err != nil {
			s.logger.Debug("read location", zap.Error(err))
			return false
		}
		if !strings.Contains(current, cond.URL) {
			return false
		}
	}
	if cond.XPath == "" {
		return true
	}
	ok, err := s.page.HasXPath(ctx, cond.XPath)
	if err != nil {
		s.logger.Debug("evaluate xpath", zap.String("xpath", cond.XPath), zap.Error(err))
		return false
	}
	return ok
}

// Story builds a beacon for action on href. The login is included only when the visitor is
// logged in; the first property of obj is read from the page when it has a value.
func (s *Session) Story(ctx context.Context, href, action string, obj *smdomain.ClientObject) *domain.Payload {
	p := &domain.Payload{
		User:   domain.PayloadUser{Anonymous: s.uid},
		Action: action,
		URL:    href,
		APIKey: s.cfg.APIKey,
	}
	if s.IsLogged() {
		p.User.Login = s.id
	}
	if obj == nil {
		return p
	}
	p.Objects = &domain.PayloadObject{ID: obj.ID}
	if len(obj.Properties) == 0 {
		return p
	}
	prop := obj.Properties[0]
	if prop.Name == "" || prop.XPath == "" {
		return p
	}
	value, ok, err := s.page.ValueAt(ctx, prop.XPath)
	if err != nil {
		s.logger.Debug("read property", zap.String("xpath", prop.XPath), zap.Error(err))
		return p
	}
	if ok {
		p.Objects.Properties = &domain.PayloadProperty{Name: prop.Name, Value: value}
	}
	return p
}

func (s *Session) hasCookie(name string) bool {
	v, ok := s.cookies.Cookie(name)
	return ok && v != ""
}

func (s *Session) setCookie(name, value string) {
	if err := s.cookies.SetCookie(name, value); err != nil {
		s.logger.Warn("set cookie", zap.String("cookie", name), zap.Error(err))
	}
}

func (s *Session) eraseCookie(name string) {
	if err := s.cookies.EraseCookie(name); err != nil {
		s.logger.Warn("erase cookie", zap.String("cookie", name), zap.Error(err))
	}
}
