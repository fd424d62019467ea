// Package domain holds the browser tracking wire types and the stored beacon.
package domain

import (
	"errors"
	"time"

	smdomain "playground-flow/internal/storymapping/domain"
)

// Story keys the client treats specially.
const (
	StoryLogin  = "login_user"
	StoryLogout = "logout_user"
)

// SessionData is the document served by /connect and cached by the client in the authent cookie.
type SessionData struct {
	ID      string  `json:"id"`
	Library Library `json:"library"`
}

// Library holds the client story definitions keyed by story key.
type Library struct {
	Stories map[string]smdomain.ClientStory `json:"stories"`
}

// Story returns the story with key, or nil.
func (d *SessionData) Story(key string) *smdomain.ClientStory {
	if d == nil || d.Library.Stories == nil {
		return nil
	}
	s, ok := d.Library.Stories[key]
	if !ok {
		return nil
	}
	return &s
}

// Payload is the beacon body posted by the client to /track.
type Payload struct {
	User    PayloadUser    `json:"user"`
	Objects *PayloadObject `json:"objects,omitempty"`
	Action  string         `json:"action,omitempty"`
	URL     string         `json:"url"`
	APIKey  string         `json:"apiKey,omitempty"`
}

// PayloadUser identifies the browser. Login is set only when the visitor is logged in.
type PayloadUser struct {
	Anonymous string `json:"anonymous"`
	Login     string `json:"login,omitempty"`
}

// PayloadObject is the tracked object and its first property read from the page.
type PayloadObject struct {
	ID         string           `json:"id,omitempty"`
	Properties *PayloadProperty `json:"properties,omitempty"`
}

// PayloadProperty is one property value extracted through an XPath.
type PayloadProperty struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Beacon is one stored tracking beacon.
type Beacon struct {
	ID            string
	AnonymousID   string
	Login         string
	Action        string
	URL           string
	ObjectID      string
	PropertyName  string
	PropertyValue string
	IP            string
	CreatedAt     time.Time
}

// Beacon flattens p into a Beacon without id, ip or timestamp.
func (p *Payload) Beacon() *Beacon {
	b := &Beacon{
		AnonymousID: p.User.Anonymous,
		Login:       p.User.Login,
		Action:      p.Action,
		URL:         p.URL,
	}
	if p.Objects != nil {
		b.ObjectID = p.Objects.ID
		if p.Objects.Properties != nil {
			b.PropertyName = p.Objects.Properties.Name
			b.PropertyValue = p.Objects.Properties.Value
		}
	}
	return b
}

// Validate validates the beacon for persistence. Returns an error describing the first validation failure.
func (b *Beacon) Validate() error {
	if b.ID == "" {
		return errors.New("beacon id is required")
	}
	if b.AnonymousID == "" {
		return errors.New("beacon anonymous id is required")
	}
	if b.URL == "" {
		return errors.New("beacon url is required")
	}
	return nil
}
