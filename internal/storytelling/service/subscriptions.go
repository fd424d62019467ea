package service

import (
	"playground-flow/internal/event"
)

// priority of the listener relative to other subscribers of the same events.
const (
	priorityDefault = 200
	priorityPartner = 201
)

type subscription struct {
	identifiers []string
	event       string
	handler     func(*Listener) event.Handler
	priority    int
}

var (
	anyTarget  = []string{event.Wildcard}
	userTarget = []string{"user.service"}

	tellBefore       = func(l *Listener) event.Handler { return l.TellStoryBefore }
	tellAfter        = func(l *Listener) event.Handler { return l.TellStoryAfter }
	sponsorAfter     = func(l *Listener) event.Handler { return l.SponsorAfter }
	newsletterBefore = func(l *Listener) event.Handler { return l.NewsletterBefore }
	newsletterAfter  = func(l *Listener) event.Handler { return l.NewsletterAfter }
)

// subscriptions is the listener's routing table.
var subscriptions = []subscription{
	{anyTarget, "play.post", tellAfter, priorityDefault},
	{anyTarget, "createQuizReply.post", tellAfter, priorityDefault},
	{anyTarget, "sendShareMail.post", tellAfter, priorityDefault},
	{anyTarget, "postFbWall.post", tellAfter, priorityDefault},
	{anyTarget, "postTwitter.post", tellAfter, priorityDefault},
	{anyTarget, "postGoogle.post", tellAfter, priorityDefault},
	{userTarget, "register.post", tellAfter, priorityDefault},
	{anyTarget, "sponsor.post", sponsorAfter, priorityDefault},
	{anyTarget, "updateNewsletter.pre", newsletterBefore, priorityDefault},
	{anyTarget, "updateNewsletter.post", newsletterAfter, priorityDefault},
	{anyTarget, "updateNewsletterPartner.pre", newsletterBefore, priorityPartner},
	{anyTarget, "updateNewsletterPartner.post", newsletterAfter, priorityPartner},
	{anyTarget, "updateInfo.pre", tellBefore, priorityDefault},
	{anyTarget, "updateInfo.post", tellAfter, priorityDefault},
}

// Events returns the event names the listener subscribes to, in table order.
func Events() []string {
	out := make([]string, len(subscriptions))
	for i, s := range subscriptions {
		out[i] = s.event
	}
	return out
}

// Attach subscribes the listener to m and makes m the target of derived story events.
// Attaching again first detaches the previous subscriptions.
func (l *Listener) Attach(m *event.Manager) {
	l.Detach()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.manager = m
	for _, s := range subscriptions {
		l.subs = append(l.subs, m.Attach(s.identifiers, s.event, s.handler(l), s.priority))
	}
}

// Detach removes exactly the subscriptions added by Attach. Returns the number removed.
func (l *Listener) Detach() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.manager == nil {
		return 0
	}
	removed := 0
	kept := l.subs[:0]
	for _, s := range l.subs {
		if l.manager.Detach(s) {
			removed++
			continue
		}
		kept = append(kept, s)
	}
	l.subs = kept
	if len(l.subs) == 0 {
		l.manager = nil
	}
	return removed
}
