// Package domain holds the game objects that play and quiz events carry.
package domain

import "playground-flow/internal/object"

// Game is the game a user played.
type Game struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
	Type       string `json:"type"`
}

// Entry is one participation of a user in a game.
type Entry struct {
	ID     string `json:"id"`
	Points int    `json:"points"`
	Winner bool   `json:"winner"`
	Active bool   `json:"active"`
}

// GameKind exposes Game attributes under the "game" role.
var GameKind = object.NewKind[Game]("game", map[string]func(*Game) any{
	"id":         func(g *Game) any { return g.ID },
	"identifier": func(g *Game) any { return g.Identifier },
	"title":      func(g *Game) any { return g.Title },
	"type":       func(g *Game) any { return g.Type },
})

// EntryKind exposes Entry attributes under the "entry" role.
var EntryKind = object.NewKind[Entry]("entry", map[string]func(*Entry) any{
	"id":     func(e *Entry) any { return e.ID },
	"points": func(e *Entry) any { return e.Points },
	"winner": func(e *Entry) any { return e.Winner },
	"active": func(e *Entry) any { return e.Active },
})
