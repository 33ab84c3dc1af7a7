// Package llmtest provides scripted generation oracles for tests.
package llmtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/todmy/docguard/internal/llm"
	"github.com/todmy/docguard/pkg/models"
)

// Responder produces the answer for one request
type Responder func(req llm.Request) (string, error)

// Scripted routes requests to responders by a substring of the system instruction.
// Unrouted requests fail with ErrOracleUnavailable.
type Scripted struct {
	mu     sync.Mutex
	routes []route
	calls  []llm.Request
	Model  string
}

type route struct {
	match   string
	respond Responder
}

var _ llm.Generator = (*Scripted)(nil)

// New creates an empty scripted generator
func New() *Scripted {
	return &Scripted{Model: "scripted"}
}

// On registers a responder for requests whose system instruction contains match
func (s *Scripted) On(match string, respond Responder) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes = append(s.routes, route{match: match, respond: respond})
	return s
}

// OnText registers a fixed answer
func (s *Scripted) OnText(match, text string) *Scripted {
	return s.On(match, func(llm.Request) (string, error) { return text, nil })
}

// Generate answers from the first matching route
func (s *Scripted) Generate(_ context.Context, req llm.Request) (*llm.Completion, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	routes := append([]route(nil), s.routes...)
	s.mu.Unlock()

	for _, r := range routes {
		if strings.Contains(req.System, r.match) {
			text, err := r.respond(req)
			if err != nil {
				return nil, err
			}
			return &llm.Completion{
				Text:         text,
				Model:        s.Model,
				InputTokens:  len(req.Prompt) / 4,
				OutputTokens: len(text) / 4,
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: no scripted route", models.ErrOracleUnavailable)
}

// Calls returns the requests seen so far
func (s *Scripted) Calls() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Request(nil), s.calls...)
}

// CallCount returns how many requests matched match
func (s *Scripted) CallCount(match string) int {
	n := 0
	for _, c := range s.Calls() {
		if strings.Contains(c.System, match) {
			n++
		}
	}
	return n
}

// Fenced wraps a JSON body in a markdown fence the way models usually answer
func Fenced(body string) string {
	return "Here is the result:\n```json\n" + body + "\n```\n"
}
