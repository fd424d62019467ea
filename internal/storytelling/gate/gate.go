// Package gate decides whether a newsletter opt-in earns a story. The rule is an OPA Rego
// policy so that it can be tightened without touching the listener.
package gate

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"
)

// DefaultQuery is the rule evaluated for every opt-in.
const DefaultQuery = "data.playground.storytelling.optin.allow"

// DefaultPolicy rewards an opt-in once: the flag must go from unset to set in this request
// and the user must have no story for the channel yet.
const DefaultPolicy = `package playground.storytelling.optin

default allow := false

allow if {
	input.before != 1
	input.requested == 1
	input.prior_stories == 0
}
`

// Input is the opt-in evaluated by the gate.
type Input struct {
	// Channel is the after event of the opt-in, e.g. "updateNewsletter.post".
	Channel string
	// Before is the user's flag before the request (0 or 1).
	Before int
	// Requested is the flag value carried by the request data.
	Requested int
	// PriorStories counts the stories the user already has for the channel's mappings.
	PriorStories int
}

func (in Input) toMap() map[string]any {
	return map[string]any{
		"channel":       in.Channel,
		"before":        in.Before,
		"requested":     in.Requested,
		"prior_stories": in.PriorStories,
	}
}

// Allow is the native form of DefaultPolicy, used when policy evaluation fails.
func (in Input) Allow() bool {
	return in.Before != 1 && in.Requested == 1 && in.PriorStories == 0
}

// OPAGate evaluates the opt-in policy with a prepared Rego query.
type OPAGate struct {
	query  rego.PreparedEvalQuery
	logger *zap.Logger
}

// NewOPAGate compiles policy (DefaultPolicy when empty) and prepares DefaultQuery.
func NewOPAGate(ctx context.Context, policy string, logger *zap.Logger) (*OPAGate, error) {
	if policy == "" {
		policy = DefaultPolicy
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pq, err := rego.New(
		rego.Query(DefaultQuery),
		rego.Module("optin.rego", policy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("gate: prepare policy: %w", err)
	}
	return &OPAGate{query: pq, logger: logger}, nil
}

// Allow reports whether the opt-in earns a story. A policy evaluation failure falls back to
// the native rule.
func (g *OPAGate) Allow(ctx context.Context, in Input) bool {
	allowed, err := g.eval(ctx, in)
	if err != nil {
		g.logger.Warn("opt-in policy evaluation failed; using built-in rule",
			zap.String("channel", in.Channel), zap.Error(err))
		return in.Allow()
	}
	return allowed
}

// HealthCheck evaluates the prepared policy on a fixed input. Returns nil on success.
func (g *OPAGate) HealthCheck(ctx context.Context) error {
	allowed, err := g.eval(ctx, Input{Channel: "health", Requested: 1})
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("gate: policy denied a first opt-in")
	}
	return nil
}

func (g *OPAGate) eval(ctx context.Context, in Input) (bool, error) {
	rs, err := g.query.Eval(ctx, rego.EvalInput(in.toMap()))
	if err != nil {
		return false, fmt.Errorf("gate: eval: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, fmt.Errorf("gate: policy query returned no result")
	}
	v, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("gate: policy result is %T, want bool", rs[0].Expressions[0].Value)
	}
	return v, nil
}
