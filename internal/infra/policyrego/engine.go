// Package policyrego evaluates rego-expressed compliance rules. Each
// rule module must define data.custodia.compliance.violation.
package policyrego

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/open-policy-agent/opa/rego"
	"github.com/sirupsen/logrus"
)

const violationQuery = "data.custodia.compliance.violation"

// Engine compiles each rule module once and caches the prepared query.
// The cache key covers the module text, so editing a rule recompiles it.
type Engine struct {
	mu       sync.Mutex
	prepared map[string]rego.PreparedEvalQuery
	log      *logrus.Logger
}

func NewEngine(log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.New()
	}
	return &Engine{
		prepared: make(map[string]rego.PreparedEvalQuery),
		log:      log,
	}
}

func (e *Engine) EvaluateRule(ctx context.Context, ruleID, module string, input map[string]any) (bool, error) {
	query, err := e.prepare(ctx, ruleID, module)
	if err != nil {
		return false, fmt.Errorf("prepare rule %s: %w", ruleID, err)
	}
	results, err := query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("evaluate rule %s: %w", ruleID, err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil
	}
	violated, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("rule %s: violation is not boolean", ruleID)
	}
	return violated, nil
}

func (e *Engine) prepare(ctx context.Context, ruleID, module string) (rego.PreparedEvalQuery, error) {
	sum := sha256.Sum256([]byte(module))
	cacheKey := ruleID + ":" + hex.EncodeToString(sum[:8])

	e.mu.Lock()
	defer e.mu.Unlock()
	if query, ok := e.prepared[cacheKey]; ok {
		return query, nil
	}
	query, err := rego.New(
		rego.Query(violationQuery),
		rego.Module(ruleID+".rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return rego.PreparedEvalQuery{}, err
	}
	e.prepared[cacheKey] = query
	e.log.WithField("rule_id", ruleID).Debug("compliance rule compiled")
	return query, nil
}
