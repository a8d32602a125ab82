// Package policy gates which classified items reach the notifier.
package policy

import (
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"

	"github.com/perimetra/vulnfeed/internal/types"
)

// DefaultExpression reproduces the fixed notification contract: only
// critical and high findings page anyone.
const DefaultExpression = `severity in ["CRITICAL", "HIGH"]`

// Engine evaluates a CEL expression per classified item. The expression is
// compiled once per run; operators can only narrow within the severity gate
// because the orchestrator never offers lower-severity items to the notifier.
//
// Available variables:
//   - severity: string, one of CRITICAL/HIGH/MEDIUM/LOW/UNKNOWN
//   - source: string, the feed the item came from (CVE/NEWS/ADVISORY)
//   - score: relevance score from the keyword scorer
//   - whitelistMatches: number of watched products matched
//   - products: list of affected product names
//   - fallback: true when the heuristic classified the item
type Engine struct {
	logger     *slog.Logger
	expression string
	celProgram cel.Program
}

// NewEngine compiles the notification policy. An empty expression uses the
// default severity gate.
func NewEngine(expression string, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if expression == "" {
		expression = DefaultExpression
	}

	env, err := cel.NewEnv(
		cel.Variable("severity", cel.StringType),
		cel.Variable("source", cel.StringType),
		cel.Variable("score", cel.IntType),
		cel.Variable("whitelistMatches", cel.IntType),
		cel.Variable("products", cel.ListType(cel.StringType)),
		cel.Variable("fallback", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile notification policy: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("notification policy must return a boolean, got %v", ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &Engine{
		logger:     logger,
		expression: expression,
		celProgram: program,
	}, nil
}

// Expression returns the compiled policy text, for the run summary.
func (e *Engine) Expression() string {
	return e.expression
}

// Allows evaluates the policy for one item.
func (e *Engine) Allows(item types.ClassifiedItem) (bool, error) {
	out, _, err := e.celProgram.Eval(map[string]interface{}{
		"severity":         string(item.Severity),
		"source":           string(item.Item.Source),
		"score":            item.Score,
		"whitelistMatches": len(item.MatchedEntries),
		"products":         item.Products,
		"fallback":         item.ClassifiedBy == types.ClassifiedByFallback,
	})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate notification policy: %w", err)
	}

	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("notification policy did not return a boolean: %v", out.Value())
	}
	return allowed, nil
}

// Select returns the items the policy admits, preserving input order.
func (e *Engine) Select(items []types.ClassifiedItem) ([]types.ClassifiedItem, error) {
	selected := make([]types.ClassifiedItem, 0, len(items))
	for _, item := range items {
		allowed, err := e.Allows(item)
		if err != nil {
			return nil, err
		}
		if !allowed {
			e.logger.Debug("notification policy drops item",
				"item", item.Item.Identity(),
				"severity", item.Severity)
			continue
		}
		selected = append(selected, item)
	}
	return selected, nil
}
