// Package policyopa evaluates the egress policy with a rego module.
package policyopa

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"

	"github.com/Maverick0351a/signet-protocol-core-console/internal/domain"
	"github.com/Maverick0351a/signet-protocol-core-console/internal/infra/crypto"
	"github.com/Maverick0351a/signet-protocol-core-console/internal/infra/egress"
)

const (
	EngineName   = "HEL-OPA"
	decisionPath = "data.signet.egress.decision"
)

//go:embed policy/egress.rego
var defaultModule string

type Engine struct {
	query      rego.PreparedEvalQuery
	allowlist  []string
	moduleHash string
	logger     *slog.Logger
}

// NewEngine prepares the embedded module.
func NewEngine(ctx context.Context, allowlist []string, logger *slog.Logger) (*Engine, error) {
	return newEngine(ctx, "egress.rego", defaultModule, allowlist, logger)
}

// NewEngineFromFile prepares an operator supplied module. It must define
// data.signet.egress.decision as an object with allowed and reason.
func NewEngineFromFile(ctx context.Context, path string, allowlist []string, logger *slog.Logger) (*Engine, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rego module: %w", err)
	}
	return newEngine(ctx, path, string(source), allowlist, logger)
}

func newEngine(ctx context.Context, name, source string, allowlist []string, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	capabilities := ast.CapabilitiesForThisVersion()
	capabilities.Builtins = filterBuiltins(capabilities.Builtins)
	compiler := ast.NewCompiler().WithCapabilities(capabilities)

	r := rego.New(
		rego.Query(decisionPath),
		rego.Compiler(compiler),
		rego.StrictBuiltinErrors(true),
		rego.Module(name, source),
	)
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare egress policy: %w", err)
	}
	if err := rejectForbiddenCalls(compiler); err != nil {
		return nil, err
	}

	hosts := make([]string, 0, len(allowlist))
	for _, host := range allowlist {
		hosts = append(hosts, strings.ToLower(strings.TrimSpace(host)))
	}
	return &Engine{
		query:      prepared,
		allowlist:  hosts,
		moduleHash: crypto.CIDFromCanonical([]byte(source)),
		logger:     logger,
	}, nil
}

func (e *Engine) Name() string {
	return EngineName
}

// ModuleHash identifies the rego source in use.
func (e *Engine) ModuleHash() string {
	return e.moduleHash
}

// Decide fails closed: evaluation errors and malformed results deny with policy_error.
func (e *Engine) Decide(ctx context.Context, forwardURL string) domain.PolicyDecision {
	forwardURL = strings.TrimSpace(forwardURL)
	target := egress.ParseTarget(forwardURL)
	input := map[string]any{
		"url": forwardURL,
		"target": map[string]any{
			"scheme": target.Scheme,
			"host":   target.Host,
			"valid":  target.Valid,
		},
		"allowlist": e.allowlist,
	}
	decision, err := e.evaluate(ctx, input)
	if err != nil {
		e.logger.Error("egress policy evaluation failed", "engine", EngineName, "error", err)
		return domain.PolicyDecision{Allowed: false, Reason: domain.ReasonPolicyError}
	}
	return decision
}

func (e *Engine) evaluate(ctx context.Context, input map[string]any) (domain.PolicyDecision, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return domain.PolicyDecision{}, err
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return domain.PolicyDecision{}, errors.New("empty policy result")
	}
	return decodeDecision(results[0].Expressions[0].Value)
}

func decodeDecision(value any) (domain.PolicyDecision, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return domain.PolicyDecision{}, err
	}
	var raw struct {
		Allowed *bool  `json:"allowed"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return domain.PolicyDecision{}, err
	}
	if raw.Allowed == nil || raw.Reason == "" {
		return domain.PolicyDecision{}, fmt.Errorf("policy result missing allowed or reason: %s", payload)
	}
	return domain.PolicyDecision{Allowed: *raw.Allowed, Reason: raw.Reason}, nil
}

var ErrForbiddenBuiltin = errors.New("egress policy calls a forbidden builtin")

// rejectForbiddenCalls reports each builtin outside allowedBuiltins once, at its first call site.
func rejectForbiddenCalls(compiler *ast.Compiler) error {
	if compiler == nil {
		return errors.New("policy compiler is nil")
	}
	firstUse := make(map[string]string)
	for _, module := range compiler.Modules {
		ast.WalkTerms(module, func(term *ast.Term) bool {
			call, ok := term.Value.(ast.Call)
			if !ok || len(call) == 0 || call[0] == nil {
				return false
			}
			name := call[0].Value.String()
			_, builtin := ast.BuiltinMap[name]
			_, allowed := allowedBuiltins[name]
			if _, seen := firstUse[name]; builtin && !allowed && !seen {
				firstUse[name] = callSite(term)
			}
			return false
		})
	}
	if len(firstUse) == 0 {
		return nil
	}
	uses := make([]string, 0, len(firstUse))
	for name, site := range firstUse {
		uses = append(uses, name+" at "+site)
	}
	sort.Strings(uses)
	return fmt.Errorf("%w: %s", ErrForbiddenBuiltin, strings.Join(uses, "; "))
}

func callSite(term *ast.Term) string {
	if term.Location == nil {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", term.Location.File, term.Location.Row)
}

var _ domain.EgressPolicy = (*Engine)(nil)
