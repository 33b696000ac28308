package agentwrapper

import (
	"strconv"
	"strings"

	"github.com/zeroshot-dev/zeroshot/pkg/ledger"
)

// Predicate evaluation: triggers may carry a small boolean-expression script
// (spec §4.6) tested against the triggering message — e.g.
// `message.data.approved == true`. No example repo in the retrieved pack
// imports a scripting/expression-evaluation library (no govaluate,
// antonmedv/expr, cel-go, or similar; see DESIGN.md), so this package
// hand-rolls a minimal, side-effect-free boolean grammar instead of
// fabricating a dependency. It intentionally does NOT implement the
// `ledger.query`/`ledger.findLast`/`cluster.getAgentsByRole` call surface the
// spec describes as available inside a predicate sandbox — that would need
// a genuine embedded scripting runtime — and instead resolves field paths
// against the triggering message only. A predicate a real deployment needs
// beyond field comparisons is expected to move into a custom TriggerAction
// instead.
//
// Grammar (all of it — no loops, no calls, so evaluation always terminates):
//
//	expr       := orExpr
//	orExpr     := andExpr ( "||" andExpr )*
//	andExpr    := unary ( "&&" unary )*
//	unary      := "!" unary | comparison
//	comparison := operand ( ("==" | "!=" | ">" | "<" | ">=" | "<=") operand )?
//	operand    := path | literal | "(" expr ")"
//	path       := IDENT ( "." IDENT )*
//	literal    := "true" | "false" | "nil" | STRING | NUMBER
//
// EvaluatePredicate never panics outward: a malformed script, a path that
// resolves to nothing, or any internal error is treated as falsy, matching
// spec §4.6 ("script timeouts and exceptions count as false").
func EvaluatePredicate(script string, msg ledger.Message) (result bool) {
	defer func() {
		if recover() != nil {
			result = false
		}
	}()

	if strings.TrimSpace(script) == "" {
		return true
	}

	p := &predParser{tokens: tokenize(script), env: messageEnv(msg)}
	v, ok := p.parseExpr()
	if !ok || p.pos != len(p.tokens) {
		return false
	}
	return truthy(v)
}

// ValidatePredicateSyntax parses script without evaluating it against any
// message, returning a *PredicateError if it is malformed. Used by
// pkg/orchestrator at cluster start so a broken trigger.logic
// surfaces as a warning before the cluster ever runs, rather than silently
// evaluating false on every delivery.
func ValidatePredicateSyntax(script string) error {
	if strings.TrimSpace(script) == "" {
		return nil
	}
	p := &predParser{tokens: tokenize(script), env: map[string]any{}}
	if _, ok := p.parseExpr(); !ok {
		return &PredicateError{Script: script, Reason: "failed to parse"}
	}
	if p.pos != len(p.tokens) {
		return &PredicateError{Script: script, Reason: "unexpected trailing tokens"}
	}
	return nil
}

// messageEnv exposes the triggering message's fields as a nested map so
// dotted paths like `message.data.approved` or `message.topic` resolve.
func messageEnv(msg ledger.Message) map[string]any {
	return map[string]any{
		"message": map[string]any{
			"topic":    msg.Topic,
			"sender":   msg.Sender,
			"receiver": msg.Receiver,
			"text":     msg.Content.Text,
			"data":     msg.Content.Data,
		},
	}
}

// resolvePath walks a dotted identifier ("message.data.approved") through
// nested maps, returning nil if any segment is missing or not a map.
func resolvePath(env map[string]any, path string) any {
	segs := strings.Split(path, ".")
	var cur any = env
	for _, seg := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[seg]
	}
	return cur
}

type predToken struct {
	kind string // "ident", "string", "number", "op", "lparen", "rparen"
	text string
}

func tokenize(s string) []predToken {
	var out []predToken
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			out = append(out, predToken{"lparen", "("})
			i++
		case c == ')':
			out = append(out, predToken{"rparen", ")"})
			i++
		case c == '"' || c == '\'':
			quote := c
			j := i + 1
			for j < len(s) && s[j] != quote {
				j++
			}
			out = append(out, predToken{"string", s[i+1 : min(j, len(s))]})
			i = j + 1
		case strings.HasPrefix(s[i:], "=="), strings.HasPrefix(s[i:], "!="),
			strings.HasPrefix(s[i:], ">="), strings.HasPrefix(s[i:], "<="),
			strings.HasPrefix(s[i:], "&&"), strings.HasPrefix(s[i:], "||"):
			out = append(out, predToken{"op", s[i : i+2]})
			i += 2
		case c == '>' || c == '<' || c == '!':
			out = append(out, predToken{"op", string(c)})
			i++
		case isIdentStart(c):
			j := i
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			out = append(out, predToken{"ident", s[i:j]})
			i = j
		case isDigit(c) || c == '-':
			j := i + 1
			for j < len(s) && (isDigit(s[j]) || s[j] == '.') {
				j++
			}
			out = append(out, predToken{"number", s[i:j]})
			i = j
		default:
			i++
		}
	}
	return out
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '.'
}
func isDigit(c byte) bool { return c >= '0' && c <= '9' }

type predParser struct {
	tokens []predToken
	pos    int
	env    map[string]any
}

func (p *predParser) peek() (predToken, bool) {
	if p.pos >= len(p.tokens) {
		return predToken{}, false
	}
	return p.tokens[p.pos], true
}

func (p *predParser) parseExpr() (any, bool) {
	return p.parseOr()
}

func (p *predParser) parseOr() (any, bool) {
	left, ok := p.parseAnd()
	if !ok {
		return nil, false
	}
	for {
		t, has := p.peek()
		if !has || t.kind != "op" || t.text != "||" {
			return left, true
		}
		p.pos++
		right, ok := p.parseAnd()
		if !ok {
			return nil, false
		}
		left = truthy(left) || truthy(right)
	}
}

func (p *predParser) parseAnd() (any, bool) {
	left, ok := p.parseUnary()
	if !ok {
		return nil, false
	}
	for {
		t, has := p.peek()
		if !has || t.kind != "op" || t.text != "&&" {
			return left, true
		}
		p.pos++
		right, ok := p.parseUnary()
		if !ok {
			return nil, false
		}
		left = truthy(left) && truthy(right)
	}
}

func (p *predParser) parseUnary() (any, bool) {
	if t, has := p.peek(); has && t.kind == "op" && t.text == "!" {
		p.pos++
		v, ok := p.parseUnary()
		if !ok {
			return nil, false
		}
		return !truthy(v), true
	}
	return p.parseComparison()
}

func (p *predParser) parseComparison() (any, bool) {
	left, ok := p.parseOperand()
	if !ok {
		return nil, false
	}
	t, has := p.peek()
	if !has || t.kind != "op" || (t.text != "==" && t.text != "!=" && t.text != ">" && t.text != "<" && t.text != ">=" && t.text != "<=") {
		return left, true
	}
	op := t.text
	p.pos++
	right, ok := p.parseOperand()
	if !ok {
		return nil, false
	}
	return compare(op, left, right), true
}

func (p *predParser) parseOperand() (any, bool) {
	t, has := p.peek()
	if !has {
		return nil, false
	}

	if t.kind == "lparen" {
		p.pos++
		v, ok := p.parseExpr()
		if !ok {
			return nil, false
		}
		close, has := p.peek()
		if !has || close.kind != "rparen" {
			return nil, false
		}
		p.pos++
		return v, true
	}

	if t.kind == "string" {
		p.pos++
		return t.text, true
	}

	if t.kind == "number" {
		p.pos++
		n, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, false
		}
		return n, true
	}

	if t.kind == "ident" {
		p.pos++
		switch t.text {
		case "true":
			return true, true
		case "false":
			return false, true
		case "nil", "null":
			return nil, true
		}
		return resolvePath(p.env, t.text), true
	}

	return nil, false
}

// truthy mirrors the spec's loose-JS-truthiness boundary (§9 normalizeBoolean
// note): non-zero numbers, non-empty strings other than "false", true, and
// non-empty maps/slices are truthy; everything else, including absent
// fields, is falsy.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != "" && t != "false"
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	default:
		return true
	}
}

// compare implements ==, !=, <, >, <=, >= across the value kinds an operand
// can produce (number, string, bool). Mismatched kinds compare unequal and
// never satisfy an ordering operator.
func compare(op string, a, b any) bool {
	if op == "==" {
		return valuesEqual(a, b)
	}
	if op == "!=" {
		return !valuesEqual(a, b)
	}

	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		switch op {
		case "<":
			return af < bf
		case ">":
			return af > bf
		case "<=":
			return af <= bf
		case ">=":
			return af >= bf
		}
	}

	as, asok := a.(string)
	bs, bsok := b.(string)
	if asok && bsok {
		switch op {
		case "<":
			return as < bs
		case ">":
			return as > bs
		case "<=":
			return as <= bs
		case ">=":
			return as >= bs
		}
	}

	return false
}

func valuesEqual(a, b any) bool {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	default:
		return false
	}
}
