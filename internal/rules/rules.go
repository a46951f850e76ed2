// Package rules compiles and evaluates the user-authored categorization
// rule language. One rule per line:
//
//	time < 9:00, amount > 100, description *= "Uber" -> Morning transport
//
// Blank lines and lines starting with '#' are ignored. Compilation is
// per-line and best-effort so the user sees every error at once.
package rules

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Field identifies the transaction attribute a predicate tests.
type Field int

const (
	FieldTime Field = iota
	FieldAmount
	FieldDescription
	FieldCounterparty
)

var fieldNames = map[string]Field{
	"time":         FieldTime,
	"amount":       FieldAmount,
	"description":  FieldDescription,
	"counterparty": FieldCounterparty,
}

func (f Field) String() string {
	switch f {
	case FieldTime:
		return "time"
	case FieldAmount:
		return "amount"
	case FieldDescription:
		return "description"
	case FieldCounterparty:
		return "counterparty"
	}
	return "unknown"
}

// Op is a predicate operator.
type Op int

const (
	OpLT Op = iota
	OpLE
	OpGT
	OpGE
	OpEQ
	OpNE
	OpContains // *=
)

func (o Op) String() string {
	switch o {
	case OpLT:
		return "<"
	case OpLE:
		return "<="
	case OpGT:
		return ">"
	case OpGE:
		return ">="
	case OpEQ:
		return "=="
	case OpNE:
		return "!="
	case OpContains:
		return "*="
	}
	return "?"
}

// Clock is a time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

// Minutes returns the clock as minutes since midnight.
func (c Clock) Minutes() int { return c.Hour*60 + c.Minute }

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// ParseClock parses "H:MM" or "HH:MM".
func ParseClock(s string) (Clock, error) {
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return Clock{}, fmt.Errorf("bad time value %q (want HH:MM)", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return Clock{}, fmt.Errorf("bad hour in %q", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || len(m) != 2 || minute < 0 || minute > 59 {
		return Clock{}, fmt.Errorf("bad minute in %q", s)
	}
	return Clock{Hour: hour, Minute: minute}, nil
}

// Predicate is one field/operator/value clause. Exactly one of Clock,
// Amount, Text is meaningful, per Field.
type Predicate struct {
	Field  Field
	Op     Op
	Clock  Clock
	Amount int64
	Text   string
}

// String returns the predicate in canonical rule syntax.
func (p Predicate) String() string {
	switch p.Field {
	case FieldTime:
		return fmt.Sprintf("%s %s %s", p.Field, p.Op, p.Clock)
	case FieldAmount:
		return fmt.Sprintf("%s %s %d", p.Field, p.Op, p.Amount)
	default:
		return fmt.Sprintf("%s %s %s", p.Field, p.Op, strconv.Quote(p.Text))
	}
}

// Rule is an ordered conjunction of predicates with a target category.
type Rule struct {
	Line       int // 1-based source line
	Predicates []Predicate
	Target     string
}

// String returns the rule in canonical syntax.
func (r Rule) String() string {
	parts := make([]string, len(r.Predicates))
	for i, p := range r.Predicates {
		parts[i] = p.String()
	}
	return strings.Join(parts, ", ") + " -> " + r.Target
}

// Diagnostic is a per-line compile message.
type Diagnostic struct {
	Line    int
	Message string
}

func (d Diagnostic) String() string { return fmt.Sprintf("line %d: %s", d.Line, d.Message) }

// Set is a compiled rule file. Rules keep source order; Diagnostics are
// fatal syntax errors; Warnings flag rule targets naming a category the
// caller does not know about (non-fatal, the user may create it later).
type Set struct {
	Rules       []Rule
	Diagnostics []Diagnostic
	Warnings    []Diagnostic
}

// Valid reports whether the set may be used for evaluation. A set with any
// fatal diagnostic must not be evaluated.
func (s *Set) Valid() bool { return len(s.Diagnostics) == 0 }

// Compile parses rule text line by line. A malformed line yields one
// diagnostic and does not stop compilation of later lines. When known is
// non-nil, targets absent from it are flagged as warnings.
func Compile(src string, known []string) *Set {
	set := &Set{}
	var knownSet map[string]bool
	if known != nil {
		knownSet = make(map[string]bool, len(known))
		for _, k := range known {
			knownSet[k] = true
		}
	}
	for i, raw := range strings.Split(src, "\n") {
		line := i + 1
		text := strings.TrimSpace(strings.TrimSuffix(raw, "\r"))
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		rule, err := parseRule(text)
		if err != nil {
			set.Diagnostics = append(set.Diagnostics, Diagnostic{Line: line, Message: err.Error()})
			continue
		}
		rule.Line = line
		if knownSet != nil && !knownSet[rule.Target] {
			set.Warnings = append(set.Warnings, Diagnostic{
				Line:    line,
				Message: fmt.Sprintf("unknown category %q", rule.Target),
			})
		}
		set.Rules = append(set.Rules, rule)
	}
	return set
}

type parser struct {
	src string
	pos int
}

func parseRule(text string) (Rule, error) {
	p := &parser{src: text}
	var preds []Predicate
	for {
		pred, err := p.predicate()
		if err != nil {
			return Rule{}, err
		}
		preds = append(preds, pred)
		p.skipSpace()
		if p.eat(',') {
			continue
		}
		if p.eatArrow() {
			target := strings.TrimSpace(p.rest())
			if target == "" {
				return Rule{}, errors.New(`missing category name after "->"`)
			}
			return Rule{Predicates: preds, Target: target}, nil
		}
		return Rule{}, fmt.Errorf(`expected "," or "->" before %q`, p.rest())
	}
}

func (p *parser) predicate() (Predicate, error) {
	p.skipSpace()
	name := p.ident()
	if name == "" {
		return Predicate{}, fmt.Errorf("expected field name before %q", p.rest())
	}
	field, ok := fieldNames[name]
	if !ok {
		return Predicate{}, fmt.Errorf("unknown field %q", name)
	}
	p.skipSpace()
	op, err := p.operator()
	if err != nil {
		return Predicate{}, err
	}
	p.skipSpace()

	switch field {
	case FieldTime:
		if op == OpContains {
			return Predicate{}, fmt.Errorf("operator *= does not apply to %s", field)
		}
		tok := p.bareToken()
		if tok == "" {
			return Predicate{}, fmt.Errorf("missing time value for %s", field)
		}
		c, err := ParseClock(tok)
		if err != nil {
			return Predicate{}, err
		}
		return Predicate{Field: field, Op: op, Clock: c}, nil
	case FieldAmount:
		if op == OpContains {
			return Predicate{}, fmt.Errorf("operator *= does not apply to %s", field)
		}
		tok := p.bareToken()
		if tok == "" {
			return Predicate{}, fmt.Errorf("missing amount value")
		}
		amt, err := parseMagnitude(tok)
		if err != nil {
			return Predicate{}, err
		}
		return Predicate{Field: field, Op: op, Amount: amt}, nil
	default:
		if op != OpEQ && op != OpNE && op != OpContains {
			return Predicate{}, fmt.Errorf("operator %s does not apply to %s", op, field)
		}
		s, err := p.stringLit()
		if err != nil {
			return Predicate{}, err
		}
		return Predicate{Field: field, Op: op, Text: s}, nil
	}
}

// maxMagnitude caps rule amounts well inside int64 range; converting a
// larger float to int64 is not defined.
const maxMagnitude = 1e15

func parseMagnitude(tok string) (int64, error) {
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, fmt.Errorf("bad amount %q", tok)
	}
	if f < 0 {
		return 0, fmt.Errorf("amount %q must not be negative (amounts compare by magnitude)", tok)
	}
	if f > maxMagnitude {
		return 0, fmt.Errorf("amount %q out of range", tok)
	}
	return int64(math.Round(f)), nil
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) rest() string { return p.src[p.pos:] }

func (p *parser) eat(ch byte) bool {
	if p.pos < len(p.src) && p.src[p.pos] == ch {
		p.pos++
		return true
	}
	return false
}

func (p *parser) eatArrow() bool {
	if strings.HasPrefix(p.rest(), "->") {
		p.pos += 2
		return true
	}
	return false
}

func (p *parser) ident() string {
	start := p.pos
	for p.pos < len(p.src) {
		ch := p.src[p.pos]
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') {
			p.pos++
			continue
		}
		break
	}
	return strings.ToLower(p.src[start:p.pos])
}

var operators = []struct {
	text string
	op   Op
}{
	{"<=", OpLE},
	{">=", OpGE},
	{"==", OpEQ},
	{"!=", OpNE},
	{"*=", OpContains},
	{"<", OpLT},
	{">", OpGT},
}

func (p *parser) operator() (Op, error) {
	rest := p.rest()
	for _, cand := range operators {
		if strings.HasPrefix(rest, cand.text) {
			p.pos += len(cand.text)
			return cand.op, nil
		}
	}
	return 0, fmt.Errorf("expected operator before %q", rest)
}

// bareToken reads an unquoted value up to whitespace, comma, or "->".
func (p *parser) bareToken() string {
	start := p.pos
	for p.pos < len(p.src) {
		ch := p.src[p.pos]
		if ch == ' ' || ch == '\t' || ch == ',' {
			break
		}
		if ch == '-' && strings.HasPrefix(p.rest(), "->") {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

// stringLit reads a double-quoted literal with \" and \\ escapes.
func (p *parser) stringLit() (string, error) {
	if !p.eat('"') {
		return "", fmt.Errorf("expected quoted string before %q", p.rest())
	}
	var b strings.Builder
	for p.pos < len(p.src) {
		ch := p.src[p.pos]
		switch ch {
		case '"':
			p.pos++
			return b.String(), nil
		case '\\':
			if p.pos+1 >= len(p.src) {
				return "", errors.New("unterminated string literal")
			}
			next := p.src[p.pos+1]
			if next != '"' && next != '\\' {
				return "", fmt.Errorf(`unknown escape \%c in string literal`, next)
			}
			b.WriteByte(next)
			p.pos += 2
		default:
			b.WriteByte(ch)
			p.pos++
		}
	}
	return "", errors.New("unterminated string literal")
}
