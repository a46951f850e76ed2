package rules

import "strings"

// Subject is the view of one normalized transaction that predicates test.
// Clock is nil when the source row carried no intraday timestamp.
type Subject struct {
	Clock        *Clock
	Amount       int64 // signed minor units
	Description  string
	Counterparty string
}

// Categorize scans the compiled rules in source order and returns the
// target of the first rule whose predicates all hold. It is pure: identical
// inputs always yield identical output.
//
// Semantics:
//   - time predicates never match a subject without a time of day;
//   - amount predicates compare the absolute value of the signed amount;
//   - *= is case-sensitive literal containment.
//
// The second return is false when no rule matches (uncategorized) or the
// set is invalid.
func Categorize(sub Subject, set *Set) (string, bool) {
	if set == nil || !set.Valid() {
		return "", false
	}
	for _, rule := range set.Rules {
		if ruleMatches(rule, sub) {
			return rule.Target, true
		}
	}
	return "", false
}

func ruleMatches(rule Rule, sub Subject) bool {
	for _, pred := range rule.Predicates {
		if !predicateMatches(pred, sub) {
			return false
		}
	}
	return true
}

func predicateMatches(p Predicate, sub Subject) bool {
	switch p.Field {
	case FieldTime:
		if sub.Clock == nil {
			return false
		}
		return compareInt(int64(sub.Clock.Minutes()), int64(p.Clock.Minutes()), p.Op)
	case FieldAmount:
		amt := sub.Amount
		if amt < 0 {
			amt = -amt
		}
		return compareInt(amt, p.Amount, p.Op)
	case FieldDescription:
		return compareText(sub.Description, p.Text, p.Op)
	case FieldCounterparty:
		return compareText(sub.Counterparty, p.Text, p.Op)
	}
	return false
}

func compareInt(have, want int64, op Op) bool {
	switch op {
	case OpLT:
		return have < want
	case OpLE:
		return have <= want
	case OpGT:
		return have > want
	case OpGE:
		return have >= want
	case OpEQ:
		return have == want
	case OpNE:
		return have != want
	}
	return false
}

func compareText(have, want string, op Op) bool {
	switch op {
	case OpEQ:
		return have == want
	case OpNE:
		return have != want
	case OpContains:
		return strings.Contains(have, want)
	}
	return false
}
