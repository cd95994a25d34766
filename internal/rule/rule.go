package rule

import (
	"errors"
	"strings"
)

// EXPR := OPERATOR '(' PROPERTY ',' VALUES ')' | EXPR 'and' EXPR
// VALUES := NUMBER | STRING | VALUES ',' VALUES
// STRING := "'" CHAR* "'"
// NUMBER := DIGIT+
// OPERATOR := eq | ne | gt | ge | lt | le | contains | starts-with | ends-with
// PROPERTY := ip | user | domain | event

type Operator int

type Property int

type Expression struct {
	Op     Operator
	Prop   Property
	Values []any
}

// A named condition, e.g. to ignore failures of a monitoring account.
type Rule struct {
	Name        string
	Condition   string
	Expressions []Expression
}

const (
	OPR_EQ Operator = iota
	OPR_NE
	OPR_GE
	OPR_GT
	OPR_LE
	OPR_LT
	OPR_IN
	OPR_STARTS
	OPR_ENDS
)

const (
	PROP_IP Property = iota
	PROP_USER
	PROP_DOMAIN
	PROP_EVENT
)

var ErrInvalidCondition = errors.New("invalid condition")

// Parses a condition into a list of expressions that all have to match.
// Values of an expression match if any of them matches.
func ParseCondition(str string) ([]Expression, error) {
	s := scanner{str: str}
	expressions, err := s.parseConjunction()
	if err != nil {
		return nil, err
	}
	if s.skipSpace(); !s.atEnd() {
		return nil, s.errorf("unexpected input")
	}
	return expressions, nil
}

// Returns whether all expressions match the data.
func EvaluateExpressions(expressions []Expression, data map[Property]any) bool {
	for _, expr := range expressions {
		if !evaluateExpression(expr, data) {
			return false
		}
	}
	return true
}

// Creates a rule from a name and a condition.
func NewRule(name string, condition string) (Rule, error) {
	if len(name) == 0 {
		return Rule{}, errors.New("missing 'name' in rule definition")
	}
	if len(condition) == 0 {
		return Rule{}, errors.New("missing 'condition' in rule definition")
	}
	expressions, err := ParseCondition(condition)
	if err != nil {
		return Rule{}, err
	}
	return Rule{Name: name, Condition: condition, Expressions: expressions}, nil
}

func (r Rule) Matches(data map[Property]any) bool {
	return EvaluateExpressions(r.Expressions, data)
}

// Returns the rule properties of a security failure.
// User and domain names are compared case-insensitively.
func FailureData(ip string, user string, domain string, eventID int) map[Property]any {
	return map[Property]any{
		PROP_IP:     ip,
		PROP_USER:   strings.ToLower(user),
		PROP_DOMAIN: strings.ToLower(domain),
		PROP_EVENT:  eventID,
	}
}
