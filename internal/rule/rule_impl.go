package rule

import (
	"fmt"
	"log"
	"slices"
	"strconv"
	"strings"
	"unicode"
)

var operatorMap = map[string]Operator{
	"eq":          OPR_EQ,
	"ne":          OPR_NE,
	"ge":          OPR_GE,
	"gt":          OPR_GT,
	"le":          OPR_LE,
	"lt":          OPR_LT,
	"contains":    OPR_IN,
	"starts-with": OPR_STARTS,
	"ends-with":   OPR_ENDS,
}

var propertyMap = map[string]Property{
	"ip":     PROP_IP,
	"user":   PROP_USER,
	"domain": PROP_DOMAIN,
	"event":  PROP_EVENT,
}

var stringOnlyOperators = []Operator{OPR_IN, OPR_STARTS, OPR_ENDS}

func isIntType(prop Property) bool {
	return prop == PROP_EVENT
}

func isCaseInsensitive(prop Property) bool {
	return prop == PROP_USER || prop == PROP_DOMAIN
}

func evaluateExpression(expr Expression, data map[Property]any) bool {
	val, ok := data[expr.Prop]
	if !ok {
		return false
	}
	return slices.ContainsFunc(expr.Values, func(arg any) bool {
		switch v := val.(type) {
		case int:
			if a, ok := arg.(int); ok {
				return compare(expr.Op, v, a)
			}
		case string:
			if a, ok := arg.(string); ok {
				return matchString(expr.Op, v, a)
			}
		}
		return false
	})
}

func compare[T int | string](op Operator, val T, arg T) bool {
	switch op {
	case OPR_EQ:
		return val == arg
	case OPR_NE:
		return val != arg
	case OPR_GE:
		return val >= arg
	case OPR_GT:
		return val > arg
	case OPR_LE:
		return val <= arg
	case OPR_LT:
		return val < arg
	}
	log.Println("WARN: invalid operator used in condition")
	return false
}

func matchString(op Operator, val string, arg string) bool {
	switch op {
	case OPR_IN:
		return strings.Contains(val, arg)
	case OPR_STARTS:
		return strings.HasPrefix(val, arg)
	case OPR_ENDS:
		return strings.HasSuffix(val, arg)
	}
	return compare(op, val, arg)
}

type scanner struct {
	str string
	pos int
}

func (s *scanner) errorf(format string, args ...any) error {
	return fmt.Errorf("%w '%s' at position %d: %s", ErrInvalidCondition, s.str, s.pos, fmt.Sprintf(format, args...))
}

func (s *scanner) atEnd() bool {
	return s.pos >= len(s.str)
}

func (s *scanner) peek() rune {
	return rune(s.str[s.pos])
}

func (s *scanner) skipSpace() {
	for !s.atEnd() && unicode.IsSpace(s.peek()) {
		s.pos++
	}
}

func (s *scanner) expect(r rune) error {
	s.skipSpace()
	if s.atEnd() || s.peek() != r {
		return s.errorf("missing '%c'", r)
	}
	s.pos++
	return nil
}

func (s *scanner) accept(keyword string) bool {
	s.skipSpace()
	if strings.HasPrefix(s.str[s.pos:], keyword) {
		s.pos += len(keyword)
		return true
	}
	return false
}

func (s *scanner) symbol() string {
	s.skipSpace()
	start := s.pos
	if s.atEnd() || !unicode.IsLetter(s.peek()) {
		return ""
	}
	for !s.atEnd() {
		r := s.peek()
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
			break
		}
		s.pos++
	}
	return s.str[start:s.pos]
}

func (s *scanner) parseConjunction() ([]Expression, error) {
	var ret []Expression
	for {
		expr, err := s.parseExpression()
		if err != nil {
			return nil, err
		}
		ret = append(ret, expr)
		if !s.accept("and") {
			return ret, nil
		}
	}
}

func (s *scanner) parseExpression() (Expression, error) {
	var expr Expression
	name := s.symbol()
	op, ok := operatorMap[name]
	if !ok {
		return expr, s.errorf("unknown function '%s'", name)
	}
	if err := s.expect('('); err != nil {
		return expr, err
	}
	name = s.symbol()
	prop, ok := propertyMap[name]
	if !ok {
		return expr, s.errorf("unknown property '%s'", name)
	}
	if isIntType(prop) && slices.Contains(stringOnlyOperators, op) {
		return expr, s.errorf("invalid function for property '%s'", name)
	}
	if err := s.expect(','); err != nil {
		return expr, err
	}
	values, err := s.parseValues(prop)
	if err != nil {
		return expr, err
	}
	if err = s.expect(')'); err != nil {
		return expr, err
	}
	return Expression{Op: op, Prop: prop, Values: values}, nil
}

func (s *scanner) parseValues(prop Property) ([]any, error) {
	var ret []any
	for {
		var val any
		var err error
		if isIntType(prop) {
			val, err = s.number()
		} else {
			val, err = s.quoted()
			if err == nil && isCaseInsensitive(prop) {
				val = strings.ToLower(val.(string))
			}
		}
		if err != nil {
			return nil, err
		}
		ret = append(ret, val)
		if s.skipSpace(); s.atEnd() || s.peek() != ',' {
			return ret, nil
		}
		s.pos++
	}
}

func (s *scanner) number() (int, error) {
	s.skipSpace()
	start := s.pos
	for !s.atEnd() && unicode.IsDigit(s.peek()) {
		s.pos++
	}
	val, err := strconv.Atoi(s.str[start:s.pos])
	if err != nil {
		return 0, s.errorf("value is not a number")
	}
	return val, nil
}

func (s *scanner) quoted() (string, error) {
	if err := s.expect('\''); err != nil {
		return "", s.errorf("value is not a string")
	}
	end := strings.IndexByte(s.str[s.pos:], '\'')
	if end < 0 {
		return "", s.errorf("unterminated string")
	}
	val := s.str[s.pos : s.pos+end]
	s.pos += end + 1
	return val, nil
}
