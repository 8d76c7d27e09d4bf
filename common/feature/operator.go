package feature

import "fmt"

// Operator compares a stored feature value with a search value
type Operator string

const (
	OpEq      Operator = "="
	OpNe      Operator = "<>"
	OpLt      Operator = "<"
	OpLe      Operator = "<="
	OpGt      Operator = ">"
	OpGe      Operator = ">="
	OpLike    Operator = "~"
	OpNotLike Operator = "!~"
)

var operatorsByType = map[Type][]Operator{
	TypeString:  {OpEq, OpNe, OpLike, OpNotLike},
	TypeInteger: {OpEq, OpNe, OpLt, OpLe, OpGt, OpGe},
	TypeDouble:  {OpEq, OpNe, OpLt, OpLe, OpGt, OpGe},
	TypeEnum:    {OpEq, OpNe},
}

// ParseOperator accepts the textual operators of the search language
func ParseOperator(s string) (Operator, error) {
	switch op := Operator(s); op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpLike, OpNotLike:
		return op, nil
	}
	return "", fmt.Errorf("unknown operator: %q", s)
}

// Supports reports whether op may compare values of type t
func (op Operator) Supports(t Type) bool {
	for _, allowed := range operatorsByType[t] {
		if allowed == op {
			return true
		}
	}
	return false
}

// SQL is the SQL comparison the operator translates to
func (op Operator) SQL() string {
	switch op {
	case OpLike:
		return "LIKE"
	case OpNotLike:
		return "NOT LIKE"
	default:
		return string(op)
	}
}
