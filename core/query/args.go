package query

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/artpar/tablecrud/core/filter"
	"github.com/artpar/tablecrud/core/schema"
)

// ArgError reports an unusable control parameter value.
type ArgError struct {
	Param  string `json:"param"`
	Value  any    `json:"value"`
	Reason string `json:"reason"`
}

func (e *ArgError) Error() string {
	return fmt.Sprintf("parameter %s=%v: %s", e.Param, e.Value, e.Reason)
}

// BuildArgs reads where, limit, offset and order from params.
// A malformed where clause is returned as a *filter.ParseError.
func BuildArgs(params map[string]any) (Args, error) {
	var args Args

	where, err := stringParam(params, ParamWhere)
	if err != nil {
		return Args{}, err
	}
	if args.Where, err = filter.ParseWhere(where); err != nil {
		return Args{}, err
	}

	if args.Limit, err = intParam(params, ParamLimit); err != nil {
		return Args{}, err
	}
	if args.Offset, err = intParam(params, ParamOffset); err != nil {
		return Args{}, err
	}
	if args.Order, err = stringParam(params, ParamOrder); err != nil {
		return Args{}, err
	}

	return args, nil
}

// BuildReadArgs is BuildArgs followed by one equality predicate for each
// parameter that names a schema field, in schema declaration order.
// Keys that are neither fields nor control parameters are ignored.
func BuildReadArgs(s *schema.Schema, params map[string]any) (Args, error) {
	args, err := BuildArgs(params)
	if err != nil {
		return Args{}, err
	}

	for _, name := range s.Names() {
		v, ok := params[name]
		if !ok {
			continue
		}
		args.Where = append(args.Where, filter.Eq(name, fmt.Sprintf("%v", v)))
	}

	return args, nil
}

// OrderTerm is one parsed element of Args.Order.
type OrderTerm struct {
	Field string
	Desc  bool
}

// ParseOrder parses an order expression such as "id desc, real" and checks
// every field against the schema.
func ParseOrder(s *schema.Schema, order string) ([]OrderTerm, error) {
	if strings.TrimSpace(order) == "" {
		return nil, nil
	}

	var terms []OrderTerm
	for _, part := range strings.Split(order, ",") {
		words := strings.Fields(part)
		if len(words) == 0 || len(words) > 2 {
			return nil, &ArgError{Param: ParamOrder, Value: order, Reason: fmt.Sprintf("malformed term %q", part)}
		}

		term := OrderTerm{Field: words[0]}
		if !s.Has(term.Field) {
			return nil, &ArgError{Param: ParamOrder, Value: order, Reason: fmt.Sprintf("unknown field %q", term.Field)}
		}

		if len(words) == 2 {
			switch strings.ToLower(words[1]) {
			case "asc":
			case "desc":
				term.Desc = true
			default:
				return nil, &ArgError{Param: ParamOrder, Value: order, Reason: fmt.Sprintf("unknown direction %q", words[1])}
			}
		}
		terms = append(terms, term)
	}

	return terms, nil
}

func stringParam(params map[string]any, name string) (string, error) {
	v, ok := params[name]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &ArgError{Param: name, Value: v, Reason: "must be a string"}
	}
	return s, nil
}

func intParam(params map[string]any, name string) (*int, error) {
	v, ok := params[name]
	if !ok || v == nil {
		return nil, nil
	}

	var n int
	switch x := v.(type) {
	case string:
		if x == "" {
			return nil, nil
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return nil, &ArgError{Param: name, Value: v, Reason: "must be an integer"}
		}
		n = parsed
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return nil, &ArgError{Param: name, Value: v, Reason: "must be an integer"}
		}
		n = int(x)
	case int:
		n = x
	default:
		return nil, &ArgError{Param: name, Value: v, Reason: "must be an integer"}
	}

	if n < 0 {
		return nil, &ArgError{Param: name, Value: v, Reason: "must not be negative"}
	}
	return &n, nil
}
