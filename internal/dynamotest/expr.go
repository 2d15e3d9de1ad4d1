package dynamotest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var comparators = []string{"<>", ">=", "<=", "=", ">", "<"}

// evalCondition evaluates a condition against item (nil means absent).
// An empty expression is always true.
func evalCondition(expr string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true, nil
	}
	for _, disjunct := range strings.Split(expr, " OR ") {
		all := true
		for _, clause := range strings.Split(disjunct, " AND ") {
			ok, err := evalClause(clause, item, names, values)
			if err != nil {
				return false, err
			}
			if !ok {
				all = false
				break
			}
		}
		if all {
			return true, nil
		}
	}
	return false, nil
}

func evalClause(clause string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	clause = strings.Trim(strings.TrimSpace(clause), "()")
	clause = strings.TrimSpace(clause)

	if arg, ok := call(clause, "attribute_not_exists"); ok {
		_, exists := item[resolveName(arg, names)]
		return !exists, nil
	}
	if arg, ok := call(clause, "attribute_exists"); ok {
		_, exists := item[resolveName(arg, names)]
		return exists, nil
	}

	for _, op := range comparators {
		i := strings.Index(clause, " "+op+" ")
		if i < 0 {
			continue
		}
		left := resolveName(clause[:i], names)
		right := strings.TrimSpace(clause[i+len(op)+2:])
		want, ok := values[right]
		if !ok {
			return false, fmt.Errorf("dynamotest: missing value %s in %q", right, clause)
		}
		got, exists := item[left]
		if !exists {
			return op == "<>", nil
		}
		c := compare(got, want)
		switch op {
		case "=":
			return c == 0, nil
		case "<>":
			return c != 0, nil
		case ">=":
			return c >= 0, nil
		case "<=":
			return c <= 0, nil
		case ">":
			return c > 0, nil
		case "<":
			return c < 0, nil
		}
	}
	return false, fmt.Errorf("dynamotest: unsupported clause %q", clause)
}

func call(clause, fn string) (string, bool) {
	if !strings.HasPrefix(clause, fn+"(") {
		return "", false
	}
	return strings.TrimSuffix(strings.TrimPrefix(clause, fn+"("), ")"), true
}

// compare orders two attribute values of the same kind; mismatched kinds
// compare by their string form.
func compare(a, b types.AttributeValue) int {
	switch av := a.(type) {
	case *types.AttributeValueMemberN:
		if bv, ok := b.(*types.AttributeValueMemberN); ok {
			x, _ := strconv.ParseFloat(av.Value, 64)
			y, _ := strconv.ParseFloat(bv.Value, 64)
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	case *types.AttributeValueMemberS:
		if bv, ok := b.(*types.AttributeValueMemberS); ok {
			return strings.Compare(av.Value, bv.Value)
		}
	case *types.AttributeValueMemberBOOL:
		if bv, ok := b.(*types.AttributeValueMemberBOOL); ok {
			if av.Value == bv.Value {
				return 0
			}
			if !av.Value {
				return -1
			}
			return 1
		}
	}
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

// applyUpdate supports "SET a = :x, #b = :y" optionally followed by
// "REMOVE c, d". The key attributes are kept on upsert.
func applyUpdate(expr string, current, key map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	next := clone(current)
	if next == nil {
		next = clone(key)
	}

	expr = strings.TrimSpace(expr)
	var setPart, removePart string
	if i := strings.Index(expr, "REMOVE "); i >= 0 {
		removePart = strings.TrimSpace(expr[i+len("REMOVE "):])
		expr = strings.TrimSpace(expr[:i])
	}
	if strings.HasPrefix(expr, "SET ") {
		setPart = strings.TrimPrefix(expr, "SET ")
	} else if expr != "" {
		return nil, fmt.Errorf("dynamotest: unsupported update expression %q", expr)
	}

	if setPart != "" {
		for _, assign := range strings.Split(setPart, ",") {
			parts := strings.SplitN(assign, "=", 2)
			if len(parts) != 2 {
				return nil, fmt.Errorf("dynamotest: bad assignment %q", assign)
			}
			name := resolveName(parts[0], names)
			ref := strings.TrimSpace(parts[1])
			v, ok := values[ref]
			if !ok {
				return nil, fmt.Errorf("dynamotest: unsupported value %q", ref)
			}
			next[name] = v
		}
	}
	if removePart != "" {
		for _, attr := range strings.Split(removePart, ",") {
			delete(next, resolveName(attr, names))
		}
	}
	return next, nil
}
