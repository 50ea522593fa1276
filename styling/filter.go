package styling

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/jamesrr39/goutil/errorsx"
)

const (
	FilterOperatorEquals    = "=="
	FilterOperatorNotEqual  = "!="
	FilterOperatorAny       = "any"
	FilterOperatorAll       = "all"
	FilterOperatorNone      = "none"
	FilterOperatorIn        = "in"
	FilterOperatorNotIn     = "!in"
	FilterOperatorHas       = "has"
	FilterOperatorNotHas    = "!has"
	FilterOperatorLess      = "<"
	FilterOperatorLessEq    = "<="
	FilterOperatorGreater   = ">"
	FilterOperatorGreaterEq = ">="
)

const (
	FilterThingType           = "$type"
	FilterThingTypePoint      = "Point"
	FilterThingTypeLineString = "LineString"
	FilterThingTypePolygon    = "Polygon"
)

/*
Filters come in two forms.

Expression:

	filter: ["all", ["==", "$type", "Polygon"], ["in", "kind", "park", "forest"]]

Map (every key must match, a list matches any of its values):

	filter: {kind: [park, forest], $type: Polygon}
*/
type Filter interface{}

// IsFeatureShown evaluates filter against a feature. A nil filter shows everything.
func IsFeatureShown(filter Filter, properties map[string]interface{}, geometryType string) (bool, errorsx.Error) {
	switch f := filter.(type) {
	case nil:
		return true, nil
	case map[string]interface{}:
		return isMapFilterShown(f, properties, geometryType)
	case []interface{}:
		return isExpressionShown(f, properties, geometryType)
	default:
		return false, errorsx.Errorf("unknown filter type: %T", filter)
	}
}

func isMapFilterShown(filter map[string]interface{}, properties map[string]interface{}, geometryType string) (bool, errorsx.Error) {
	keys := make([]string, 0, len(filter))
	for key := range filter {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		actual, ok := lookup(key, properties, geometryType)
		if !ok {
			return false, nil
		}

		switch wanted := filter[key].(type) {
		case []interface{}:
			if !containsValue(wanted, actual) {
				return false, nil
			}
		default:
			if !valuesEqual(wanted, actual) {
				return false, nil
			}
		}
	}

	return true, nil
}

func isExpressionShown(base []interface{}, properties map[string]interface{}, geometryType string) (bool, errorsx.Error) {
	if len(base) == 0 {
		return false, errorsx.Errorf("empty filter expression")
	}

	operator, ok := base[0].(string)
	if !ok {
		return false, errorsx.Errorf("filter operator must be a string, but was %T", base[0])
	}

	switch operator {
	case FilterOperatorAny, FilterOperatorAll, FilterOperatorNone:
		for _, sub := range base[1:] {
			shown, err := IsFeatureShown(sub, properties, geometryType)
			if err != nil {
				return false, err
			}
			switch {
			case operator == FilterOperatorAny && shown:
				return true, nil
			case operator == FilterOperatorAll && !shown:
				return false, nil
			case operator == FilterOperatorNone && shown:
				return false, nil
			}
		}
		return operator != FilterOperatorAny, nil
	}

	if len(base) < 2 {
		return false, errorsx.Errorf("filter %q needs a key", operator)
	}

	key, ok := base[1].(string)
	if !ok {
		return false, errorsx.Errorf("filter key must be a string, but was %T", base[1])
	}

	actual, hasKey := lookup(key, properties, geometryType)

	switch operator {
	case FilterOperatorHas:
		return hasKey, nil
	case FilterOperatorNotHas:
		return !hasKey, nil
	case FilterOperatorIn:
		return hasKey && containsValue(base[2:], actual), nil
	case FilterOperatorNotIn:
		return !hasKey || !containsValue(base[2:], actual), nil
	}

	if len(base) != 3 {
		return false, errorsx.Errorf("filter %q expects 3 items, but got %d", operator, len(base))
	}

	switch operator {
	case FilterOperatorEquals:
		return hasKey && valuesEqual(base[2], actual), nil
	case FilterOperatorNotEqual:
		return !hasKey || !valuesEqual(base[2], actual), nil
	case FilterOperatorLess, FilterOperatorLessEq, FilterOperatorGreater, FilterOperatorGreaterEq:
		if !hasKey {
			return false, nil
		}
		a, okA := toFloat(actual)
		b, okB := toFloat(base[2])
		if !okA || !okB {
			return false, nil
		}
		switch operator {
		case FilterOperatorLess:
			return a < b, nil
		case FilterOperatorLessEq:
			return a <= b, nil
		case FilterOperatorGreater:
			return a > b, nil
		default:
			return a >= b, nil
		}
	default:
		return false, errorsx.Errorf("unknown filter operator: %q", operator)
	}
}

func lookup(key string, properties map[string]interface{}, geometryType string) (interface{}, bool) {
	if key == FilterThingType {
		return geometryType, true
	}
	v, ok := properties[key]
	return v, ok
}

func containsValue(list []interface{}, actual interface{}) bool {
	for _, wanted := range list {
		if valuesEqual(wanted, actual) {
			return true
		}
	}
	return false
}

// valuesEqual compares loosely, so the YAML int 3 matches the GeoJSON number 3.0
func valuesEqual(a, b interface{}) bool {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		return fa == fb
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
