package types

import (
	"regexp"
	"time"

	"gorm.io/gorm/clause"
)

type CommonFilterOperator string

const (
	CommonFilterOperatorEq    CommonFilterOperator = "eq"
	CommonFilterOperatorNotEq CommonFilterOperator = "not_eq"
	CommonFilterOperatorLt    CommonFilterOperator = "lt"
	CommonFilterOperatorLte   CommonFilterOperator = "lte"
	CommonFilterOperatorGt    CommonFilterOperator = "gt"
	CommonFilterOperatorGte   CommonFilterOperator = "gte"
	// CommonFilterOperatorDateRange takes two YYYY-MM-DD days, both inclusive.
	CommonFilterOperatorDateRange CommonFilterOperator = "date_range"
	CommonFilterOperatorRange     CommonFilterOperator = "range"
	CommonFilterOperatorIn        CommonFilterOperator = "in"
)

const filterDateLayout = "2006-01-02"

var filterFieldPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// CommonFilter is the admin list/statistic filter. Field must be a plain
// column name; anything else is ignored when building.
type CommonFilter struct {
	Field    string               `json:"field"`
	Operator CommonFilterOperator `json:"operator"`
	Values   []any                `json:"values"`
}

func (f *CommonFilter) Valid() bool {
	return f != nil && len(f.Values) > 0 && filterFieldPattern.MatchString(f.Field)
}

// Build constructs a GORM expression.
func (f *CommonFilter) Build(builder clause.Builder) {
	if !f.Valid() {
		builder.WriteString("1=1")
		return
	}

	value := f.Values[0]
	switch f.Operator {
	case CommonFilterOperatorEq:
		clause.Eq{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorNotEq:
		clause.Neq{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorLt:
		clause.Lt{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorLte:
		clause.Lte{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorGt:
		clause.Gt{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorGte:
		clause.Gte{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorRange:
		if len(f.Values) < 2 {
			builder.WriteString("1=1")
			return
		}
		clause.And(clause.Gte{Column: f.Field, Value: f.Values[0]}, clause.Lte{Column: f.Field, Value: f.Values[1]}).Build(builder)
	case CommonFilterOperatorDateRange:
		from, to, ok := f.dayBounds()
		if !ok {
			builder.WriteString("1=1")
			return
		}
		clause.And(clause.Gte{Column: f.Field, Value: from}, clause.Lt{Column: f.Field, Value: to}).Build(builder)
	case CommonFilterOperatorIn:
		clause.IN{Column: f.Field, Values: f.Values}.Build(builder)
	default:
		builder.WriteString("1=1")
	}
}

// dayBounds returns [from 00:00, day after to 00:00) in UTC.
func (f *CommonFilter) dayBounds() (time.Time, time.Time, bool) {
	if len(f.Values) < 2 {
		return time.Time{}, time.Time{}, false
	}
	fromStr, ok1 := f.Values[0].(string)
	toStr, ok2 := f.Values[1].(string)
	if !ok1 || !ok2 {
		return time.Time{}, time.Time{}, false
	}
	from, err := time.Parse(filterDateLayout, fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	to, err := time.Parse(filterDateLayout, toStr)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return from, to.AddDate(0, 0, 1), true
}
