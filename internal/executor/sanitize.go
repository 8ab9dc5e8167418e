package executor

import (
	"math"
	"reflect"

	"github.com/mTatsuro/llm-data-visualizer/internal/dataset"
)

// Sanitize replaces every NaN and ±Inf reachable from v with nil and returns
// the result. Records, []any and map[string]any are rewritten in place; other
// slices and maps are copied into []any and map[string]any.
func Sanitize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return x
	case float32:
		if f := float64(x); math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return x
	case *float64:
		if x == nil {
			return nil
		}
		return Sanitize(*x)
	case string, bool, int, int64, int32:
		return x
	case dataset.Record:
		for i := range x {
			x[i].Value = Sanitize(x[i].Value)
		}
		return x
	case []dataset.Record:
		for _, r := range x {
			Sanitize(r)
		}
		return x
	case []any:
		for i := range x {
			x[i] = Sanitize(x[i])
		}
		return x
	case map[string]any:
		for k, e := range x {
			x[k] = Sanitize(e)
		}
		return x
	case *Payload:
		Sanitize(x.Data)
		if x.Insights != nil && x.Insights.PearsonCorrelation != nil && Sanitize(*x.Insights.PearsonCorrelation) == nil {
			x.Insights = nil
		}
		return x
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Sanitize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		it := rv.MapRange()
		for it.Next() {
			out[it.Key().String()] = Sanitize(it.Value().Interface())
		}
		return out
	case reflect.Float32, reflect.Float64:
		if f := rv.Float(); math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
	}
	return v
}
