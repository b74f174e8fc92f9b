package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/soyeahso/agentos/internal/domain"
	"github.com/soyeahso/agentos/internal/logging"
	"github.com/tidwall/gjson"
)

// Data-processor operations.
const (
	OpCount  = "count"
	OpSum    = "sum"
	OpAvg    = "avg"
	OpMin    = "min"
	OpMax    = "max"
	OpSelect = "select"
	OpFilter = "filter"
)

// DataProcessor aggregates or reshapes JSON data carried in the task.
//
// Task fields:
//
//	data       any JSON value, or a string holding JSON
//	operation  count | sum | avg | min | max | select | filter (default count)
//	path       gjson path selecting the collection inside data (default: data itself)
//	field      gjson path applied to each element
//	equals     filter: keep elements whose field equals this value
type DataProcessor struct {
	log *logging.Logger
}

// NewDataProcessor creates the data-processor handler.
func NewDataProcessor(log *logging.Logger) *DataProcessor {
	return &DataProcessor{log: log.Sub("data-processor")}
}

func (d *DataProcessor) Name() string { return "data-processor" }

func (d *DataProcessor) Execute(ctx context.Context, cfg map[string]any, task domain.Task) (any, error) {
	raw, ok := task["data"]
	if !ok {
		return nil, errors.New("task.data is required")
	}

	doc, err := toJSON(raw)
	if err != nil {
		return nil, err
	}

	if err := sleep(ctx, latency(cfg)); err != nil {
		return nil, err
	}

	target := gjson.ParseBytes(doc)
	if path := task.String("path"); path != "" {
		target = target.Get(path)
		if !target.Exists() {
			return nil, fmt.Errorf("path %q matched nothing", path)
		}
	}

	op := stringOption(task, "operation", OpCount)
	field := task.String("field")
	elems := elements(target)

	d.log.Debug().Str("operation", op).Int("elements", len(elems)).Msg("processing data")

	result := map[string]any{
		"operation": op,
		"records":   len(elems),
	}

	switch op {
	case OpCount:
		if field == "" {
			result["value"] = len(elems)
			break
		}
		n := 0
		for _, e := range elems {
			if e.Get(field).Exists() {
				n++
			}
		}
		result["value"] = n

	case OpSum, OpAvg, OpMin, OpMax:
		nums, err := numbers(elems, field)
		if err != nil {
			return nil, err
		}
		v, err := aggregate(op, nums)
		if err != nil {
			return nil, err
		}
		result["value"] = v

	case OpSelect:
		values := make([]any, 0, len(elems))
		for _, e := range elems {
			if field != "" {
				e = e.Get(field)
			}
			values = append(values, e.Value())
		}
		result["value"] = values

	case OpFilter:
		if field == "" {
			return nil, errors.New("filter requires task.field")
		}
		want, hasWant := task["equals"]
		if hasWant {
			want, err = normalize(want)
			if err != nil {
				return nil, err
			}
		}
		kept := make([]any, 0, len(elems))
		for _, e := range elems {
			v := e.Get(field)
			if hasWant {
				if !reflect.DeepEqual(v.Value(), want) {
					continue
				}
			} else if !truthy(v) {
				continue
			}
			kept = append(kept, e.Value())
		}
		result["value"] = kept
		result["matched"] = len(kept)

	default:
		return nil, fmt.Errorf("unsupported operation %q", op)
	}

	return result, nil
}

func toJSON(v any) ([]byte, error) {
	if s, ok := v.(string); ok {
		if !gjson.Valid(s) {
			return nil, errors.New("task.data is not valid JSON")
		}
		return []byte(s), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding task.data: %w", err)
	}
	return b, nil
}

// normalize round-trips v through JSON so it compares equal to gjson values.
func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding comparison value: %w", err)
	}
	return gjson.ParseBytes(b).Value(), nil
}

// elements returns the members of an array, the values of an object, or
// the value itself.
func elements(r gjson.Result) []gjson.Result {
	switch {
	case !r.Exists():
		return nil
	case r.IsArray():
		return r.Array()
	case r.IsObject():
		var out []gjson.Result
		r.ForEach(func(_, v gjson.Result) bool {
			out = append(out, v)
			return true
		})
		return out
	default:
		return []gjson.Result{r}
	}
}

func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.True, gjson.JSON:
		return true
	case gjson.Number:
		return r.Num != 0
	case gjson.String:
		return r.Str != ""
	default:
		return false
	}
}

func numbers(elems []gjson.Result, field string) ([]float64, error) {
	out := make([]float64, 0, len(elems))
	for i, e := range elems {
		if field != "" {
			e = e.Get(field)
		}
		if e.Type != gjson.Number {
			return nil, fmt.Errorf("element %d: %q is not a number", i, e.Raw)
		}
		out = append(out, e.Float())
	}
	return out, nil
}

func aggregate(op string, nums []float64) (float64, error) {
	if op == OpSum {
		var sum float64
		for _, n := range nums {
			sum += n
		}
		return sum, nil
	}
	if len(nums) == 0 {
		return 0, fmt.Errorf("%s of an empty collection", op)
	}

	switch op {
	case OpAvg:
		var sum float64
		for _, n := range nums {
			sum += n
		}
		return sum / float64(len(nums)), nil
	case OpMin:
		v := math.Inf(1)
		for _, n := range nums {
			v = math.Min(v, n)
		}
		return v, nil
	default:
		v := math.Inf(-1)
		for _, n := range nums {
			v = math.Max(v, n)
		}
		return v, nil
	}
}
