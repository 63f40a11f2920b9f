package synspec

import (
	"fmt"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/wiregrid/internal/ctyconv"
)

// Param is one synapse parameter value: a Scalar, an *Array, a
// Distribution or an opaque Object.
type Param interface {
	// Native returns the engine-native form of the value.
	Native() (any, error)
	param()
}

// Scalar is a single primitive value (number, string or bool).
type Scalar struct {
	Value cty.Value
}

func (Scalar) param() {}

// Native implements Param.
func (s Scalar) Native() (any, error) { return ctyconv.ToNative(s.Value) }

// Array is a dense numeric array stored in row-major order.
type Array struct {
	Shape []int
	Data  []float64
}

func (*Array) param() {}

// Native implements Param. Arrays are shipped as their flat data.
func (a *Array) Native() (any, error) { return append([]float64(nil), a.Data...), nil }

// Rank returns the number of dimensions.
func (a *Array) Rank() int { return len(a.Shape) }

// Flatten linearizes the array in row-major order: for a 2-D array row 0
// comes first, then row 1, and so on.
func (a *Array) Flatten() *Array {
	return &Array{Shape: []int{len(a.Data)}, Data: a.Data}
}

// ShapeString renders the shape as "10x2".
func (a *Array) ShapeString() string {
	parts := make([]string, len(a.Shape))
	for i, d := range a.Shape {
		parts[i] = fmt.Sprint(d)
	}
	return strings.Join(parts, "x")
}

// Distribution names an engine-side random-variate generator.
type Distribution struct {
	Name   string
	Params map[string]cty.Value
}

func (Distribution) param() {}

// Native implements Param.
func (d Distribution) Native() (any, error) {
	out := map[string]any{KeyDistribution: d.Name}
	for _, k := range ctyconv.SortedKeys(d.Params) {
		v, err := ctyconv.ToNative(d.Params[k])
		if err != nil {
			return nil, fmt.Errorf("distribution parameter '%s': %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// Object is any other structured value, e.g. a parameter object handed to
// the engine opaquely.
type Object struct {
	Value cty.Value
}

func (Object) param() {}

// Native implements Param.
func (o Object) Native() (any, error) { return ctyconv.ToNative(o.Value) }
