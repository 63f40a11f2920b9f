package wiring

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// functions are callable from any expression in a wiring file.
var functions = map[string]function.Function{
	"abs":       stdlib.AbsoluteFunc,
	"chunklist": stdlib.ChunklistFunc,
	"concat":    stdlib.ConcatFunc,
	"flatten":   stdlib.FlattenFunc,
	"length":    stdlib.LengthFunc,
	"max":       stdlib.MaxFunc,
	"min":       stdlib.MinFunc,
	"range":     stdlib.RangeFunc,
}

// evalContext exposes every population declared so far as
// population.<name>.{size,first_id,last_id}.
func (l *loader) evalContext() *hcl.EvalContext {
	vars := map[string]cty.Value{}
	if len(l.plan.Populations) > 0 {
		pops := make(map[string]cty.Value, len(l.plan.Populations))
		for _, p := range l.plan.Populations {
			ids := p.Collection.IDs()
			first, last := int64(0), int64(0)
			if len(ids) > 0 {
				first, last = int64(ids[0]), int64(ids[len(ids)-1])
			}
			pops[p.Name] = cty.ObjectVal(map[string]cty.Value{
				"size":     cty.NumberIntVal(int64(len(ids))),
				"first_id": cty.NumberIntVal(first),
				"last_id":  cty.NumberIntVal(last),
			})
		}
		vars["population"] = cty.ObjectVal(pops)
	}
	return &hcl.EvalContext{Variables: vars, Functions: functions}
}
