package wiring

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/wiregrid/internal/connspec"
	"github.com/vk/wiregrid/internal/ctxlog"
	"github.com/vk/wiregrid/internal/fsutil"
	"github.com/vk/wiregrid/internal/population"
)

type defaultsBlock struct {
	Rule         string `hcl:"rule,optional"`
	SynapseModel string `hcl:"synapse_model,optional"`
}

type spatialBlock struct {
	Shape     []int       `hcl:"shape,optional"`
	Extent    []float64   `hcl:"extent,optional"`
	Center    []float64   `hcl:"center,optional"`
	Positions [][]float64 `hcl:"positions,optional"`
}

type populationBlock struct {
	Model   string        `hcl:"model,optional"`
	Size    int           `hcl:"size"`
	Spatial *spatialBlock `hcl:"spatial,block"`
}

type connectBlock struct {
	ConnSpec         cty.Value `hcl:"conn_spec,optional"`
	SynSpec          cty.Value `hcl:"syn_spec,optional"`
	ReturnConnectome bool      `hcl:"return_connectome,optional"`
}

type cgConnectBlock struct {
	Generator        cty.Value `hcl:"generator"`
	ParameterMap     cty.Value `hcl:"parameter_map,optional"`
	SynapseModel     string    `hcl:"synapse_model,optional"`
	ReturnConnectome bool      `hcl:"return_connectome,optional"`
}

type disconnectBlock struct {
	ConnSpec cty.Value `hcl:"conn_spec,optional"`
	SynSpec  cty.Value `hcl:"syn_spec,optional"`
}

type queryBlock struct {
	Source       string `hcl:"source,optional"`
	Target       string `hcl:"target,optional"`
	SynapseModel string `hcl:"synapse_model,optional"`
	SynapseLabel *int   `hcl:"synapse_label,optional"`
}

type loader struct {
	parser        *hclparse.Parser
	plan          *Plan
	nextID        uint64
	defaultsRange *hcl.Range
}

func newLoader() *loader {
	return &loader{parser: hclparse.NewParser(), plan: newPlan(), nextID: 1}
}

// Load resolves paths to wiring files and loads them, in order, into one
// plan. Populations declared in earlier files are visible to later ones.
func Load(ctx context.Context, paths ...string) (*Plan, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := fsutil.FindWiringFiles(paths...)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s files found in %s", fsutil.WiringExt, strings.Join(paths, ", "))
	}

	l := newLoader()
	for _, file := range files {
		logger.Debug("Loading wiring file.", "file", file)
		f, diags := l.parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse wiring file %s: %w", file, diags)
		}
		if diags := l.load(f); diags.HasErrors() {
			return nil, fmt.Errorf("failed to load wiring file %s: %w", file, diags)
		}
		l.plan.Files = append(l.plan.Files, file)
	}

	logger.Info("Wiring plan loaded.",
		"files", len(l.plan.Files),
		"populations", len(l.plan.Populations),
		"steps", len(l.plan.Steps),
	)
	return l.plan, nil
}

// LoadSource loads a single in-memory wiring file. filename is only used
// in diagnostics.
func LoadSource(ctx context.Context, filename string, src []byte) (*Plan, error) {
	l := newLoader()
	f, diags := l.parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse wiring file %s: %w", filename, diags)
	}
	if diags := l.load(f); diags.HasErrors() {
		return nil, fmt.Errorf("failed to load wiring file %s: %w", filename, diags)
	}
	l.plan.Files = append(l.plan.Files, filename)
	ctxlog.FromContext(ctx).Debug("Wiring source loaded.", "file", filename, "steps", len(l.plan.Steps))
	return l.plan, nil
}

// load walks the top-level blocks of one file in source order. Loading
// stops at the first failing block since later blocks may refer to it.
func (l *loader) load(f *hcl.File) hcl.Diagnostics {
	body, ok := f.Body.(*hclsyntax.Body)
	if !ok {
		return hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Unsupported wiring syntax",
			Detail:   "Wiring files must use native HCL syntax.",
		}}
	}

	if len(body.Attributes) > 0 {
		var diags hcl.Diagnostics
		names := make([]string, 0, len(body.Attributes))
		for name := range body.Attributes {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Unexpected attribute",
				Detail:   fmt.Sprintf("Attribute %q is not allowed at the top level of a wiring file.", name),
				Subject:  body.Attributes[name].SrcRange.Ptr(),
			})
		}
		return diags
	}

	for _, block := range body.Blocks {
		var diags hcl.Diagnostics
		switch block.Type {
		case "defaults":
			diags = l.defaults(block)
		case "population":
			diags = l.population(block)
		case "connect":
			diags = l.connect(block)
		case "cg_connect":
			diags = l.cgConnect(block)
		case "disconnect":
			diags = l.disconnect(block)
		case "query":
			diags = l.query(block)
		default:
			diags = hcl.Diagnostics{{
				Severity: hcl.DiagError,
				Summary:  "Unsupported block type",
				Detail:   fmt.Sprintf("Blocks of type %q are not expected here.", block.Type),
				Subject:  block.TypeRange.Ptr(),
			}}
		}
		if diags.HasErrors() {
			return diags
		}
	}
	return nil
}

func (l *loader) defaults(block *hclsyntax.Block) hcl.Diagnostics {
	if diags := wantLabels(block); diags.HasErrors() {
		return diags
	}
	if l.defaultsRange != nil {
		return hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  `Duplicate "defaults" block`,
			Detail:   fmt.Sprintf("Only one \"defaults\" block is allowed; the first one is at %s.", l.defaultsRange),
			Subject:  block.DefRange().Ptr(),
		}}
	}

	var db defaultsBlock
	if diags := gohcl.DecodeBody(block.Body, l.evalContext(), &db); diags.HasErrors() {
		return diags
	}
	if db.Rule != "" {
		rule, err := connspec.ParseRule(db.Rule)
		if err != nil {
			return hcl.Diagnostics{{
				Severity: hcl.DiagError,
				Summary:  "Invalid default rule",
				Detail:   err.Error(),
				Subject:  attrRange(block, "rule"),
			}}
		}
		l.plan.Defaults.Rule = rule
	}
	l.plan.Defaults.SynapseModel = db.SynapseModel

	r := block.DefRange()
	l.defaultsRange = &r
	return nil
}

func (l *loader) population(block *hclsyntax.Block) hcl.Diagnostics {
	if diags := wantLabels(block, "name"); diags.HasErrors() {
		return diags
	}
	name := block.Labels[0]
	if prev, ok := l.plan.byName[name]; ok {
		return hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Duplicate population",
			Detail:   fmt.Sprintf("Population %q was already declared at %s.", name, prev.DeclRange),
			Subject:  block.LabelRanges[0].Ptr(),
		}}
	}

	var pb populationBlock
	if diags := gohcl.DecodeBody(block.Body, l.evalContext(), &pb); diags.HasErrors() {
		return diags
	}
	if pb.Size < 0 {
		return hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Invalid population size",
			Detail:   fmt.Sprintf("Population size must be non-negative, got %d.", pb.Size),
			Subject:  attrRange(block, "size"),
		}}
	}

	var sp *population.Spatial
	if pb.Spatial != nil {
		var diags hcl.Diagnostics
		sp, diags = spatialMeta(block, pb.Size, pb.Spatial)
		if diags.HasErrors() {
			return diags
		}
	}

	coll, err := population.NewRange(l.nextID, pb.Size, sp)
	if err != nil {
		return hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Invalid population",
			Detail:   err.Error(),
			Subject:  block.DefRange().Ptr(),
		}}
	}
	l.nextID += uint64(pb.Size)

	pop := &Population{Name: name, Model: pb.Model, Collection: coll, DeclRange: block.DefRange()}
	l.plan.Populations = append(l.plan.Populations, pop)
	l.plan.byName[name] = pop
	return nil
}

func spatialMeta(block *hclsyntax.Block, size int, sb *spatialBlock) (*population.Spatial, hcl.Diagnostics) {
	invalid := func(detail string) hcl.Diagnostics {
		return hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Invalid spatial block",
			Detail:   detail,
			Subject:  block.DefRange().Ptr(),
		}}
	}

	switch {
	case len(sb.Shape) == 0 && len(sb.Positions) == 0:
		return nil, invalid("A spatial block needs either shape or positions.")
	case len(sb.Shape) > 0 && len(sb.Positions) > 0:
		return nil, invalid("A spatial block takes shape or positions, not both.")
	case len(sb.Shape) > 0:
		cells := 1
		for _, n := range sb.Shape {
			cells *= n
		}
		if cells != size {
			return nil, invalid(fmt.Sprintf("Grid shape %v holds %d elements but the population has %d.", sb.Shape, cells, size))
		}
	default:
		if len(sb.Positions) != size {
			return nil, invalid(fmt.Sprintf("Got %d positions for a population of %d.", len(sb.Positions), size))
		}
	}

	return &population.Spatial{
		Shape:     sb.Shape,
		Extent:    sb.Extent,
		Center:    sb.Center,
		Positions: sb.Positions,
	}, nil
}

func (l *loader) connect(block *hclsyntax.Block) hcl.Diagnostics {
	if diags := l.sides(block); diags.HasErrors() {
		return diags
	}
	var cb connectBlock
	if diags := gohcl.DecodeBody(block.Body, l.evalContext(), &cb); diags.HasErrors() {
		return diags
	}
	l.plan.Steps = append(l.plan.Steps, Step{
		Kind:             StepConnect,
		Pre:              block.Labels[0],
		Post:             block.Labels[1],
		ConnSpec:         cb.ConnSpec,
		SynSpec:          cb.SynSpec,
		ReturnConnectome: cb.ReturnConnectome,
		DeclRange:        block.DefRange(),
	})
	return nil
}

func (l *loader) cgConnect(block *hclsyntax.Block) hcl.Diagnostics {
	if diags := l.sides(block); diags.HasErrors() {
		return diags
	}
	var cb cgConnectBlock
	if diags := gohcl.DecodeBody(block.Body, l.evalContext(), &cb); diags.HasErrors() {
		return diags
	}
	l.plan.Steps = append(l.plan.Steps, Step{
		Kind:             StepCGConnect,
		Pre:              block.Labels[0],
		Post:             block.Labels[1],
		Generator:        cb.Generator,
		ParameterMap:     cb.ParameterMap,
		SynapseModel:     cb.SynapseModel,
		ReturnConnectome: cb.ReturnConnectome,
		DeclRange:        block.DefRange(),
	})
	return nil
}

func (l *loader) disconnect(block *hclsyntax.Block) hcl.Diagnostics {
	if diags := l.sides(block); diags.HasErrors() {
		return diags
	}
	var db disconnectBlock
	if diags := gohcl.DecodeBody(block.Body, l.evalContext(), &db); diags.HasErrors() {
		return diags
	}
	l.plan.Steps = append(l.plan.Steps, Step{
		Kind:      StepDisconnect,
		Pre:       block.Labels[0],
		Post:      block.Labels[1],
		ConnSpec:  db.ConnSpec,
		SynSpec:   db.SynSpec,
		DeclRange: block.DefRange(),
	})
	return nil
}

// sides checks the "pre" "post" labels of connect, cg_connect and
// disconnect blocks.
func (l *loader) sides(block *hclsyntax.Block) hcl.Diagnostics {
	if diags := wantLabels(block, "pre", "post"); diags.HasErrors() {
		return diags
	}
	var diags hcl.Diagnostics
	for i, name := range block.Labels {
		if _, ok := l.plan.byName[name]; !ok {
			diags = append(diags, unknownPopulation(name, block.LabelRanges[i].Ptr()))
		}
	}
	return diags
}

func (l *loader) query(block *hclsyntax.Block) hcl.Diagnostics {
	if diags := wantLabels(block, "name"); diags.HasErrors() {
		return diags
	}
	var qb queryBlock
	if diags := gohcl.DecodeBody(block.Body, l.evalContext(), &qb); diags.HasErrors() {
		return diags
	}

	var diags hcl.Diagnostics
	for _, side := range [...]struct{ attr, name string }{{"source", qb.Source}, {"target", qb.Target}} {
		if side.name == "" {
			continue
		}
		if _, ok := l.plan.byName[side.name]; !ok {
			diags = append(diags, unknownPopulation(side.name, attrRange(block, side.attr)))
		}
	}
	if diags.HasErrors() {
		return diags
	}

	l.plan.Steps = append(l.plan.Steps, Step{
		Kind: StepQuery,
		Query: &Query{
			Name:         block.Labels[0],
			Source:       qb.Source,
			Target:       qb.Target,
			SynapseModel: qb.SynapseModel,
			SynapseLabel: qb.SynapseLabel,
		},
		DeclRange: block.DefRange(),
	})
	return nil
}

func wantLabels(block *hclsyntax.Block, names ...string) hcl.Diagnostics {
	if len(block.Labels) == len(names) {
		return nil
	}
	detail := fmt.Sprintf("A %q block takes no labels.", block.Type)
	if len(names) > 0 {
		detail = fmt.Sprintf("A %q block takes %d label(s): %s.", block.Type, len(names), strings.Join(names, ", "))
	}
	return hcl.Diagnostics{{
		Severity: hcl.DiagError,
		Summary:  fmt.Sprintf("Invalid %s block", block.Type),
		Detail:   detail,
		Subject:  block.DefRange().Ptr(),
	}}
}

func unknownPopulation(name string, subject *hcl.Range) *hcl.Diagnostic {
	return &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  "Unknown population",
		Detail:   fmt.Sprintf("No population %q has been declared before this block.", name),
		Subject:  subject,
	}
}

// attrRange points at an attribute of the block, or at the block itself.
func attrRange(block *hclsyntax.Block, name string) *hcl.Range {
	if attr, ok := block.Body.Attributes[name]; ok {
		return attr.SrcRange.Ptr()
	}
	return block.DefRange().Ptr()
}
