package app

import (
	"encoding/json"
	"io"

	"github.com/vk/wiregrid/internal/connectome"
	"github.com/vk/wiregrid/internal/wiring"
)

// Report summarizes one run.
type Report struct {
	Engine      string             `json:"engine"`
	Files       []string           `json:"files"`
	Populations []PopulationReport `json:"populations"`
	Steps       []StepReport       `json:"steps"`
}

// PopulationReport describes the identifiers given to a population.
type PopulationReport struct {
	Name    string `json:"name"`
	Model   string `json:"model,omitempty"`
	Size    int    `json:"size"`
	FirstID uint64 `json:"first_id,omitempty"`
	LastID  uint64 `json:"last_id,omitempty"`
	Spatial bool   `json:"spatial,omitempty"`
}

// StepReport is the outcome of one executed step. Connections is set for
// queries and for connect steps that ask for their connectome.
type StepReport struct {
	Step        string                 `json:"step"`
	Kind        string                 `json:"kind"`
	Count       *int                   `json:"count,omitempty"`
	Connections *connectome.Connectome `json:"connections,omitempty"`
}

func populationReports(plan *wiring.Plan) []PopulationReport {
	out := make([]PopulationReport, 0, len(plan.Populations))
	for _, p := range plan.Populations {
		pr := PopulationReport{
			Name:    p.Name,
			Model:   p.Model,
			Size:    p.Collection.Len(),
			Spatial: p.Collection.HasSpatial(),
		}
		if pr.Size > 0 {
			pr.FirstID = p.Collection.At(0)
			pr.LastID = p.Collection.At(pr.Size - 1)
		}
		out = append(out, pr)
	}
	return out
}

func (r *Report) write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
