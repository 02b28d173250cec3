package analysis

import (
	"encoding/json"

	"github.com/banshee-data/charges.report/internal/db"
	"github.com/banshee-data/charges.report/internal/regression"
)

// Record converts the result into a run for the history store. cfg is
// stored verbatim when non-nil.
func (r *Result) Record(cfg any) (*db.Run, error) {
	run := &db.Run{
		DataPath:        r.DataPath,
		Observations:    r.Observations,
		ReferenceLevel:  r.Interaction.Encoder().Reference(),
		ConfidenceLevel: r.Interaction.ConfidenceLevel,
		Comparison: db.Comparison{
			F:                r.Comparison.F,
			DF1:              r.Comparison.DF1,
			DF2:              r.Comparison.DF2,
			PValue:           r.Comparison.PValue,
			DeltaAIC:         r.Comparison.DeltaAIC,
			DeltaBIC:         r.Comparison.DeltaBIC,
			DeltaAdjRSquared: r.Comparison.DeltaAdjRSq,
		},
		Models: []db.ModelSummary{modelSummary(r.Additive), modelSummary(r.Interaction)},
	}
	if cfg != nil {
		raw, err := json.Marshal(cfg)
		if err != nil {
			return nil, err
		}
		run.ConfigJSON = raw
	}
	for _, p := range r.Predictions {
		run.Predictions = append(run.Predictions, db.PredictionRow{
			Age: p.Age, Group: p.Group, Fit: p.Fit, Low: p.Low, High: p.High,
		})
	}
	return run, nil
}

func modelSummary(m *regression.Model) db.ModelSummary {
	s := db.ModelSummary{
		Name:        m.Formula.Name,
		Formula:     m.Formula.String(),
		N:           m.N,
		DFResidual:  m.DFResidual,
		RSS:         m.RSS,
		RSquared:    m.RSquared,
		AdjRSquared: m.AdjRSquared,
		LogLik:      m.LogLik,
		AIC:         m.AIC,
		BIC:         m.BIC,
	}
	for _, c := range m.Coefficients {
		s.Coefficients = append(s.Coefficients, db.CoefficientRow{
			Term:     c.Term,
			Estimate: c.Estimate,
			StdErr:   c.StdErr,
			TValue:   c.TValue,
			PValue:   c.PValue,
			CILow:    c.CILow,
			CIHigh:   c.CIHigh,
		})
	}
	return s
}
