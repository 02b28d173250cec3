package regression

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/charges.report/internal/dataset"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultConfidenceLevel is used when FitOptions.ConfidenceLevel is zero.
const DefaultConfidenceLevel = 0.95

// rankTolerance is the size, relative to the 2-norm of its column in the
// design matrix, below which a diagonal element of R marks that column as
// linearly dependent on the ones before it.
const rankTolerance = 1e-7

// ErrRankDeficient is returned when the design matrix does not have full
// column rank. Terms are never dropped to recover.
var ErrRankDeficient = errors.New("design matrix is rank deficient")

// FitOptions tunes Fit.
type FitOptions struct {
	// Reference level of the factor. Empty selects the first level.
	Reference string
	// ConfidenceLevel for coefficient and prediction intervals, in (0, 1).
	ConfidenceLevel float64
}

// Coefficient is one estimated term.
type Coefficient struct {
	Term     string  `json:"term"`
	Estimate float64 `json:"estimate"`
	StdErr   float64 `json:"std_err"`
	TValue   float64 `json:"t_value"`
	PValue   float64 `json:"p_value"`
	CILow    float64 `json:"ci_low"`
	CIHigh   float64 `json:"ci_high"`
}

// Model is a fitted OLS model. It is read-only after Fit returns.
type Model struct {
	Formula         Formula       `json:"formula"`
	Coefficients    []Coefficient `json:"coefficients"`
	ConfidenceLevel float64       `json:"confidence_level"`

	N          int     `json:"n"`
	DFResidual int     `json:"df_residual"`
	RSS        float64 `json:"rss"`
	TSS        float64 `json:"tss"`
	Sigma      float64 `json:"sigma"`

	RSquared    float64 `json:"r_squared"`
	AdjRSquared float64 `json:"adj_r_squared"`
	LogLik      float64 `json:"log_lik"`
	AIC         float64 `json:"aic"`
	BIC         float64 `json:"bic"`

	encoder *Encoder
	// xtxInv is the unscaled covariance (XᵀX)⁻¹.
	xtxInv *mat.Dense
	tcrit  float64
}

// Fit estimates the formula on ds by least squares using a QR
// factorisation of the design matrix. ds must have been categorized.
func Fit(ds *dataset.Dataset, f Formula, opts FitOptions) (*Model, error) {
	level := opts.ConfidenceLevel
	if level == 0 {
		level = DefaultConfidenceLevel
	}
	if level <= 0 || level >= 1 {
		return nil, fmt.Errorf("confidence level must be in (0, 1), got %v", level)
	}

	factor, err := ds.Factor(f.Factor)
	if err != nil {
		return nil, err
	}
	enc, err := NewEncoder(f, factor, opts.Reference)
	if err != nil {
		return nil, err
	}

	y, err := ds.Numeric(f.Response)
	if err != nil {
		return nil, err
	}
	x, err := ds.Numeric(f.Numeric)
	if err != nil {
		return nil, err
	}
	groups, err := ds.Strings(f.Factor)
	if err != nil {
		return nil, err
	}

	n, p := len(y), enc.Width()
	if n <= p {
		return nil, fmt.Errorf("%w: %d observations for %d parameters", ErrRankDeficient, n, p)
	}

	design := mat.NewDense(n, p, nil)
	row := make([]float64, p)
	for i := 0; i < n; i++ {
		switch {
		case math.IsNaN(y[i]):
			return nil, fmt.Errorf("row %d: missing %s", i+1, f.Response)
		case math.IsNaN(x[i]):
			return nil, fmt.Errorf("row %d: missing %s", i+1, f.Numeric)
		case groups[i] == "":
			return nil, fmt.Errorf("row %d: missing %s", i+1, f.Factor)
		}
		if err := enc.RowTo(row, x[i], groups[i]); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		design.SetRow(i, row)
	}

	var qr mat.QR
	qr.Factorize(design)

	var r mat.Dense
	qr.RTo(&r)
	if err := checkRank(design, &r, enc.Terms()); err != nil {
		return nil, err
	}

	beta := mat.NewVecDense(p, nil)
	yv := mat.NewVecDense(n, y)
	if err := qr.SolveVecTo(beta, false, yv); err != nil && !isCondition(err) {
		return nil, fmt.Errorf("solve least squares: %w", err)
	}

	var rinv mat.Dense
	if err := rinv.Inverse(r.Slice(0, p, 0, p)); err != nil && !isCondition(err) {
		return nil, fmt.Errorf("invert R: %w", err)
	}
	var xtxInv mat.Dense
	xtxInv.Mul(&rinv, rinv.T())

	fitted := mat.NewVecDense(n, nil)
	fitted.MulVec(design, beta)
	var rss float64
	for i := 0; i < n; i++ {
		d := y[i] - fitted.AtVec(i)
		rss += d * d
	}
	mean := stat.Mean(y, nil)
	var tss float64
	for _, v := range y {
		tss += (v - mean) * (v - mean)
	}

	df := n - p
	sigma2 := rss / float64(df)
	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(df)}
	tcrit := tdist.Quantile(1 - (1-level)/2)

	m := &Model{
		Formula:         f,
		ConfidenceLevel: level,
		N:               n,
		DFResidual:      df,
		RSS:             rss,
		TSS:             tss,
		Sigma:           math.Sqrt(sigma2),
		encoder:         enc,
		xtxInv:          &xtxInv,
		tcrit:           tcrit,
	}

	for j, term := range enc.Terms() {
		est := beta.AtVec(j)
		se := math.Sqrt(sigma2 * xtxInv.At(j, j))
		tv := est / se
		m.Coefficients = append(m.Coefficients, Coefficient{
			Term:     term,
			Estimate: est,
			StdErr:   se,
			TValue:   tv,
			PValue:   2 * tdist.Survival(math.Abs(tv)),
			CILow:    est - tcrit*se,
			CIHigh:   est + tcrit*se,
		})
	}

	m.RSquared = 1 - rss/tss
	m.AdjRSquared = 1 - (1-m.RSquared)*float64(n-1)/float64(df)
	m.LogLik = LogLikelihood(rss, n)
	m.AIC = AIC(m.LogLik, m.NumParams())
	m.BIC = BIC(m.LogLik, m.NumParams(), n)
	return m, nil
}

// NumParams counts the estimated parameters used by the information
// criteria: the coefficients plus the error variance.
func (m *Model) NumParams() int { return len(m.Coefficients) + 1 }

// Terms returns the coefficient names in order.
func (m *Model) Terms() []string { return m.encoder.Terms() }

// Encoder returns the encoder the model was fitted with.
func (m *Model) Encoder() *Encoder { return m.encoder }

// Coefficient looks up a term by name.
func (m *Model) Coefficient(term string) (Coefficient, bool) {
	for _, c := range m.Coefficients {
		if c.Term == term {
			return c, true
		}
	}
	return Coefficient{}, false
}

// Estimates returns the coefficient vector in term order.
func (m *Model) Estimates() []float64 {
	out := make([]float64, len(m.Coefficients))
	for i, c := range m.Coefficients {
		out[i] = c.Estimate
	}
	return out
}

// LogLikelihood is the maximised Gaussian log-likelihood of a least
// squares fit with residual sum of squares rss over n observations.
func LogLikelihood(rss float64, n int) float64 {
	fn := float64(n)
	return -fn / 2 * (math.Log(2*math.Pi) + math.Log(rss/fn) + 1)
}

// AIC is -2·logLik + 2k.
func AIC(logLik float64, k int) float64 {
	return -2*logLik + 2*float64(k)
}

// BIC is -2·logLik + k·ln(n).
func BIC(logLik float64, k, n int) float64 {
	return -2*logLik + float64(k)*math.Log(float64(n))
}

// checkRank compares each |R_jj| with the norm of column j of x, so
// rescaling a column does not change the outcome.
func checkRank(x *mat.Dense, r *mat.Dense, terms []string) error {
	_, p := x.Dims()
	for j := 0; j < p; j++ {
		norm := mat.Norm(x.ColView(j), 2)
		if norm == 0 {
			return fmt.Errorf("%w: term %q is identically zero", ErrRankDeficient, terms[j])
		}
		if math.IsNaN(norm) || math.IsInf(norm, 0) {
			return fmt.Errorf("%w: term %q is not finite", ErrRankDeficient, terms[j])
		}
		if math.Abs(r.At(j, j)) <= rankTolerance*norm {
			return fmt.Errorf("%w: term %q is a linear combination of earlier terms", ErrRankDeficient, terms[j])
		}
	}
	return nil
}

// isCondition reports whether err is a finite mat.Condition warning. An
// infinite condition number means the matrix is exactly singular.
func isCondition(err error) bool {
	var c mat.Condition
	return errors.As(err, &c) && !math.IsInf(float64(c), 1)
}
