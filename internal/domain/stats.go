package domain

import "math"

// Summary aggregates a run's period stream.
//
//	MeanPrice, StdPrice   level and dispersion of the clearing price
//	ReturnVolatility      stdev of log(p_t/p_{t-1})
//	MeanRNDeviation       mean of (price - riskneutral)/riskneutral
//	ConvergenceRate       share of periods where the specialist cleared
type Summary struct {
	Periods          int
	MeanPrice        float64
	StdPrice         float64
	MinPrice         float64
	MaxPrice         float64
	MeanDividend     float64
	MeanVolume       float64
	TotalVolume      float64
	ReturnVolatility float64
	MeanRNDeviation  float64
	ConvergenceRate  float64
	TotalGARuns      int
}

// Summarize computes run statistics. It returns the zero Summary for
// an empty stream.
func Summarize(rows []PeriodResult) Summary {
	var s Summary
	if len(rows) == 0 {
		return s
	}
	s.Periods = len(rows)
	s.MinPrice = math.Inf(1)
	s.MaxPrice = math.Inf(-1)

	var prices, returns []float64
	var rnSum float64
	var rnCount, converged int
	for i, r := range rows {
		prices = append(prices, r.Price)
		s.MinPrice = min(s.MinPrice, r.Price)
		s.MaxPrice = max(s.MaxPrice, r.Price)
		s.MeanDividend += r.Dividend
		s.TotalVolume += r.Volume
		s.TotalGARuns += r.GARuns
		if r.Converged {
			converged++
		}
		if r.RiskNeutral > 0 {
			rnSum += (r.Price - r.RiskNeutral) / r.RiskNeutral
			rnCount++
		}
		if i > 0 && rows[i-1].Price > 0 && r.Price > 0 {
			returns = append(returns, math.Log(r.Price/rows[i-1].Price))
		}
	}

	n := float64(len(rows))
	s.MeanPrice, s.StdPrice = MeanStd(prices)
	s.MeanDividend /= n
	s.MeanVolume = s.TotalVolume / n
	_, s.ReturnVolatility = MeanStd(returns)
	if rnCount > 0 {
		s.MeanRNDeviation = rnSum / float64(rnCount)
	}
	s.ConvergenceRate = float64(converged) / n
	return s
}

// MeanStd returns the mean and population standard deviation of xs.
func MeanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	for _, x := range xs {
		d := x - mean
		std += d * d
	}
	return mean, math.Sqrt(std / float64(len(xs)))
}
