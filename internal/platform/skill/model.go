package skill

import (
	"math"

	"github.com/inhouse-gg/queuebot/internal/domain/rating"
)

const (
	// Beta is the skill distance giving ~76% win probability, half the
	// default sigma.
	Beta = rating.DefaultSigma / 2
	// Tau keeps ratings from collapsing by re-adding variance each game.
	Tau = rating.DefaultSigma / 100
)

// Model is a Gaussian skill model over two five-player teams: each player
// carries a per-role (mu, sigma) pair, team skill is the sum of member
// means, and outcomes update both parameters with a truncated-Gaussian
// correction. It satisfies rating.Model.
type Model struct {
	beta float64
	tau  float64
}

func NewModel() *Model {
	return &Model{beta: Beta, tau: Tau}
}

// ExpectedOutcome returns the probability that sideA beats sideB.
func (m *Model) ExpectedOutcome(sideA, sideB []rating.Rating) float64 {
	deltaMu := 0.0
	sumSigmaSq := 0.0

	for _, r := range sideA {
		deltaMu += r.Mu
		sumSigmaSq += r.Sigma * r.Sigma
	}
	for _, r := range sideB {
		deltaMu -= r.Mu
		sumSigmaSq += r.Sigma * r.Sigma
	}

	size := float64(len(sideA) + len(sideB))
	denominator := math.Sqrt(size*m.beta*m.beta + sumSigmaSq)

	return normalCDF(deltaMu / denominator)
}

// Rate applies the result to both teams and returns the updated ratings in
// input order.
func (m *Model) Rate(winners, losers []rating.Rating) ([]rating.Rating, []rating.Rating) {
	// Re-inflate variance so long-time players can still move.
	winners = m.inflate(winners)
	losers = m.inflate(losers)

	muWinners := 0.0
	muLosers := 0.0
	sumSigmaSq := 0.0
	for _, r := range winners {
		muWinners += r.Mu
		sumSigmaSq += r.Sigma * r.Sigma
	}
	for _, r := range losers {
		muLosers += r.Mu
		sumSigmaSq += r.Sigma * r.Sigma
	}

	size := float64(len(winners) + len(losers))
	c := math.Sqrt(size*m.beta*m.beta + sumSigmaSq)

	t := (muWinners - muLosers) / c
	v := meanAdditiveTruncation(t)
	w := v * (v + t)

	updatedWinners := make([]rating.Rating, len(winners))
	for i, r := range winners {
		sigmaSq := r.Sigma * r.Sigma
		updatedWinners[i] = rating.Rating{
			Mu:    r.Mu + sigmaSq/c*v,
			Sigma: math.Sqrt(sigmaSq * math.Max(1-sigmaSq/(c*c)*w, minVarianceRatio)),
		}
	}

	updatedLosers := make([]rating.Rating, len(losers))
	for i, r := range losers {
		sigmaSq := r.Sigma * r.Sigma
		updatedLosers[i] = rating.Rating{
			Mu:    r.Mu - sigmaSq/c*v,
			Sigma: math.Sqrt(sigmaSq * math.Max(1-sigmaSq/(c*c)*w, minVarianceRatio)),
		}
	}

	return updatedWinners, updatedLosers
}

// minVarianceRatio bounds the variance shrink per game so sigma never
// reaches zero.
const minVarianceRatio = 1e-4

func (m *Model) inflate(ratings []rating.Rating) []rating.Rating {
	out := make([]rating.Rating, len(ratings))
	for i, r := range ratings {
		out[i] = rating.Rating{
			Mu:    r.Mu,
			Sigma: math.Sqrt(r.Sigma*r.Sigma + m.tau*m.tau),
		}
	}
	return out
}

// meanAdditiveTruncation is pdf(t)/cdf(t), the mean shift of a Gaussian
// truncated below the observed ordering.
func meanAdditiveTruncation(t float64) float64 {
	denom := normalCDF(t)
	if denom < 1e-12 {
		// cdf underflows for very surprising results; the correction
		// converges to -t there.
		return -t
	}
	return normalPDF(t) / denom
}

func normalCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

func normalPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}
