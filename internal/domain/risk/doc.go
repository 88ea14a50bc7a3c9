// Package risk turns a student's academic signals into a risk tier.
//
// A Classifier is built once from a validated Thresholds value and never
// changes afterwards. Every caller that needs a tier goes through the
// classifier held by the PolicyStore, so a threshold update is a swap to a
// new Classifier rather than an in-place edit.
//
// # Tier rules
//
// High when the raw score reaches HighRiskScore, or when attendance and SGPA
// are both below their thresholds. Either condition is sufficient on its own.
//
// Medium when exactly one of attendance or SGPA is low, or when the raw score
// falls within MediumBand below HighRiskScore.
//
// Low otherwise.
//
//	c, err := risk.NewClassifier(risk.DefaultThresholds())
//	tier, score, err := c.Classify(risk.Metrics{
//	    AttendancePercentage: 60,
//	    SGPA:                 5.5,
//	    RawRiskScore:         50,
//	})
//	// tier == risk.TierHigh, score == 0.5
package risk
