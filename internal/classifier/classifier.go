package classifier

import "context"

const DefaultFakeLabel = "fake"

type Prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Scorer returns the probability that an encoded image is manipulated.
type Scorer interface {
	Score(ctx context.Context, image []byte) (float64, error)
}

// FakeScore picks the score of the first prediction labelled fakeLabel.
// A missing label means the model saw nothing fake, so it yields 0.
func FakeScore(predictions []Prediction, fakeLabel string) float64 {
	for _, p := range predictions {
		if p.Label == fakeLabel {
			return p.Score
		}
	}
	return 0.0
}
