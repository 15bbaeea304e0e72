// Package verdict maps a fake-probability score onto a three-way verdict.
package verdict

import "fmt"

type Verdict int

const (
	Real Verdict = iota
	NotSure
	Fake
)

const (
	RealUpperBound = 0.3
	FakeLowerBound = 0.7
)

// Classify maps a score in [0,1] to a verdict. The Real range is checked
// first, so 0.3 is Real and 0.7 is Fake. Scores outside [0,1] are not
// expected from the classifier and fall through to NotSure.
func Classify(score float64) Verdict {
	if score >= 0 && score <= RealUpperBound {
		return Real
	}
	if score >= FakeLowerBound && score <= 1 {
		return Fake
	}
	return NotSure
}

func (v Verdict) String() string {
	switch v {
	case Real:
		return "Real"
	case Fake:
		return "Fake"
	case NotSure:
		return "Not sure"
	default:
		return fmt.Sprintf("Verdict(%d)", int(v))
	}
}

// Code is the stable machine-readable form used on the wire.
func (v Verdict) Code() string {
	switch v {
	case Real:
		return "real"
	case Fake:
		return "fake"
	case NotSure:
		return "not_sure"
	default:
		return "unknown"
	}
}

// Severity tells presentation layers how to style the verdict.
func (v Verdict) Severity() string {
	switch v {
	case Real:
		return "success"
	case Fake:
		return "error"
	default:
		return "warning"
	}
}

func (v Verdict) MarshalText() ([]byte, error) {
	if v < Real || v > Fake {
		return nil, fmt.Errorf("invalid verdict %d", int(v))
	}
	return []byte(v.Code()), nil
}

func (v *Verdict) UnmarshalText(text []byte) error {
	switch string(text) {
	case "real":
		*v = Real
	case "fake":
		*v = Fake
	case "not_sure":
		*v = NotSure
	default:
		return fmt.Errorf("unknown verdict %q", string(text))
	}
	return nil
}
