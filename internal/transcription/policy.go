package transcription

import "time"

// Policy decides how much of a recording to transcribe from its duration.
type Policy struct {
	// Calls shorter than MinDuration are skipped.
	MinDuration time.Duration
	// Calls longer than SampleOver are transcribed from their first SampleLength only.
	SampleOver   time.Duration
	SampleLength time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MinDuration:  15 * time.Second,
		SampleOver:   20 * time.Minute,
		SampleLength: 5 * time.Minute,
	}
}

type Decision int

const (
	DecisionFull Decision = iota
	DecisionSample
	DecisionSkip
)

func (p Policy) Decide(durationSeconds int) Decision {
	d := time.Duration(durationSeconds) * time.Second
	switch {
	case d < p.MinDuration:
		return DecisionSkip
	case p.SampleOver > 0 && p.SampleLength > 0 && d > p.SampleOver:
		return DecisionSample
	default:
		return DecisionFull
	}
}

// Sample returns the byte prefix proportional to SampleLength of a recording lasting durationSeconds.
func (p Policy) Sample(audio []byte, durationSeconds int) []byte {
	total := time.Duration(durationSeconds) * time.Second
	if total <= 0 || p.SampleLength <= 0 || p.SampleLength >= total {
		return audio
	}
	n := int(int64(len(audio)) * int64(p.SampleLength) / int64(total))
	if n <= 0 || n >= len(audio) {
		return audio
	}
	return audio[:n]
}
