package transcription

// Result is the outcome of one transcription attempt: Success, Skipped or Failed.
// Callers switch on the concrete type.
type Result interface {
	result()
}

// Success carries a transcript. SampleOnly transcripts cover a prefix of the audio
// and are provisional for scoring.
type Success struct {
	TranscriptText string
	IsSalesCall    bool
	SampleOnly     bool
	Source         string
}

// Skipped is a policy decision, not an error.
type Skipped struct {
	Reason string
}

type Failed struct {
	Reason string
	Source string
}

func (Success) result() {}
func (Skipped) result() {}
func (Failed) result()  {}

const (
	ReasonNoRecording     = "No recording ID"
	ReasonTooShort        = "Call too short"
	ReasonEmptyTranscript = "Empty transcript"
)
