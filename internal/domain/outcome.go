package domain

// StageStatus classifies how a stage computation ended.
type StageStatus string

const (
	StageOK       StageStatus = "ok"
	StageDegraded StageStatus = "degraded"
	StageFatal    StageStatus = "fatal"
)

// StageOutcome is the uniform result every scoring stage returns.
// Degraded outcomes carry a usable neutral value plus the error that
// forced the fallback; fatal outcomes carry no usable value and stop the
// candidate's cascade.
type StageOutcome struct {
	Status StageStatus `json:"status"`
	Err    error       `json:"-"`
	Code   string      `json:"code,omitempty"`
}

// StageSuccess marks a stage that produced a full-quality value.
func StageSuccess() StageOutcome {
	return StageOutcome{Status: StageOK}
}

// StageDegrade marks a stage that fell back to a neutral value.
func StageDegrade(err error) StageOutcome {
	return StageOutcome{Status: StageDegraded, Err: err, Code: CodeOf(err)}
}

// StageFail marks a stage whose candidate cannot continue.
func StageFail(err error) StageOutcome {
	return StageOutcome{Status: StageFatal, Err: err, Code: CodeOf(err)}
}

// Usable reports whether the stage left a value the next stage can read.
func (o StageOutcome) Usable() bool {
	return o.Status != StageFatal
}
