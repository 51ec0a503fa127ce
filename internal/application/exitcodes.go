package application

import (
	"github.com/seoscope/keywordrun/internal/domain"
	"github.com/seoscope/keywordrun/internal/optimize"
)

// Process exit codes for the CLI drivers.
const (
	ExitOK               = 0
	ExitConfig           = 1
	ExitInsufficientData = 2
	ExitInternal         = 3
)

// ExitCode maps an error to the exit code contract. Input errors count
// as configuration errors: both mean the operator handed the tool
// something it cannot work with.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch domain.KindOf(err) {
	case domain.KindConfig, domain.KindInput:
		return ExitConfig
	}
	return ExitInternal
}

// ExitForCycle maps an optimizer cycle outcome to an exit code. Only a
// run that could not even assemble training data is distinguished;
// skipped and frozen cycles are successful no-ops.
func ExitForCycle(status optimize.Status) int {
	switch status {
	case optimize.StatusInsufficientData:
		return ExitInsufficientData
	case optimize.StatusFailed, optimize.StatusTrainingFailed:
		return ExitInternal
	}
	return ExitOK
}
