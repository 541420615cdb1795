package domain

// VerdictStatus is the result of comparing one artifact (or timer) with the baseline.
type VerdictStatus string

const (
	VerdictPass VerdictStatus = "pass"
	VerdictFail VerdictStatus = "fail"
	VerdictWarn VerdictStatus = "warn"
)

// Verdict is a per-artifact comparison result.
type Verdict struct {
	Artifact string        `json:"artifact"`
	Status   VerdictStatus `json:"status"`
	Message  string        `json:"message,omitempty"`
}

// ValidationReport is what a BaselineValidator returns for one test case.
type ValidationReport struct {
	Verdicts   []Verdict `json:"verdicts"`
	Diagnostic string    `json:"diagnostic,omitempty"`
}

// Passed reports whether every verdict is a pass. Warnings count as failures.
func (r *ValidationReport) Passed() bool {
	return len(r.Mismatches()) == 0
}

// Mismatches returns the verdicts that are not a pass.
func (r *ValidationReport) Mismatches() []Verdict {
	var out []Verdict
	for _, v := range r.Verdicts {
		if v.Status != VerdictPass {
			out = append(out, v)
		}
	}
	return out
}
