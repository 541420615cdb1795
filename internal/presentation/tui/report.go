package tui

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/cairn/pkg/domain"
	"github.com/aretw0/cairn/pkg/suite"
	"github.com/muesli/termenv"
)

// FormatRuntime renders d as MM:SS, rounded to the second.
func FormatRuntime(d time.Duration) string {
	secs := int(d.Round(time.Second).Seconds())
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// Reporter prints one status block per finished test case.
type Reporter struct {
	mu       sync.Mutex
	w        io.Writer
	profile  termenv.Profile
	workDir  string
	caseLogs bool
}

// NewReporter writes to w, coloured when w is a terminal.
// With caseLogs set, failures point at the test case log under workDir.
func NewReporter(w io.Writer, workDir string, caseLogs bool) *Reporter {
	profile := termenv.Ascii
	if IsTerminal(w) {
		profile = termenv.ColorProfile()
	}
	return &Reporter{w: w, profile: profile, workDir: workDir, caseLogs: caseLogs}
}

func (r *Reporter) paint(s, color string) string {
	return termenv.String(s).Foreground(r.profile.Color(color)).String()
}

func (r *Reporter) pass(s string) string { return r.paint(s, "10") }
func (r *Reporter) fail(s string) string { return r.paint(s, "9") }

// Result prints the block of one test case. It can be passed to suite.WithResultFunc.
func (r *Reporter) Result(res domain.TestCaseResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var execution string
	switch res.Outcome {
	case domain.OutcomeSucceeded:
		execution = r.pass("SUCCESS")
	case domain.OutcomeSkipped:
		execution = "SKIPPED"
	case domain.OutcomeIncomplete:
		execution = r.fail("INTERRUPTED")
	default:
		execution = r.fail("ERROR")
	}

	var b strings.Builder
	fmt.Fprintln(&b, res.Path)
	fmt.Fprintf(&b, "  test execution:      %s\n", execution)
	if res.Validation != nil {
		status := r.pass("PASS")
		if !res.Validation.Passed() {
			status = r.fail("FAIL")
		}
		fmt.Fprintf(&b, "  baseline comparison: %s\n", status)
	}
	if !res.Passed() {
		if res.Err != nil {
			fmt.Fprintf(&b, "  error:               %v\n", res.Err)
		}
		if r.caseLogs {
			rel, err := filepath.Rel(r.workDir, suite.CaseLogPath(r.workDir, res.Path))
			if err == nil {
				fmt.Fprintf(&b, "  see: %s\n", filepath.ToSlash(rel))
			}
		}
	}
	fmt.Fprintf(&b, "  test runtime:        %s\n", r.paint(FormatRuntime(res.Duration), "12"))
	io.WriteString(r.w, b.String())
}

// Summary renders a suite result as markdown: per test case runtimes, step counts,
// baseline mismatches and the total runtime.
func Summary(res *domain.SuiteResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", res.Name)
	fmt.Fprintf(&b, "Run `%s`\n\n", res.RunID)

	b.WriteString("| Runtime | Result | Test case | Passed | Failed | Skipped |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for i := range res.TestCases {
		tc := &res.TestCases[i]
		result := "PASS"
		if !tc.Passed() {
			result = "**FAIL**"
		}
		passed, failed, skipped := tc.Counts()
		fmt.Fprintf(&b, "| %s | %s | `%s` | %d | %d | %d |\n",
			FormatRuntime(tc.Duration), result, tc.Path, passed, failed, skipped)
	}

	if mismatches := res.Mismatches(); len(mismatches) > 0 {
		b.WriteString("\n## Baseline mismatches\n\n")
		for i := range res.TestCases {
			path := res.TestCases[i].Path
			for _, v := range mismatches[path] {
				fmt.Fprintf(&b, "- `%s` `%s` %s", path, v.Artifact, v.Status)
				if v.Message != "" {
					fmt.Fprintf(&b, ": %s", v.Message)
				}
				b.WriteString("\n")
			}
		}
	}

	fmt.Fprintf(&b, "\nTotal runtime %s\n\n", FormatRuntime(res.Duration))
	switch n := res.Failures(); n {
	case 0:
		b.WriteString("**PASS**: All passed successfully!\n")
	case 1:
		b.WriteString("**FAIL**: 1 test failed, see above.\n")
	default:
		fmt.Fprintf(&b, "**FAIL**: %d tests failed, see above.\n", n)
	}
	return b.String()
}
