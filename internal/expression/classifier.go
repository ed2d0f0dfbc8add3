package expression

import "strings"

// Label is a human-readable name for an active expression.
type Label string

// Expression labels, listed in evaluation order.
// The eye labels are named from the viewer's side: eyeBlinkLeft reports
// "Your Right Eye Blink".
const (
	Smiling        Label = "Smiling"
	CheeksPuffed   Label = "Cheeks Puffed"
	TongueOutLabel Label = "Tongue Out"
	RightEyeBlink  Label = "Your Right Eye Blink"
	LeftEyeBlink   Label = "Your Left Eye Blink"
)

// Classification thresholds. All comparisons are strictly greater-than.
const (
	SmileThreshold     = 0.9
	CheekPuffThreshold = 0.1
	TongueOutThreshold = 0.1
	EyeBlinkThreshold  = 0.6
)

// rule gates one label behind a predicate over a sample.
type rule struct {
	label  Label
	active func(s Sample) bool
}

// rules is evaluated in order on every call; no rule short-circuits another.
var rules = []rule{
	{Smiling, func(s Sample) bool {
		return s.Value(MouthSmileLeft)+s.Value(MouthSmileRight) > SmileThreshold
	}},
	{CheeksPuffed, func(s Sample) bool { return s.Value(CheekPuff) > CheekPuffThreshold }},
	{TongueOutLabel, func(s Sample) bool { return s.Value(TongueOut) > TongueOutThreshold }},
	{RightEyeBlink, func(s Sample) bool { return s.Value(EyeBlinkLeft) > EyeBlinkThreshold }},
	{LeftEyeBlink, func(s Sample) bool { return s.Value(EyeBlinkRight) > EyeBlinkThreshold }},
}

// Labels returns every label the classifier can emit, in evaluation order.
func Labels() []Label {
	out := make([]Label, len(rules))
	for i, r := range rules {
		out[i] = r.label
	}
	return out
}

// IsLabel reports whether name is a label the classifier can emit.
func IsLabel(name string) bool {
	for _, r := range rules {
		if string(r.label) == name {
			return true
		}
	}
	return false
}

// Report is the ordered list of expressions active in one sample.
type Report []Label

// Classify returns the expressions active in s.
// It never modifies s and always returns a new Report.
func Classify(s Sample) Report {
	report := Report{}
	for _, r := range rules {
		if r.active(s) {
			report = append(report, r.label)
		}
	}
	return report
}

// Text joins the report's labels with newlines.
func (r Report) Text() string {
	parts := make([]string, len(r))
	for i, l := range r {
		parts[i] = string(l)
	}
	return strings.Join(parts, "\n")
}

// Contains reports whether l is in the report.
func (r Report) Contains(l Label) bool {
	for _, x := range r {
		if x == l {
			return true
		}
	}
	return false
}

// Equal reports whether r and other hold the same labels in the same order.
func (r Report) Equal(other Report) bool {
	if len(r) != len(other) {
		return false
	}
	for i := range r {
		if r[i] != other[i] {
			return false
		}
	}
	return true
}

// Strings returns the labels as plain strings.
func (r Report) Strings() []string {
	out := make([]string, len(r))
	for i, l := range r {
		out[i] = string(l)
	}
	return out
}

// Onsets returns the labels in cur that were not in prev, in cur's order.
func Onsets(prev, cur Report) []Label {
	var out []Label
	for _, l := range cur {
		if !prev.Contains(l) {
			out = append(out, l)
		}
	}
	return out
}
