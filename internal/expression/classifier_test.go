package expression

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_AllZero(t *testing.T) {
	zero := Sample{
		MouthSmileLeft:  0,
		MouthSmileRight: 0,
		CheekPuff:       0,
		TongueOut:       0,
		EyeBlinkLeft:    0,
		EyeBlinkRight:   0,
	}

	assert.Empty(t, Classify(zero))
	assert.Empty(t, Classify(Sample{}))
	assert.Empty(t, Classify(nil))
}

func TestClassify_Thresholds(t *testing.T) {
	tests := []struct {
		name   string
		sample Sample
		want   Report
	}{
		{
			name:   "smile sum exactly at threshold",
			sample: Sample{MouthSmileLeft: 0.45, MouthSmileRight: 0.45},
			want:   Report{},
		},
		{
			name:   "smile sum above threshold",
			sample: Sample{MouthSmileLeft: 0.46, MouthSmileRight: 0.45},
			want:   Report{Smiling},
		},
		{
			name:   "uneven smile summing to threshold",
			sample: Sample{MouthSmileLeft: 0.35, MouthSmileRight: 0.55},
			want:   Report{},
		},
		{
			name:   "smile sum just above threshold",
			sample: Sample{MouthSmileLeft: 0.4500000001, MouthSmileRight: 0.45},
			want:   Report{Smiling},
		},
		{
			name:   "one-sided full smile",
			sample: Sample{MouthSmileLeft: 1.0},
			want:   Report{Smiling},
		},
		{
			name:   "cheek puff at threshold",
			sample: Sample{CheekPuff: 0.1},
			want:   Report{},
		},
		{
			name:   "cheek puff above threshold",
			sample: Sample{CheekPuff: 0.11},
			want:   Report{CheeksPuffed},
		},
		{
			name:   "tongue at threshold",
			sample: Sample{TongueOut: 0.1},
			want:   Report{},
		},
		{
			name:   "tongue above threshold",
			sample: Sample{TongueOut: 0.11},
			want:   Report{TongueOutLabel},
		},
		{
			name:   "left blink at threshold",
			sample: Sample{EyeBlinkLeft: 0.6},
			want:   Report{},
		},
		{
			name:   "left blink key reports right eye",
			sample: Sample{EyeBlinkLeft: 0.61},
			want:   Report{RightEyeBlink},
		},
		{
			name:   "right blink key reports left eye",
			sample: Sample{EyeBlinkRight: 0.61},
			want:   Report{LeftEyeBlink},
		},
		{
			name:   "unrelated blend shapes are ignored",
			sample: Sample{JawOpen: 1.0, BrowInnerUp: 1.0, MouthPucker: 1.0},
			want:   Report{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.sample)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Classify() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClassify_AllActive(t *testing.T) {
	all := Sample{
		MouthSmileLeft:  1.0,
		MouthSmileRight: 1.0,
		CheekPuff:       1.0,
		TongueOut:       1.0,
		EyeBlinkLeft:    1.0,
		EyeBlinkRight:   1.0,
	}

	want := Report{"Smiling", "Cheeks Puffed", "Tongue Out", "Your Right Eye Blink", "Your Left Eye Blink"}
	if diff := cmp.Diff(want, Classify(all)); diff != "" {
		t.Errorf("Classify() mismatch (-want +got):\n%s", diff)
	}
}

func TestClassify_OrderIsFixedForEverySubset(t *testing.T) {
	triggers := []Sample{
		{MouthSmileLeft: 0.5, MouthSmileRight: 0.5},
		{CheekPuff: 0.5},
		{TongueOut: 0.5},
		{EyeBlinkLeft: 0.9},
		{EyeBlinkRight: 0.9},
	}
	order := Labels()

	for mask := 0; mask < 1<<len(triggers); mask++ {
		s := Sample{}
		var want Report
		for i, trig := range triggers {
			if mask&(1<<i) == 0 {
				continue
			}
			for k, v := range trig {
				s[k] = v
			}
			want = append(want, order[i])
		}
		if want == nil {
			want = Report{}
		}

		got := Classify(s)
		require.Equal(t, want, got, "mask %05b", mask)
	}
}

func TestClassify_Idempotent(t *testing.T) {
	s := Sample{MouthSmileLeft: 0.7, MouthSmileRight: 0.6, EyeBlinkRight: 0.8}
	before := Sample{}
	for k, v := range s {
		before[k] = v
	}

	first := Classify(s)
	second := Classify(s)

	assert.Equal(t, first, second)
	assert.Equal(t, before, s, "Classify must not modify its input")

	// Mutating one report must not leak into the next.
	first[0] = "changed"
	assert.Equal(t, Smiling, Classify(s)[0])
}

func TestReport_Text(t *testing.T) {
	assert.Equal(t, "", Report{}.Text())
	assert.Equal(t, "Smiling", Report{Smiling}.Text())
	assert.Equal(t, "Smiling\nYour Left Eye Blink", Report{Smiling, LeftEyeBlink}.Text())
}

func TestReport_Equal(t *testing.T) {
	assert.True(t, Report{}.Equal(nil))
	assert.True(t, Report{Smiling, CheeksPuffed}.Equal(Report{Smiling, CheeksPuffed}))
	assert.False(t, Report{Smiling, CheeksPuffed}.Equal(Report{CheeksPuffed, Smiling}))
	assert.False(t, Report{Smiling}.Equal(Report{Smiling, CheeksPuffed}))
}

func TestOnsets(t *testing.T) {
	tests := []struct {
		name string
		prev Report
		cur  Report
		want []Label
	}{
		{"from nothing", nil, Report{Smiling, TongueOutLabel}, []Label{Smiling, TongueOutLabel}},
		{"unchanged", Report{Smiling}, Report{Smiling}, nil},
		{"one added", Report{Smiling}, Report{Smiling, LeftEyeBlink}, []Label{LeftEyeBlink}},
		{"all released", Report{Smiling}, Report{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Onsets(tt.prev, tt.cur))
		})
	}
}

func TestIsLabel(t *testing.T) {
	for _, l := range Labels() {
		assert.True(t, IsLabel(string(l)), l)
	}
	assert.False(t, IsLabel("Frowning"))
}

func TestParseSample(t *testing.T) {
	s := ParseSample(map[string]float64{
		"mouthSmileLeft": 0.8,
		"eyeBlinkRight":  0.2,
		"_neutral":       0.9,
		"notAShape":      1.0,
	})

	require.Len(t, s, 2)
	assert.Equal(t, 0.8, s.Value(MouthSmileLeft))
	assert.Equal(t, 0.2, s.Value(EyeBlinkRight))
	assert.Equal(t, 0.0, s.Value(TongueOut))
	assert.Equal(t, map[string]float64{"mouthSmileLeft": 0.8, "eyeBlinkRight": 0.2}, s.Wire())
}
