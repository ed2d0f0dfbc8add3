// Package expression classifies facial expressions from blend-shape coefficients.
package expression

// BlendShape names one facial-movement coefficient reported by a face tracker.
// Values follow the ARKit naming, which MediaPipe's face landmarker also uses.
type BlendShape string

// Blend shape keys.
// See: https://developer.apple.com/documentation/arkit/arfaceanchor/blendshapelocation
const (
	BrowDownLeft        BlendShape = "browDownLeft"
	BrowDownRight       BlendShape = "browDownRight"
	BrowInnerUp         BlendShape = "browInnerUp"
	BrowOuterUpLeft     BlendShape = "browOuterUpLeft"
	BrowOuterUpRight    BlendShape = "browOuterUpRight"
	CheekPuff           BlendShape = "cheekPuff"
	CheekSquintLeft     BlendShape = "cheekSquintLeft"
	CheekSquintRight    BlendShape = "cheekSquintRight"
	EyeBlinkLeft        BlendShape = "eyeBlinkLeft"
	EyeBlinkRight       BlendShape = "eyeBlinkRight"
	EyeLookDownLeft     BlendShape = "eyeLookDownLeft"
	EyeLookDownRight    BlendShape = "eyeLookDownRight"
	EyeLookInLeft       BlendShape = "eyeLookInLeft"
	EyeLookInRight      BlendShape = "eyeLookInRight"
	EyeLookOutLeft      BlendShape = "eyeLookOutLeft"
	EyeLookOutRight     BlendShape = "eyeLookOutRight"
	EyeLookUpLeft       BlendShape = "eyeLookUpLeft"
	EyeLookUpRight      BlendShape = "eyeLookUpRight"
	EyeSquintLeft       BlendShape = "eyeSquintLeft"
	EyeSquintRight      BlendShape = "eyeSquintRight"
	EyeWideLeft         BlendShape = "eyeWideLeft"
	EyeWideRight        BlendShape = "eyeWideRight"
	JawForward          BlendShape = "jawForward"
	JawLeft             BlendShape = "jawLeft"
	JawOpen             BlendShape = "jawOpen"
	JawRight            BlendShape = "jawRight"
	MouthClose          BlendShape = "mouthClose"
	MouthDimpleLeft     BlendShape = "mouthDimpleLeft"
	MouthDimpleRight    BlendShape = "mouthDimpleRight"
	MouthFrownLeft      BlendShape = "mouthFrownLeft"
	MouthFrownRight     BlendShape = "mouthFrownRight"
	MouthFunnel         BlendShape = "mouthFunnel"
	MouthLeft           BlendShape = "mouthLeft"
	MouthLowerDownLeft  BlendShape = "mouthLowerDownLeft"
	MouthLowerDownRight BlendShape = "mouthLowerDownRight"
	MouthPressLeft      BlendShape = "mouthPressLeft"
	MouthPressRight     BlendShape = "mouthPressRight"
	MouthPucker         BlendShape = "mouthPucker"
	MouthRight          BlendShape = "mouthRight"
	MouthRollLower      BlendShape = "mouthRollLower"
	MouthRollUpper      BlendShape = "mouthRollUpper"
	MouthShrugLower     BlendShape = "mouthShrugLower"
	MouthShrugUpper     BlendShape = "mouthShrugUpper"
	MouthSmileLeft      BlendShape = "mouthSmileLeft"
	MouthSmileRight     BlendShape = "mouthSmileRight"
	MouthStretchLeft    BlendShape = "mouthStretchLeft"
	MouthStretchRight   BlendShape = "mouthStretchRight"
	MouthUpperUpLeft    BlendShape = "mouthUpperUpLeft"
	MouthUpperUpRight   BlendShape = "mouthUpperUpRight"
	NoseSneerLeft       BlendShape = "noseSneerLeft"
	NoseSneerRight      BlendShape = "noseSneerRight"
	TongueOut           BlendShape = "tongueOut"
)

// knownBlendShapes is the set of keys accepted by ParseSample.
var knownBlendShapes = map[BlendShape]struct{}{
	BrowDownLeft: {}, BrowDownRight: {}, BrowInnerUp: {}, BrowOuterUpLeft: {},
	BrowOuterUpRight: {}, CheekPuff: {}, CheekSquintLeft: {}, CheekSquintRight: {},
	EyeBlinkLeft: {}, EyeBlinkRight: {}, EyeLookDownLeft: {}, EyeLookDownRight: {},
	EyeLookInLeft: {}, EyeLookInRight: {}, EyeLookOutLeft: {}, EyeLookOutRight: {},
	EyeLookUpLeft: {}, EyeLookUpRight: {}, EyeSquintLeft: {}, EyeSquintRight: {},
	EyeWideLeft: {}, EyeWideRight: {}, JawForward: {}, JawLeft: {}, JawOpen: {},
	JawRight: {}, MouthClose: {}, MouthDimpleLeft: {}, MouthDimpleRight: {},
	MouthFrownLeft: {}, MouthFrownRight: {}, MouthFunnel: {}, MouthLeft: {},
	MouthLowerDownLeft: {}, MouthLowerDownRight: {}, MouthPressLeft: {},
	MouthPressRight: {}, MouthPucker: {}, MouthRight: {}, MouthRollLower: {},
	MouthRollUpper: {}, MouthShrugLower: {}, MouthShrugUpper: {}, MouthSmileLeft: {},
	MouthSmileRight: {}, MouthStretchLeft: {}, MouthStretchRight: {},
	MouthUpperUpLeft: {}, MouthUpperUpRight: {}, NoseSneerLeft: {},
	NoseSneerRight: {}, TongueOut: {},
}

// IsKnown reports whether b is one of the tracked blend shape keys.
func (b BlendShape) IsKnown() bool {
	_, ok := knownBlendShapes[b]
	return ok
}

// Sample holds the blend shape coefficients of one tracked frame.
// Coefficients are expected in [0, 1]; keys that are absent read as 0.
type Sample map[BlendShape]float64

// Value returns the coefficient for b, or 0 if the sample has none.
func (s Sample) Value(b BlendShape) float64 {
	if s == nil {
		return 0
	}
	return s[b]
}

// ParseSample builds a Sample from a wire-format map keyed by blend shape name.
// Unknown keys are dropped. Values are not range-checked.
func ParseSample(raw map[string]float64) Sample {
	s := make(Sample, len(raw))
	for k, v := range raw {
		b := BlendShape(k)
		if !b.IsKnown() {
			continue
		}
		s[b] = v
	}
	return s
}

// Wire converts the sample back to a plain string-keyed map for JSON output.
func (s Sample) Wire() map[string]float64 {
	out := make(map[string]float64, len(s))
	for k, v := range s {
		out[string(k)] = v
	}
	return out
}
