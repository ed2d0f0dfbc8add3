package tracker

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/facewatch/facewatch/internal/expression"
	"github.com/facewatch/facewatch/internal/logging"
)

func TestPrimary(t *testing.T) {
	anchors := []FaceAnchor{
		{ID: "a", Score: 0.4},
		{ID: "b", Score: 0.9},
		{ID: "c", Score: 0.7},
	}

	got, ok := Primary(anchors, 0.5)
	require.True(t, ok)
	assert.Equal(t, "b", got.ID)

	_, ok = Primary(anchors, 0.95)
	assert.False(t, ok)

	_, ok = Primary(nil, 0)
	assert.False(t, ok)
}

func TestByScore(t *testing.T) {
	anchors := []FaceAnchor{{ID: "a", Score: 0.2}, {ID: "b", Score: 0.8}, {ID: "c", Score: 0.5}}
	ByScore(anchors)
	assert.Equal(t, []string{"b", "c", "a"}, []string{anchors[0].ID, anchors[1].ID, anchors[2].ID})
}

func TestMockTracker(t *testing.T) {
	m := NewMockTracker()

	faces, err := m.Track(nil)
	require.NoError(t, err)
	assert.Empty(t, faces)

	m.SetFaces(SmilingAnchor())
	faces, err = m.Track(nil)
	require.NoError(t, err)
	require.Len(t, faces, 1)
	assert.Equal(t, 2, m.Calls())

	boom := errors.New("boom")
	m.SetError(boom)
	_, err = m.Track(nil)
	assert.ErrorIs(t, err, boom)

	require.NoError(t, m.Close())
	assert.True(t, m.Closed())
}

func TestPresetAnchors(t *testing.T) {
	assert.Empty(t, expression.Classify(NeutralAnchor().BlendShapes))
	assert.Equal(t, expression.Report{expression.Smiling}, expression.Classify(SmilingAnchor().BlendShapes))
	assert.Equal(t, expression.Report{expression.RightEyeBlink}, expression.Classify(WinkAnchor().BlendShapes))
}

func TestWriteFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, []byte("jpeg")))

	out := buf.Bytes()
	require.Len(t, out, 8)
	assert.Equal(t, uint32(4), binary.BigEndian.Uint32(out[:4]))
	assert.Equal(t, "jpeg", string(out[4:]))
}

func TestDecodeResponse(t *testing.T) {
	t.Run("faces sorted by score with generated ids", func(t *testing.T) {
		line := []byte(`{"faces":[
			{"score":0.6,"blend_shapes":{"cheekPuff":0.5,"_neutral":0.1}},
			{"id":"main","score":0.9,"blend_shapes":{"mouthSmileLeft":0.5,"mouthSmileRight":0.5}}
		]}`)

		anchors, err := decodeResponse(line)
		require.NoError(t, err)
		require.Len(t, anchors, 2)

		assert.Equal(t, "main", anchors[0].ID)
		assert.Equal(t, "face-0", anchors[1].ID)
		assert.Equal(t, 0.5, anchors[1].BlendShapes.Value(expression.CheekPuff))
		assert.NotContains(t, anchors[1].BlendShapes, expression.BlendShape("_neutral"))
	})

	t.Run("no faces", func(t *testing.T) {
		anchors, err := decodeResponse([]byte(`{"faces":[]}`))
		require.NoError(t, err)
		assert.Empty(t, anchors)
	})

	t.Run("service error", func(t *testing.T) {
		_, err := decodeResponse([]byte(`{"error":"model not loaded"}`))
		assert.ErrorContains(t, err, "model not loaded")
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := decodeResponse([]byte(`not json`))
		assert.ErrorIs(t, err, errMalformed)
	})
}

func TestNewMediaPipeTracker_Unsupported(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScriptPath = filepath.Join(t.TempDir(), "missing.py")

	_, err := NewMediaPipeTracker(cfg, logging.Discard())
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestNewMediaPipeTracker_ExplicitScript(t *testing.T) {
	script := filepath.Join(t.TempDir(), "face_service.py")
	require.NoError(t, os.WriteFile(script, []byte("# stub\n"), 0o644))

	cfg := DefaultConfig()
	cfg.ScriptPath = script

	tr, err := NewMediaPipeTracker(cfg, logging.Discard())
	require.NoError(t, err)
	// Never started, so closing is a no-op.
	assert.NoError(t, tr.Close())
}

// shellService returns a tracker whose face service is the given shell
// script instead of the Python one.
func shellService(t *testing.T, script string) *MediaPipeTracker {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	path := filepath.Join(t.TempDir(), "face_service.sh")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	cfg := DefaultConfig()
	cfg.ScriptPath = path
	cfg.Python = "/bin/sh"

	tr, err := NewMediaPipeTracker(cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	return tr
}

func testFrame(t *testing.T) *gocv.Mat {
	t.Helper()
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 8, 8, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { frame.Close() })
	return &frame
}

func TestMediaPipeTracker_ServiceExitsImmediately(t *testing.T) {
	tr := shellService(t, "#!/bin/sh\nexit 0\n")
	frame := testFrame(t)

	for i := 1; i < maxDeadStarts; i++ {
		_, err := tr.Track(frame)
		require.Error(t, err, "attempt %d", i)
		assert.NotErrorIs(t, err, ErrUnsupported, "attempt %d", i)
		assert.False(t, tr.started, "dead service is torn down")
	}

	_, err := tr.Track(frame)
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.False(t, tr.started)
}

func TestMediaPipeTracker_RestartsAfterExit(t *testing.T) {
	// Answers one frame, then exits.
	tr := shellService(t, "#!/bin/sh\n"+
		`echo '{"faces":[{"score":0.9,"blend_shapes":{"mouthSmileLeft":1}}]}'`+"\n"+
		"exec sleep 0.2\n")
	frame := testFrame(t)

	for round := 0; round < maxDeadStarts+1; round++ {
		faces, err := tr.Track(frame)
		require.NoError(t, err, "round %d", round)
		require.Len(t, faces, 1)
		assert.Equal(t, 1.0, faces[0].BlendShapes.Value(expression.MouthSmileLeft))

		_, err = tr.Track(frame)
		require.Error(t, err, "round %d: service has exited", round)
		assert.NotErrorIs(t, err, ErrUnsupported, "a service that answered is not unsupported")
	}
}
