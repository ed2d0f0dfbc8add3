package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facewatch/facewatch/internal/session"
	"github.com/facewatch/facewatch/internal/tracker"
)

func newTestController(t *testing.T) *session.Controller {
	t.Helper()
	c, err := session.New(session.Config{Store: newTestStore(t), Source: "ingest"})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestTrackingHandler_Classify(t *testing.T) {
	h := NewTrackingHandler(nil)

	tests := []struct {
		name       string
		body       string
		wantLabels []string
		wantText   string
	}{
		{"empty", `{"blend_shapes":{}}`, []string{}, ""},
		{"smile", `{"blend_shapes":{"mouthSmileLeft":0.5,"mouthSmileRight":0.5}}`, []string{"Smiling"}, "Smiling"},
		{"threshold not crossed", `{"blend_shapes":{"mouthSmileLeft":0.45,"mouthSmileRight":0.45}}`, []string{}, ""},
		{
			"everything",
			`{"blend_shapes":{"mouthSmileLeft":0.6,"mouthSmileRight":0.6,"cheekPuff":0.2,"tongueOut":0.2,"eyeBlinkLeft":0.7,"eyeBlinkRight":0.7}}`,
			[]string{"Smiling", "Cheeks Puffed", "Tongue Out", "Your Right Eye Blink", "Your Left Eye Blink"},
			"Smiling\nCheeks Puffed\nTongue Out\nYour Right Eye Blink\nYour Left Eye Blink",
		},
		{"unknown keys ignored", `{"blend_shapes":{"noseWiggle":1,"tongueOut":0.3}}`, []string{"Tongue Out"}, "Tongue Out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/classify", tt.body)
			require.Equal(t, http.StatusOK, rec.Code)
			resp := decode[classifyResponse](t, rec)
			assert.Equal(t, tt.wantLabels, resp.Labels)
			assert.Equal(t, tt.wantText, resp.Text)
		})
	}

	rec := do(t, h, http.MethodPost, "/api/classify", "not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTrackingHandler_NoControllerRoutes(t *testing.T) {
	rec := do(t, NewTrackingHandler(nil), http.MethodGet, "/api/report", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTrackingHandler_SessionEvents(t *testing.T) {
	c := newTestController(t)
	h := NewTrackingHandler(c)

	rec := do(t, h, http.MethodGet, "/api/session", nil)
	assert.JSONEq(t, `{"state":"idle"}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/session/start", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[map[string]string](t, rec)
	assert.Equal(t, "running", resp["state"])
	assert.Equal(t, c.SessionID(), resp["session_id"])

	rec = do(t, h, http.MethodPost, "/api/session/resume", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/session/explode", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/session/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"state":"paused"}`, rec.Body.String())
}

func TestTrackingHandler_Report(t *testing.T) {
	c := newTestController(t)
	h := NewTrackingHandler(c)
	require.NoError(t, c.Handle(session.Start))

	smile := tracker.SmilingAnchor()
	_, err := c.Process(&smile)
	require.NoError(t, err)

	rec := do(t, h, http.MethodGet, "/api/report", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[session.Update](t, rec)
	assert.Equal(t, []string{"Smiling"}, resp.Labels)
	assert.Equal(t, "Smiling", resp.Text)
	assert.True(t, resp.FaceDetected)
}

func TestTrackingHandler_Mesh(t *testing.T) {
	c := newTestController(t)
	h := NewTrackingHandler(c)

	rec := do(t, h, http.MethodGet, "/api/mesh", nil)
	assert.JSONEq(t, `{"visible":true,"opacity":1}`, rec.Body.String())

	rec = do(t, h, http.MethodPut, "/api/mesh", `{"visible":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"visible":false,"opacity":0}`, rec.Body.String())
	assert.False(t, c.MeshVisible())

	rec = do(t, h, http.MethodPut, "/api/mesh", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
