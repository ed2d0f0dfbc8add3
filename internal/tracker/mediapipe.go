package tracker

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/facewatch/facewatch/internal/expression"
)

const (
	serviceScript = "face_service.py"
	idleShutdown  = 30 * time.Second
	// maxDeadStarts is how many times in a row the service may exit before
	// answering a single frame before tracking is reported as unsupported.
	maxDeadStarts = 3
)

// MediaPipeTracker implements Tracker using a Python MediaPipe FaceLandmarker
// subprocess started with blend shape output enabled.
//
// Protocol: each frame is written to stdin as a 4-byte big-endian length
// followed by JPEG bytes; the service answers with one JSON line:
//
//	{"faces":[{"score":0.98,"blend_shapes":{"mouthSmileLeft":0.4,...}}]}
type MediaPipeTracker struct {
	config     Config
	scriptPath string
	log        *logrus.Entry

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	stderr    *io.PipeWriter
	started   bool
	answered  bool // the running process has answered at least one frame
	deadStart int
	idleTimer *time.Timer
}

// NewMediaPipeTracker creates a new MediaPipe tracker. The Python process is
// started lazily on the first frame. It returns ErrUnsupported when the
// service script cannot be found.
func NewMediaPipeTracker(config Config, logger *logrus.Logger) (*MediaPipeTracker, error) {
	scriptPath := config.ScriptPath
	if scriptPath == "" {
		scriptPath = findServiceScript()
	}
	if scriptPath == "" {
		return nil, fmt.Errorf("%s not found: %w", serviceScript, ErrUnsupported)
	}
	if _, err := os.Stat(scriptPath); err != nil {
		return nil, fmt.Errorf("%s: %w", scriptPath, ErrUnsupported)
	}

	return &MediaPipeTracker{
		config:     config,
		scriptPath: scriptPath,
		log:        logger.WithField("component", "tracker"),
	}, nil
}

// Track encodes the frame, sends it to the service and decodes the anchors.
func (t *MediaPipeTracker) Track(frame *gocv.Mat) ([]FaceAnchor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ensureStarted(); err != nil {
		return nil, t.abort(err)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	if err := writeFrame(t.stdin, buf.GetBytes()); err != nil {
		return nil, t.abort(err)
	}

	line, err := t.stdout.ReadBytes('\n')
	if err != nil {
		return nil, t.abort(fmt.Errorf("read response: %w", err))
	}
	t.answered = true
	t.deadStart = 0

	anchors, err := decodeResponse(line)
	if errors.Is(err, errMalformed) {
		// The stream is out of step; a fresh process resynchronizes it.
		return nil, t.abort(err)
	}
	if err != nil {
		return nil, err
	}

	t.resetIdleTimer()
	return anchors, nil
}

// abort tears down a broken service so the next frame starts a new one.
// Once the service has died maxDeadStarts times in a row without answering,
// err is reported as ErrUnsupported and the count starts over.
func (t *MediaPipeTracker) abort(err error) error {
	if !t.answered {
		t.deadStart++
	}
	if werr := t.shutdown(); werr != nil {
		t.log.WithError(werr).Debug("face service exit status")
	}

	if t.deadStart >= maxDeadStarts {
		n := t.deadStart
		t.deadStart = 0
		return fmt.Errorf("face service exited %d times without answering (%v): %w", n, err, ErrUnsupported)
	}
	return err
}

// Close shuts down the Python process.
func (t *MediaPipeTracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shutdown()
}

func (t *MediaPipeTracker) ensureStarted() error {
	if t.started {
		return nil
	}

	python := t.config.Python
	if python == "" {
		python = findVenvPython()
	}
	if python == "" {
		python = "python3"
	}

	t.cmd = exec.Command(python, t.scriptPath,
		"--max-faces", strconv.Itoa(t.config.MaxFaces),
		"--min-confidence", strconv.FormatFloat(t.config.MinConfidence, 'f', -1, 64),
	)

	stdin, err := t.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := t.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	stderr := t.log.WriterLevel(logrus.WarnLevel)
	t.cmd.Stderr = stderr

	if err := t.cmd.Start(); err != nil {
		stderr.Close()
		t.cmd = nil
		return fmt.Errorf("start face service: %w", err)
	}

	t.stdin = stdin
	t.stdout = bufio.NewReader(stdout)
	t.stderr = stderr
	t.started = true
	t.answered = false
	t.log.WithField("script", t.scriptPath).Info("face service started")

	return nil
}

func (t *MediaPipeTracker) shutdown() error {
	if !t.started {
		return nil
	}

	if t.idleTimer != nil {
		t.idleTimer.Stop()
		t.idleTimer = nil
	}

	if t.stdin != nil {
		t.stdin.Close()
	}

	err := t.cmd.Wait()
	t.stderr.Close()
	t.started = false
	t.cmd = nil
	t.stdin = nil
	t.stdout = nil
	t.stderr = nil
	t.answered = false
	t.log.Info("face service stopped")

	return err
}

func (t *MediaPipeTracker) resetIdleTimer() {
	if t.idleTimer != nil {
		t.idleTimer.Stop()
	}
	t.idleTimer = time.AfterFunc(idleShutdown, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if err := t.shutdown(); err != nil {
			t.log.WithError(err).Warn("face service exited with error")
		}
	})
}

// writeFrame writes one length-prefixed frame.
func writeFrame(w io.Writer, data []byte) error {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(data)))

	if _, err := w.Write(length[:]); err != nil {
		return fmt.Errorf("write length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write data: %w", err)
	}
	return nil
}

// jsonFace is one face in the service's response.
type jsonFace struct {
	ID          string             `json:"id"`
	Score       float64            `json:"score"`
	BlendShapes map[string]float64 `json:"blend_shapes"`
}

// errMalformed marks a response line that is not valid JSON.
var errMalformed = errors.New("malformed response")

// decodeResponse parses one response line into anchors sorted by score.
// Faces without an ID are numbered by their position in the response.
func decodeResponse(line []byte) ([]FaceAnchor, error) {
	var response struct {
		Faces []jsonFace `json:"faces"`
		Error string     `json:"error"`
	}
	if err := json.Unmarshal(line, &response); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("face service: %s", response.Error)
	}

	anchors := make([]FaceAnchor, len(response.Faces))
	for i, f := range response.Faces {
		id := f.ID
		if id == "" {
			id = "face-" + strconv.Itoa(i)
		}
		anchors[i] = FaceAnchor{
			ID:          id,
			Score:       f.Score,
			BlendShapes: expression.ParseSample(f.BlendShapes),
		}
	}
	ByScore(anchors)

	return anchors, nil
}

func findServiceScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("scripts", serviceScript),
		filepath.Join("..", "scripts", serviceScript),
		filepath.Join(execDir, "scripts", serviceScript),
		filepath.Join(os.Getenv("HOME"), ".facewatch", "scripts", serviceScript),
	}

	return firstExisting(candidates)
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".facewatch/venv/bin/python"),
	}

	return firstExisting(candidates)
}

func firstExisting(paths []string) string {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if abs, err := filepath.Abs(path); err == nil {
				return abs
			}
			return path
		}
	}
	return ""
}
