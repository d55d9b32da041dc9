package poolcoach

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"

	"github.com/menta2k/pool-coach/pkg/apperrors"
	"github.com/menta2k/pool-coach/pkg/client"
	"github.com/menta2k/pool-coach/pkg/session"
	"github.com/menta2k/pool-coach/pkg/types"
)

const cannedReply = `{"recommendations":[{"targetBallColor":"Yellow","targetBallLocation":"Middle right cushion","difficulty":"Medium","technique":{"aiming":"Half ball","spin":"Low left","power":"Soft","bridge":"Closed"},"reasoning":"Clear path to the middle.","nextShotPlan":"Roll to centre table","confidenceScore":72}],"generalAdvice":"Take your time."}`

type fakeSubmitter struct {
	mu    sync.Mutex
	reply string
	err   error
	reqs  []client.Request
	hold  chan struct{}
}

func (f *fakeSubmitter) Name() string { return "fake" }

func (f *fakeSubmitter) Submit(ctx context.Context, req client.Request) (string, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	hold := f.hold
	f.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

func (f *fakeSubmitter) requests() []client.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]client.Request(nil), f.reqs...)
}

// createTablePhoto creates a JPEG of a green table
func createTablePhoto(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{20, 120, 50, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}
	return buf.Bytes()
}

var params = types.AnalysisParameters{Suit: types.SuitYellows, Mode: types.ModeCasual}

func TestNewDefaults(t *testing.T) {
	pc := New(&fakeSubmitter{}, Options{})
	if pc.options.MaxDimension != 1024 || pc.options.Quality != 0.8 {
		t.Errorf("unexpected defaults %+v", pc.options)
	}
	if pc.processor == nil || pc.analyzer == nil || pc.session == nil {
		t.Error("component is nil")
	}
	if GetVersion() != Version {
		t.Error("version mismatch")
	}
}

func TestAnalyzePhoto(t *testing.T) {
	fake := &fakeSubmitter{reply: cannedReply}
	pc := New(fake, Options{MaxDimension: 200})

	result, err := pc.AnalyzePhoto(context.Background(), createTablePhoto(t, 800, 400), params)
	if err != nil {
		t.Fatalf("AnalyzePhoto failed: %v", err)
	}
	best, ok := result.Best()
	if !ok || best.TargetBallColor != "Yellow" {
		t.Errorf("unexpected result %+v", result)
	}

	reqs := fake.requests()
	if len(reqs) != 1 {
		t.Fatalf("Expected one backend call, got %d", len(reqs))
	}
	if reqs[0].Image.Width != 200 || reqs[0].Image.Height != 100 {
		t.Errorf("image not bounded: %dx%d", reqs[0].Image.Width, reqs[0].Image.Height)
	}
}

func TestAnalyzePhotoDecodeError(t *testing.T) {
	fake := &fakeSubmitter{reply: cannedReply}
	pc := New(fake, Options{})

	_, err := pc.AnalyzePhoto(context.Background(), []byte("definitely not a photo"), params)
	if !errors.Is(err, apperrors.ErrInvalidInput) && !errors.Is(err, apperrors.ErrDecode) {
		t.Errorf("Expected input error, got %v", err)
	}
	if len(fake.requests()) != 0 {
		t.Error("backend must not be called for a bad photo")
	}
}

func TestScanSnapshot(t *testing.T) {
	fake := &fakeSubmitter{reply: cannedReply}
	pc := New(fake, Options{})

	tok := pc.Scan(context.Background(), createTablePhoto(t, 64, 48), params)
	pc.Wait()

	snap := pc.Snapshot()
	if snap.Token != tok || snap.State != session.StateDone {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if len(snap.Result.Recommendations) != 1 {
		t.Error("result missing")
	}
}

func TestResetSupersedesScan(t *testing.T) {
	fake := &fakeSubmitter{reply: cannedReply, hold: make(chan struct{})}
	pc := New(fake, Options{})

	pc.Scan(context.Background(), createTablePhoto(t, 64, 48), params)
	pc.Reset()
	close(fake.hold)
	pc.Wait()

	if snap := pc.Snapshot(); snap.State != session.StateIdle || snap.Result != nil {
		t.Errorf("Expected idle after reset, got %+v", snap)
	}
}
