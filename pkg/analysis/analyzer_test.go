package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/menta2k/pool-coach/pkg/apperrors"
	"github.com/menta2k/pool-coach/pkg/client"
	"github.com/menta2k/pool-coach/pkg/types"
)

// fakeSubmitter returns canned replies and records what it was sent
type fakeSubmitter struct {
	reply string
	err   error
	calls int
	last  client.Request
}

func (f *fakeSubmitter) Name() string { return "fake" }

func (f *fakeSubmitter) Submit(ctx context.Context, req client.Request) (string, error) {
	f.calls++
	f.last = req
	return f.reply, f.err
}

type statusErr struct{ code int }

func (e statusErr) Error() string   { return fmt.Sprintf("server returned status %d", e.code) }
func (e statusErr) HTTPStatus() int { return e.code }

const shotA = `{"targetBallColor":"Red","targetBallLocation":"Near top right corner","difficulty":"Easy",
"technique":{"aiming":"Full face","spin":"Stun","power":"Soft","bridge":"Closed bridge"},
"reasoning":"Straight pot","nextShotPlan":"Stay central for the yellow","confidenceScore":40}`

const shotB = `{"targetBallColor":"Yellow","targetBallLocation":"Middle pocket","difficulty":"Hard",
"technique":{"aiming":"Thin cut left","spin":"Right english","power":"Medium","bridge":"Rail bridge"},
"reasoning":"Opens the cluster","nextShotPlan":"Come off two cushions","confidenceScore":95}`

func reply(shots ...string) string {
	return `{"recommendations":[` + strings.Join(shots, ",") + `],"generalAdvice":"Play the percentages."}`
}

func testImage() types.EncodedImage {
	return types.EncodedImage{Data: []byte{0xFF, 0xD8, 0xFF, 0xE0}, MIMEType: "image/jpeg", Width: 4, Height: 1}
}

func defaultParams() types.AnalysisParameters {
	return types.AnalysisParameters{Suit: types.SuitReds, Mode: types.ModeCasual}
}

func TestAnalyzePreservesOrder(t *testing.T) {
	fake := &fakeSubmitter{reply: reply(shotA, shotB)}
	a := NewAnalyzer(fake, nil)

	result, err := a.Analyze(context.Background(), testImage(), defaultParams())
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(result.Recommendations) != 2 {
		t.Fatalf("Expected 2 recommendations, got %d", len(result.Recommendations))
	}
	if result.Recommendations[0].TargetBallColor != "Red" || result.Recommendations[1].TargetBallColor != "Yellow" {
		t.Errorf("order changed: %+v", result.Recommendations)
	}
	best, ok := result.Best()
	if !ok || best.ConfidenceScore != 40 {
		t.Errorf("Best() should be the first element, got %+v", best)
	}
	if fake.calls != 1 {
		t.Errorf("Expected exactly one call, got %d", fake.calls)
	}
}

func TestAnalyzeRequestShape(t *testing.T) {
	fake := &fakeSubmitter{reply: reply()}
	a := NewAnalyzer(fake, nil)
	params := types.AnalysisParameters{Suit: types.SuitYellows, Foul: true, Mode: types.ModeCompetition}

	if _, err := a.Analyze(context.Background(), testImage(), params); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	req := fake.last
	if req.Image.MIMEType != "image/jpeg" || len(req.Image.Data) == 0 {
		t.Error("image was not passed through")
	}
	if req.Schema == nil || req.Schema.Type != types.TypeObject {
		t.Error("request must carry the response schema")
	}
	if req.SystemInstruction != SystemInstruction(types.ModeCompetition) {
		t.Errorf("unexpected system instruction %q", req.SystemInstruction)
	}
	for _, want := range []string{"YELLOWS", "ball-in-hand", "2-3", "tangent lines"} {
		if !strings.Contains(req.Prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestAnalyzeEmptyRecommendationsIsSuccess(t *testing.T) {
	fake := &fakeSubmitter{reply: `{"recommendations":[],"generalAdvice":"Photo too dark, no clear shot."}`}
	result, err := NewAnalyzer(fake, nil).Analyze(context.Background(), testImage(), defaultParams())
	if err != nil {
		t.Fatalf("empty list should be valid, got %v", err)
	}
	if result.Recommendations == nil || len(result.Recommendations) != 0 {
		t.Errorf("Expected empty non-nil list, got %#v", result.Recommendations)
	}
	if result.GeneralAdvice == "" {
		t.Error("general advice lost")
	}
	if _, ok := result.Best(); ok {
		t.Error("Best() should report no shot")
	}
}

func TestAnalyzeAcceptsAnyCount(t *testing.T) {
	shots := make([]string, 10)
	for i := range shots {
		shots[i] = shotA
	}
	fake := &fakeSubmitter{reply: reply(shots...)}
	result, err := NewAnalyzer(fake, nil).Analyze(context.Background(), testImage(), defaultParams())
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(result.Recommendations) != 10 {
		t.Errorf("Expected 10 recommendations, got %d", len(result.Recommendations))
	}
}

func TestAnalyzeTransportFailure(t *testing.T) {
	cause := statusErr{code: 429}
	fake := &fakeSubmitter{err: cause}

	result, err := NewAnalyzer(fake, nil).Analyze(context.Background(), testImage(), defaultParams())
	if result != nil {
		t.Error("no partial result may be returned on failure")
	}
	if !errors.Is(err, apperrors.ErrAnalysisFailed) {
		t.Fatalf("Expected AnalysisFailed, got %v", err)
	}
	if apperrors.UserMessage(err) == "" {
		t.Error("Expected a non-empty user message")
	}
	var se client.StatusError
	if !errors.As(err, &se) || se.HTTPStatus() != 429 {
		t.Error("underlying cause should be retained")
	}
}

func TestAnalyzeEmptyResponse(t *testing.T) {
	for _, text := range []string{"", "   \n\t"} {
		fake := &fakeSubmitter{reply: text}
		_, err := NewAnalyzer(fake, nil).Analyze(context.Background(), testImage(), defaultParams())
		if !errors.Is(err, apperrors.ErrEmptyResponse) {
			t.Errorf("reply %q: expected EmptyResponse, got %v", text, err)
		}
	}
}

func TestAnalyzeRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		image  types.EncodedImage
		params types.AnalysisParameters
	}{
		{"no data", types.EncodedImage{MIMEType: "image/jpeg"}, defaultParams()},
		{"gif", types.EncodedImage{Data: []byte("GIF89a"), MIMEType: "image/gif"}, defaultParams()},
		{"bad suit", testImage(), types.AnalysisParameters{Suit: "STRIPES", Mode: types.ModeCasual}},
		{"bad mode", testImage(), types.AnalysisParameters{Suit: types.SuitOpen, Mode: "drunk"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeSubmitter{reply: reply(shotA)}
			_, err := NewAnalyzer(fake, nil).Analyze(context.Background(), tt.image, tt.params)
			if !errors.Is(err, apperrors.ErrInvalidInput) {
				t.Errorf("Expected InvalidInput, got %v", err)
			}
			if fake.calls != 0 {
				t.Error("no network call may be made for invalid input")
			}
		})
	}
}
