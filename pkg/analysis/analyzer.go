// Package analysis builds shot-analysis requests for a vision model and
// validates the structured replies.
//
// The model is asked for 2-3 ranked shots but the count is not enforced:
// any number of recommendations, including none, is a valid result as long
// as every field matches ResponseSchema. Recommendation order is kept
// exactly as returned; index 0 is the primary shot.
package analysis

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/menta2k/pool-coach/pkg/apperrors"
	"github.com/menta2k/pool-coach/pkg/client"
	"github.com/menta2k/pool-coach/pkg/types"
)

var supportedMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Analyzer sends prepared photos to a vision backend
type Analyzer struct {
	submitter client.Submitter
	logger    *zap.Logger
}

// NewAnalyzer creates an analyzer over a backend. A nil logger disables logging.
func NewAnalyzer(submitter client.Submitter, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{submitter: submitter, logger: logger}
}

// BuildRequest assembles the request for one photo without sending it
func BuildRequest(image types.EncodedImage, params types.AnalysisParameters) client.Request {
	return client.Request{
		Image:             image,
		Prompt:            BuildPrompt(params),
		SystemInstruction: SystemInstruction(params.Mode),
		Schema:            ResponseSchema(),
	}
}

// Analyze asks the backend for shot recommendations. It makes exactly one
// outbound call and never retries.
func (a *Analyzer) Analyze(ctx context.Context, image types.EncodedImage, params types.AnalysisParameters) (*types.AnalysisResult, error) {
	if len(image.Data) == 0 {
		return nil, apperrors.NewInvalidInputError("empty encoded image", nil)
	}
	if !supportedMIMETypes[image.MIMEType] {
		return nil, apperrors.NewInvalidInputError("unsupported MIME type "+image.MIMEType, nil)
	}
	if err := params.Validate(); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error(), err)
	}

	log := a.logger.With(
		zap.String("backend", a.submitter.Name()),
		zap.String("suit", string(params.Suit)),
		zap.Bool("foul", params.Foul),
		zap.String("mode", string(params.Mode)),
		zap.Int("image_bytes", len(image.Data)),
	)

	start := time.Now()
	text, err := a.submitter.Submit(ctx, BuildRequest(image, params))
	if err != nil {
		fields := []zap.Field{zap.Error(err), zap.Duration("cost", time.Since(start))}
		var se client.StatusError
		if errors.As(err, &se) {
			fields = append(fields, zap.Int("upstream_status", se.HTTPStatus()))
		}
		log.Error("analysis request failed", fields...)
		return nil, apperrors.NewAnalysisFailedError(a.submitter.Name(), err)
	}

	if strings.TrimSpace(text) == "" {
		log.Warn("analysis returned no text", zap.Duration("cost", time.Since(start)))
		return nil, apperrors.NewEmptyResponseError(a.submitter.Name())
	}

	result, err := ParseResult(text)
	if err != nil {
		log.Warn("analysis reply rejected", zap.Error(err), zap.Int("reply_bytes", len(text)))
		return nil, err
	}

	log.Info("analysis complete",
		zap.Int("recommendations", len(result.Recommendations)),
		zap.Duration("cost", time.Since(start)),
	)
	return result, nil
}
