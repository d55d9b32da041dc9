// Package poolcoach turns a photo of a pool table into ranked shot advice.
//
// A photo goes through two stages:
//
//  1. Processing (pkg/processing): decode, bound the long edge, flatten onto
//     white and re-encode to a compact JPEG or WebP payload.
//  2. Analysis (pkg/analysis): build a persona-specific prompt and a strict
//     output schema, send both with the image to a vision backend, and
//     validate the structured reply.
//
// Backends implement client.Submitter. Gemini (pkg/gemini), Ollama
// (pkg/ollama) and OpenAI-compatible servers such as llama.cpp
// (pkg/llamacpp) are provided.
//
// Basic usage:
//
//	backend, err := gemini.NewClient(os.Getenv("GEMINI_API_KEY"), "")
//	if err != nil {
//		log.Fatal(err)
//	}
//	coach := poolcoach.New(backend, poolcoach.Options{})
//
//	raw, _ := os.ReadFile("table.jpg")
//	result, err := coach.AnalyzePhoto(ctx, raw, types.AnalysisParameters{
//		Suit: types.SuitReds,
//		Mode: types.ModeCasual,
//	})
//	if err != nil {
//		fmt.Println(apperrors.UserMessage(err))
//		return
//	}
//	if best, ok := result.Best(); ok {
//		fmt.Println(best.TargetBallColor, best.Technique.Aiming)
//	}
//
// Scan runs the same pipeline asynchronously. Starting a new scan or calling
// Reset supersedes whatever is in flight, and a superseded reply is dropped.
package poolcoach

import (
	"context"

	"go.uber.org/zap"

	"github.com/menta2k/pool-coach/pkg/analysis"
	"github.com/menta2k/pool-coach/pkg/client"
	"github.com/menta2k/pool-coach/pkg/processing"
	"github.com/menta2k/pool-coach/pkg/session"
	"github.com/menta2k/pool-coach/pkg/types"
)

// Version of the pool-coach library
const Version = "1.0.0"

// Options configures a PoolCoach. Zero values select the defaults.
type Options struct {
	// MaxDimension bounds the longer edge sent to the backend. A negative
	// value keeps the original size.
	MaxDimension int
	// Quality is the lossy encoder quality in (0,1]
	Quality float64
	// Processing selects output format and minimum input size
	Processing processing.Config
	Logger     *zap.Logger
}

// PoolCoach wires the preprocessor, the analysis contract and a session
type PoolCoach struct {
	processor *processing.Processor
	analyzer  *analysis.Analyzer
	session   *session.Session
	options   Options
	logger    *zap.Logger
}

// New creates a PoolCoach over the given backend
func New(submitter client.Submitter, opts Options) *PoolCoach {
	if opts.MaxDimension == 0 {
		opts.MaxDimension = processing.DefaultMaxDimension
	}
	if opts.Quality == 0 {
		opts.Quality = processing.DefaultQuality
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &PoolCoach{
		processor: processing.NewProcessorWithConfig(opts.Processing),
		analyzer:  analysis.NewAnalyzer(submitter, opts.Logger.Named("analysis")),
		session:   session.New(opts.Logger.Named("session")),
		options:   opts,
		logger:    opts.Logger,
	}
}

// Prepare runs only the preprocessing stage
func (pc *PoolCoach) Prepare(raw []byte) (types.EncodedImage, error) {
	return pc.processor.Prepare(raw, pc.options.MaxDimension, pc.options.Quality)
}

// Analyze sends an already prepared image to the backend
func (pc *PoolCoach) Analyze(ctx context.Context, image types.EncodedImage, params types.AnalysisParameters) (*types.AnalysisResult, error) {
	return pc.analyzer.Analyze(ctx, image, params)
}

// AnalyzePhoto prepares raw and analyzes it in one call
func (pc *PoolCoach) AnalyzePhoto(ctx context.Context, raw []byte, params types.AnalysisParameters) (*types.AnalysisResult, error) {
	image, err := pc.Prepare(raw)
	if err != nil {
		return nil, err
	}
	pc.logger.Debug("photo prepared",
		zap.Int("raw_bytes", len(raw)),
		zap.Int("encoded_bytes", len(image.Data)),
		zap.Int("width", image.Width),
		zap.Int("height", image.Height),
	)
	return pc.Analyze(ctx, image, params)
}

// Scan starts AnalyzePhoto in the background under a new session generation
// and returns its token. Results are read with Snapshot.
func (pc *PoolCoach) Scan(ctx context.Context, raw []byte, params types.AnalysisParameters) session.Token {
	return pc.session.Start(ctx, func(ctx context.Context) (*types.AnalysisResult, error) {
		return pc.AnalyzePhoto(ctx, raw, params)
	})
}

// Snapshot returns the state of the latest scan
func (pc *PoolCoach) Snapshot() session.Snapshot {
	return pc.session.Snapshot()
}

// Reset discards the latest result and supersedes any scan in flight
func (pc *PoolCoach) Reset() {
	pc.session.Reset()
}

// Wait blocks until every started scan has finished
func (pc *PoolCoach) Wait() {
	pc.session.Wait()
}

// Session exposes the underlying session, e.g. to set OnDeliver before
// the first Scan
func (pc *PoolCoach) Session() *session.Session {
	return pc.session
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
