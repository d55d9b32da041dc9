package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	poolcoach "github.com/menta2k/pool-coach"
	"github.com/menta2k/pool-coach/internal/backend"
	"github.com/menta2k/pool-coach/internal/config"
	"github.com/menta2k/pool-coach/internal/logger"
	"github.com/menta2k/pool-coach/internal/utils"
	"github.com/menta2k/pool-coach/pkg/apperrors"
	"github.com/menta2k/pool-coach/pkg/processing"
	"github.com/menta2k/pool-coach/pkg/types"
)

func main() {
	var in, outDir, configPath, writeConfig string
	var suit, mode string
	var foul, debug bool
	var backendName, url, model string
	var sendFmt string
	var sendSize, sendQ int
	var timeout time.Duration

	flag.StringVar(&in, "in", "", "input photo path, directory of photos, or URL")
	flag.StringVar(&outDir, "out", "", "directory for <photo>_shots.json results (default: stdout only)")
	flag.StringVar(&configPath, "config", "", "config file (default: "+config.GetConfigPath()+" if present)")
	flag.StringVar(&writeConfig, "write-config", "", "write the effective config to this file and exit")

	flag.StringVar(&suit, "suit", "open", "your suit: open|reds|yellows")
	flag.BoolVar(&foul, "foul", false, "opponent fouled: ball in hand")
	flag.StringVar(&mode, "mode", "casual", "coaching persona: casual|competition")

	flag.StringVar(&backendName, "backend", "", "backend to use: gemini, ollama or llamacpp")
	flag.StringVar(&url, "url", "", "server URL (defaults: ollama="+backend.DefaultOllamaURL+", llamacpp="+backend.DefaultLlamaCppURL+")")
	flag.StringVar(&model, "model", "", "model name (default per backend)")
	flag.DurationVar(&timeout, "timeout", 0, "timeout per photo (default from config)")

	flag.StringVar(&sendFmt, "sendfmt", "", "format sent to the backend: jpeg|webp")
	flag.IntVar(&sendSize, "sendsize", 0, "max long side sent to the backend (px, 0=original)")
	flag.IntVar(&sendQ, "sendq", 0, "quality of the image sent to the backend (1-100)")

	flag.BoolVar(&debug, "debug", false, "verbose development logging")

	flag.Parse()
	if in == "" && writeConfig == "" {
		log.Fatalf("usage: %s -in table.jpg|dir|URL [-suit open|reds|yellows] [-foul] [-mode casual|competition] [-backend gemini|ollama|llamacpp] [-url server_url] [-config file] [-out dir]", filepath.Base(os.Args[0]))
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.LoadDefaultPath()
	}
	if err != nil {
		log.Fatal(err)
	}

	// Flags given explicitly win over file and environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Backend.Name = backendName
		case "url":
			cfg.Backend.URL = url
		case "model":
			cfg.Backend.Model = model
		case "timeout":
			cfg.Backend.Timeout = timeout
		case "sendfmt":
			cfg.Preprocess.Format = normalizeFormat(sendFmt)
		case "sendsize":
			cfg.Preprocess.MaxDimension = maxDimensionFlag(sendSize)
		case "sendq":
			cfg.Preprocess.Quality = float64(sendQ) / 100
		}
	})
	if debug {
		cfg.Log.Mode = "debug"
	}

	if writeConfig != "" {
		if err := cfg.SaveToFile(writeConfig); err != nil {
			log.Fatal(err)
		}
		log.Printf("wrote %s", writeConfig)
		return
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	params := types.AnalysisParameters{Foul: foul}
	if params.Suit, err = types.ParseSuit(suit); err != nil {
		log.Fatal(err)
	}
	if params.Mode, err = types.ParseMode(mode); err != nil {
		log.Fatal(err)
	}

	zl, err := logger.New(cfg.Log.Mode)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync(zl)

	submitter, err := backend.New(cfg.Backend)
	if err != nil {
		zl.Fatal("backend setup failed", zap.Error(err))
	}
	defer backend.Close(submitter)

	coach := poolcoach.New(submitter, poolcoach.Options{
		MaxDimension: cfg.Preprocess.MaxDimension,
		Quality:      cfg.Preprocess.Quality,
		Processing: processing.Config{
			Format:       cfg.Preprocess.Format,
			MinDimension: cfg.Preprocess.MinDimension,
			MaxPixels:    cfg.Preprocess.MaxPixels,
		},
		Logger: zl,
	})
	loader := processing.NewProcessor()

	photos := []string{in}
	if utils.DirExists(in) {
		if photos, err = utils.ListImageFiles(in); err != nil {
			zl.Fatal("failed to list photos", zap.String("dir", in), zap.Error(err))
		}
		if len(photos) == 0 {
			zl.Fatal("no photos found", zap.String("dir", in))
		}
	}
	if outDir != "" {
		if err := utils.EnsureDir(outDir); err != nil {
			zl.Fatal("failed to create output directory", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zl.Info("analyzing",
		zap.Int("photos", len(photos)),
		zap.String("backend", submitter.Name()),
		zap.String("suit", string(params.Suit)),
		zap.Bool("foul", params.Foul),
		zap.String("mode", string(params.Mode)),
	)

	failed := 0
	for _, photo := range photos {
		if err := analyzeOne(ctx, coach, loader, photo, params, cfg.Backend.Timeout, outDir, zl); err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %s\n", photo, apperrors.UserMessage(err))
			zl.Error("analysis failed", zap.String("photo", photo), zap.Error(err))
		}
		if ctx.Err() != nil {
			break
		}
	}
	if failed > 0 {
		logger.Sync(zl)
		os.Exit(1)
	}
}

func analyzeOne(ctx context.Context, coach *poolcoach.PoolCoach, loader *processing.Processor, photo string, params types.AnalysisParameters, timeout time.Duration, outDir string, zl *zap.Logger) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	raw, err := loader.LoadSmart(ctx, photo)
	if err != nil {
		return apperrors.NewInvalidInputError("load "+photo, err)
	}
	zl.Debug("loaded photo", zap.String("photo", photo), zap.String("size", utils.FormatFileSize(int64(len(raw)))))

	result, err := coach.AnalyzePhoto(ctx, raw, params)
	if err != nil {
		return err
	}

	js, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(js))

	if outDir != "" {
		path := utils.ResultFilename(photo, outDir)
		if err := os.WriteFile(path, js, 0o644); err != nil {
			return err
		}
		zl.Info("wrote result", zap.String("path", path))
	}
	return nil
}

// maxDimensionFlag maps -sendsize to a preprocess bound. 0 keeps the
// original size, which the library spells as a negative bound.
func maxDimensionFlag(n int) int {
	if n <= 0 {
		return -1
	}
	return n
}

func normalizeFormat(f string) string {
	switch strings.ToLower(f) {
	case "jpg", "jpeg":
		return processing.FormatJPEG
	case "webp":
		return processing.FormatWebP
	}
	return strings.ToLower(f)
}
