package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/agrivision/internal/config"
	domain "github.com/bryanwahyu/agrivision/internal/domain/analysis"
	"github.com/bryanwahyu/agrivision/internal/infra/observability"
	"github.com/bryanwahyu/agrivision/internal/middleware"
)

func analyzeCMD() *cobra.Command {
	var (
		image    string
		backends []string
		prompt   string
		detail   string
		timeout  time.Duration
	)
	var analyze = &cobra.Command{
		Use:   "analyze",
		Short: "Analyze one image and print the combined result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath(cmd))
			if err != nil {
				return fmt.Errorf("config load error: %w", err)
			}
			req, err := imageRequest(image)
			if err != nil {
				return err
			}
			req.Prompt = middleware.SanitizeString(prompt)
			req.Options.DetailLevel = domain.DetailLevel(detail)
			for _, b := range backends {
				req.Backends = append(req.Backends, domain.BackendID(b))
			}
			if timeout <= 0 {
				timeout = cfg.Analysis.Timeout
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runAnalyze(ctx, cfg, req, cmd.OutOrStdout())
		},
	}
	analyze.Flags().StringVar(&image, "image", "", "image URL or local file path")
	analyze.Flags().StringSliceVar(&backends, "backend", nil, "backend id (repeatable; default analysis.defaultBackends)")
	analyze.Flags().StringVar(&prompt, "prompt", "", "extra instruction for LLM backends")
	analyze.Flags().StringVar(&detail, "detail", string(domain.DetailDetailed), "basic | detailed | comprehensive")
	analyze.Flags().DurationVar(&timeout, "timeout", 0, "overall deadline (default analysis.timeout)")
	_ = analyze.MarkFlagRequired("image")
	return analyze
}

func runAnalyze(ctx context.Context, cfg *config.Config, req domain.AnalysisRequest, out io.Writer) error {
	log, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	a, err := buildApp(ctx, cfg, log, wireOptions{inMemory: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if len(req.Backends) == 0 {
		req.Backends = defaultBackends(cfg, a.svc.Registry)
	}
	res, err := a.svc.Submit(ctx, req)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// imageRequest: URLs are passed through, anything else is read as a local file.
func imageRequest(image string) (domain.AnalysisRequest, error) {
	image = strings.TrimSpace(image)
	if image == "" {
		return domain.AnalysisRequest{}, fmt.Errorf("%w: --image is required", domain.ErrInvalidRequest)
	}
	if strings.HasPrefix(image, "http://") || strings.HasPrefix(image, "https://") {
		return domain.AnalysisRequest{ImageURL: image}, nil
	}

	data, err := os.ReadFile(image)
	if err != nil {
		return domain.AnalysisRequest{}, fmt.Errorf("read image: %w", err)
	}
	if len(data) > middleware.MaxImageBytes {
		return domain.AnalysisRequest{}, fmt.Errorf("%w: image exceeds %d bytes", domain.ErrInvalidRequest, middleware.MaxImageBytes)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return domain.AnalysisRequest{}, fmt.Errorf("%w: %s is not an image (%s)", domain.ErrInvalidRequest, image, mime)
	}
	return domain.AnalysisRequest{
		ImageData: base64.StdEncoding.EncodeToString(data),
		ImageMIME: mime,
	}, nil
}
