package render

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/anchit2000/invoice-parsing-llms/internal/common"
)

type Config struct {
	Pdftoppm string // binary name or absolute path; if empty -> "pdftoppm"
	DPI      int    // rasterization DPI, default 300
	MaxBytes int64  // input byte ceiling, default 10 MiB
	MaxPages int    // 0 = no limit

	ImagesDir string // page artifacts land here, prefixed by content hash
	Enhance   bool   // post-process pages for model legibility
}

// Page is one rendered page image, addressable by page number.
type Page struct {
	Number int
	Path   string
}

// Result is the renderer output for a single document.
type Result struct {
	ContentHash []byte
	HashHex     string
	Pages       []Page // ordered by page number
	PageCount   int
	Truncated   bool // conversion stopped before the declared page count
	Duration    time.Duration
}

// Renderer converts PDF bytes into ordered page images. It is stateless;
// dedup by content hash is the caller's concern.
type Renderer struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewRenderer(cfg Config, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10 << 20
	}
	if cfg.ImagesDir == "" {
		cfg.ImagesDir = "./images"
	}
	return &Renderer{cfg: cfg, runner: execRunner{}, logger: logger}
}

// NewRendererWithRunner is for tests that stub the rasterizer binary.
func NewRendererWithRunner(cfg Config, runner Runner, logger *slog.Logger) *Renderer {
	r := NewRenderer(cfg, logger)
	r.runner = runner
	return r
}

// Render hashes the input, validates it as a PDF, and rasterizes one PNG per
// page in page order. A conversion failure after the first page returns the
// pages produced so far rather than failing the document.
func (r *Renderer) Render(ctx context.Context, file []byte) (Result, error) {
	start := time.Now()

	if int64(len(file)) > r.cfg.MaxBytes {
		return Result{}, &common.SizeError{Size: int64(len(file)), Limit: r.cfg.MaxBytes}
	}

	sum := sha256.Sum256(file)
	res := Result{ContentHash: sum[:], HashHex: hex.EncodeToString(sum[:])}

	declared, err := r.preflight(file)
	if err != nil {
		return res, &common.RenderError{Cause: err}
	}
	if r.cfg.MaxPages > 0 && declared > r.cfg.MaxPages {
		declared = r.cfg.MaxPages
	}

	if err := os.MkdirAll(r.cfg.ImagesDir, 0o755); err != nil {
		return res, &common.RenderError{Cause: err}
	}

	tmp, err := os.CreateTemp("", "inv-render-*.pdf")
	if err != nil {
		return res, &common.RenderError{Cause: err}
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(file); err != nil {
		_ = tmp.Close()
		return res, &common.RenderError{Cause: err}
	}
	if err := tmp.Close(); err != nil {
		return res, &common.RenderError{Cause: err}
	}

	for pageNum := 1; pageNum <= declared; pageNum++ {
		path, convErr := r.renderPage(ctx, tmp.Name(), res.HashHex, pageNum)
		if convErr != nil {
			if pageNum == 1 {
				return res, &common.RenderError{Page: 1, Cause: convErr}
			}
			// Best-effort: keep the pages we already have.
			r.logger.Warn("page conversion stopped early",
				"hash", res.HashHex, "page", pageNum, "declared_pages", declared, "error", convErr)
			res.Truncated = true
			break
		}
		res.Pages = append(res.Pages, Page{Number: pageNum, Path: path})
	}

	res.PageCount = len(res.Pages)
	res.Duration = time.Since(start)
	r.logger.Info("render.done",
		"hash", res.HashHex, "pages", res.PageCount, "truncated", res.Truncated,
		"elapsed_ms", res.Duration.Milliseconds())
	return res, nil
}

// preflight parses the PDF with pdfcpu and returns the declared page count.
func (r *Renderer) preflight(file []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(file), conf)
	if err != nil {
		return 0, fmt.Errorf("pdfcpu read: %w", err)
	}
	if pdfCtx.PageCount < 1 {
		return 0, fmt.Errorf("pdf has no pages")
	}
	return pdfCtx.PageCount, nil
}

// renderPage rasterizes a single page and settles it at the canonical
// <hash>_page_<n>.png path.
func (r *Renderer) renderPage(ctx context.Context, pdfPath, hashHex string, pageNum int) (string, error) {
	prefix := filepath.Join(r.cfg.ImagesDir, fmt.Sprintf("%s_p%d", hashHex, pageNum))
	// pdftoppm -f N -l N -r <dpi> -png <in.pdf> <prefix>
	_, errb, err := r.runner.Run(ctx, r.cfg.Pdftoppm,
		"-f", fmt.Sprintf("%d", pageNum),
		"-l", fmt.Sprintf("%d", pageNum),
		"-r", fmt.Sprintf("%d", r.cfg.DPI),
		"-png", pdfPath, prefix)
	if err != nil {
		return "", fmt.Errorf("pdftoppm: %s: %w", truncate(string(errb), 512), err)
	}

	// pdftoppm appends its own page suffix (prefix-1.png, prefix-01.png, ...).
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) == 0 {
		return "", fmt.Errorf("pdftoppm produced no image for page %d", pageNum)
	}

	final := filepath.Join(r.cfg.ImagesDir, fmt.Sprintf("%s_page_%d.png", hashHex, pageNum))
	if err := os.Rename(matches[0], final); err != nil {
		return "", err
	}
	for _, extra := range matches[1:] {
		_ = os.Remove(extra)
	}

	if r.cfg.Enhance {
		if err := enhancePage(final); err != nil {
			// Enhancement is cosmetic; the raw page is still usable.
			r.logger.Warn("page enhancement failed", "path", final, "error", err)
		}
	}
	return final, nil
}

// enhancePage sharpens and bumps contrast so small print survives the
// model's image downscaling.
func enhancePage(path string) error {
	src, err := imaging.Open(path)
	if err != nil {
		return err
	}
	img := imaging.Sharpen(src, 1.0)
	img = imaging.AdjustContrast(img, 10)
	return imaging.Save(img, path)
}

// Cleanup removes every artifact in ImagesDir sharing the content hash
// prefix. Callers invoke this once the owning job reaches a terminal state.
func (r *Renderer) Cleanup(hashHex string) error {
	if hashHex == "" {
		return nil
	}
	entries, err := os.ReadDir(r.cfg.ImagesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var firstErr error
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !bytes.HasPrefix([]byte(e.Name()), []byte(hashHex)) {
			continue
		}
		if err := os.Remove(filepath.Join(r.cfg.ImagesDir, e.Name())); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}
	r.logger.Debug("render.cleanup", "hash", hashHex, "removed", removed)
	return firstErr
}
