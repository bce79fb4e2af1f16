package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/contract-analyzer/constants"
)

// ImageConfidenceThreshold is the default blended confidence under which OCR output is flagged.
const ImageConfidenceThreshold = 0.6

// TesseractProvider OCRs images directly and scanned PDFs after rasterizing them.
type TesseractProvider struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func (p *TesseractProvider) Name() string { return "tesseract" }

func (p *TesseractProvider) Extract(ctx context.Context, doc Document) (Result, error) {
	var images []string
	switch doc.Format {
	case constants.FormatImage:
		path, cleanup, err := writeTemp(doc, "png")
		if err != nil {
			return Result{}, err
		}
		defer cleanup()
		images = []string{path}
	case constants.FormatPDF:
		path, cleanup, err := writeTemp(doc, "pdf")
		if err != nil {
			return Result{}, err
		}
		defer cleanup()
		pngs, cleanupPNG, err := rasterizePDF(ctx, p.runner, p.cfg, path)
		if err != nil {
			return Result{}, err
		}
		defer cleanupPNG()
		images = pngs
	default:
		return Result{}, ErrUnsupportedFormat
	}

	pages := make([]string, 0, len(images))
	var warns []string
	var confSum float32
	for i, img := range images {
		txt, err := p.tesseractOCR(ctx, img)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			warns = append(warns, fmt.Sprintf("page %d: %v", i+1, err))
			pages = append(pages, "")
			continue
		}
		txt = Normalize(txt)
		pages = append(pages, txt)

		heur := heuristicConfidence(txt)
		conf := heur
		if ocrConf, err := p.tesseractTSVConfidence(ctx, img); err == nil && ocrConf > 0 {
			// weight the engine's own word confidences higher than the text heuristic
			conf = 0.7*ocrConf + 0.3*heur
		} else if err != nil {
			warns = append(warns, err.Error())
		}
		if conf > 1.0 {
			conf = 1.0
		}
		confSum += conf
	}
	conf := confSum / float32(len(images))
	low := conf < p.cfg.ConfidenceThreshold
	p.logger.Debug("ocr.tesseract.ok", "pages", len(pages), "confidence", conf, "low_confidence", low)
	return Result{
		Pages:         pages,
		Method:        "tesseract",
		Confidence:    conf,
		LowConfidence: low,
		Warnings:      warns,
	}, nil
}

func (p *TesseractProvider) baseArgs(path string) []string {
	args := []string{path, "stdout", "-l", p.cfg.TesseractLang}
	if p.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(p.cfg.PSM))
	}
	if p.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(p.cfg.OEM))
	}
	if p.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", p.cfg.TessdataDir)
	}
	return args
}

func (p *TesseractProvider) tesseractOCR(ctx context.Context, path string) (string, error) {
	// tesseract <file> stdout -l <lang>
	out, errb, err := p.runner.Run(ctx, p.cfg.Tesseract, p.baseArgs(path)...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, truncate(string(errb), 512))
	}
	return string(out), nil
}

// tesseractTSVConfidence runs tesseract in TSV mode and returns mean word conf in 0..1.
func (p *TesseractProvider) tesseractTSVConfidence(ctx context.Context, path string) (float32, error) {
	args := append(p.baseArgs(path), "tsv")
	out, _, err := p.runner.Run(ctx, p.cfg.Tesseract, args...)
	if err != nil {
		return 0, fmt.Errorf("tesseract tsv: %w", err)
	}
	return parseTSVConfidence(string(out)), nil
}

// parseTSVConfidence averages the conf column, skipping the header and non-word rows (-1).
func parseTSVConfidence(tsv string) float32 {
	var sum, n float64
	for i, ln := range strings.Split(tsv, "\n") {
		if i == 0 || ln == "" {
			continue
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		confStr := strings.TrimSpace(cols[10])
		if confStr == "" || confStr == "-1" {
			continue
		}
		if v, err := strconv.ParseFloat(confStr, 64); err == nil && v >= 0 {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float32(sum / n / 100.0)
}
