package compress

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

const (
	// Pages shorter than this skip the service entirely.
	bypassThreshold = 50

	// Results at or below this length are treated as service noise.
	minUsefulResult = 10

	// DefaultRate asks the service to preserve ~95% of content and
	// only tighten formatting.
	DefaultRate = 0.95
)

// DefaultInstruction is the fixed cleaning/restructuring prompt sent
// with every page.
const DefaultInstruction = "Clean and restructure this manual page text. Preserve every technical detail, part number, warning, and step. Only tighten formatting and remove extraction artifacts."

// failureMarkers appear in bodies the service returns instead of a
// real compression result.
var failureMarkers = []string{"unavailable", "Invalid"}

// Compressor applies the per-page compression policy on top of the
// service client.
type Compressor struct {
	client *Client
	model  string
	rate   float64
	log    *slog.Logger
}

func NewCompressor(client *Client, model string, rate float64, log *slog.Logger) *Compressor {
	if rate <= 0 || rate > 1 {
		rate = DefaultRate
	}
	return &Compressor{
		client: client,
		model:  model,
		rate:   rate,
		log:    log,
	}
}

// CompressPage compresses one page's text, falling back to the input on
// any failure. Short pages bypass the service; callers drop pages whose
// trimmed text is empty before reaching here. Never returns an error:
// one page must not abort a batch.
func (c *Compressor) CompressPage(ctx context.Context, pageNum int, pageText string) string {
	if len(pageText) < bypassThreshold {
		return pageText
	}

	result, err := c.client.Compress(ctx, pageText, DefaultInstruction, c.model, c.rate)
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			c.log.Error("compression key rejected", "page", pageNum, "status", authErr.StatusCode, "sentinel", InvalidKeySentinel)
		} else {
			c.log.Warn("compression failed, using original text", "page", pageNum, "error", err)
		}
		return pageText
	}

	if !usable(result) {
		c.log.Warn("compression result rejected, using original text", "page", pageNum, "result_len", len(result))
		return pageText
	}
	return result
}

// usable rejects empty, truncated, and sentinel-bearing results.
func usable(result string) bool {
	if len(result) <= minUsefulResult {
		return false
	}
	for _, marker := range failureMarkers {
		if strings.Contains(result, marker) {
			return false
		}
	}
	return true
}
