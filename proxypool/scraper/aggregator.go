package scraper

import (
	"context"
	"time"
	"unicode/utf8"

	"liuproxy_harvest/internal/shared/logger"
	"liuproxy_harvest/proxypool/parser"
)

const DefaultSourcePause = 500 * time.Millisecond

// SourceReport 记录单个来源的抓取结果。
type SourceReport struct {
	Name       string
	Candidates int
	Err        error
}

// CollectReport summarizes one acquisition pass.
type CollectReport struct {
	Sources []SourceReport
	Unique  int
}

// Aggregator 依次读取所有来源，提取并去重候选链接。
type Aggregator struct {
	// DecodeBase64 enables the whole-payload base64 sniff for subscription
	// endpoints that publish their list encoded.
	DecodeBase64 bool
	// Pause is waited between two consecutive sources.
	Pause time.Duration
}

// NewAggregator 创建一个使用默认参数的 Aggregator。
func NewAggregator() *Aggregator {
	return &Aggregator{
		DecodeBase64: true,
		Pause:        DefaultSourcePause,
	}
}

// Collect reads the sources one after another and returns the union of their
// candidates in first-seen order. A failing source contributes nothing.
func (a *Aggregator) Collect(ctx context.Context, sources []Source) ([]string, CollectReport) {
	l := logger.WithComponent("Harvest/Aggregator")

	var (
		unique []string
		seen   = make(map[string]struct{})
		report CollectReport
	)

	for i, src := range sources {
		if ctx.Err() != nil {
			l.Warn().Err(ctx.Err()).Int("remaining", len(sources)-i).Msg("Acquisition cancelled.")
			break
		}

		candidates, err := a.fromSource(ctx, src)
		report.Sources = append(report.Sources, SourceReport{Name: src.Name(), Candidates: len(candidates), Err: err})
		if err != nil {
			l.Warn().Err(err).Str("source", src.Name()).Msg("Failed to fetch source, skipping.")
		} else {
			l.Info().Str("source", src.Name()).Int("count", len(candidates)).Msg("Source fetched.")
		}

		for _, c := range candidates {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			unique = append(unique, c)
		}

		if i < len(sources)-1 && a.Pause > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(a.Pause):
			}
		}
	}

	report.Unique = len(unique)
	l.Info().Int("sources", len(report.Sources)).Int("unique", report.Unique).Msg("Acquisition finished.")
	return unique, report
}

func (a *Aggregator) fromSource(ctx context.Context, src Source) ([]string, error) {
	raw, err := src.Raw(ctx)
	if err != nil {
		return nil, err
	}
	if a.DecodeBase64 {
		if decoded, ok := DecodeSubscription(raw); ok {
			raw = decoded
		}
	}
	return ExtractCandidates(raw), nil
}

// DecodeSubscription tries to read raw as one base64 blob. The decoded text
// is accepted only when it is valid UTF-8 and mentions a known scheme prefix.
func DecodeSubscription(raw string) (string, bool) {
	decoded, err := parser.DecodeBase64(raw)
	if err != nil || len(decoded) == 0 {
		return "", false
	}
	if !utf8.Valid(decoded) {
		return "", false
	}
	text := string(decoded)
	if !containsSchemePrefix(text) {
		return "", false
	}
	return text, true
}
