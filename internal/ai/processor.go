// Package ai annotates message text: it detects the language and applies the
// requested processing mode.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// ErrUnsupportedMode is returned for a mode the processor does not know.
var ErrUnsupportedMode = errors.New("ai: unsupported mode")

// Modes understood by RuleProcessor.
const (
	ModeDefault = "default"
	ModeManual  = "manual"
	ModeClean   = "clean"
	ModeFormal  = "formal"
	ModeShout   = "shout"
)

// UnknownLanguage marks text whose script could not be classified.
const UnknownLanguage = "unknown"

// Result is the outcome of processing one message.
type Result struct {
	Processed string
	Language  string
	Elapsed   time.Duration
}

// Processor turns raw text into an annotated Result.
type Processor interface {
	Process(ctx context.Context, text, mode string) (Result, error)
}

// Fallback is the result used when processing fails.
func Fallback(text string) Result {
	return Result{Processed: text, Language: "en"}
}

// RuleProcessor is a deterministic, dependency-free Processor.
type RuleProcessor struct {
	now func() time.Time
}

// NewRuleProcessor returns a RuleProcessor using the wall clock.
func NewRuleProcessor() *RuleProcessor {
	return &RuleProcessor{now: time.Now}
}

// Process implements Processor.
func (p *RuleProcessor) Process(ctx context.Context, text, mode string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	start := p.now()
	out, err := transform(text, mode)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Processed: out,
		Language:  DetectLanguage(text),
		Elapsed:   p.now().Sub(start),
	}, nil
}

func transform(text, mode string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeDefault, ModeManual:
		return strings.TrimSpace(text), nil
	case ModeClean:
		return strings.Join(strings.Fields(text), " "), nil
	case ModeFormal:
		return formal(text), nil
	case ModeShout:
		return strings.ToUpper(strings.TrimSpace(text)), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMode, mode)
	}
}

func formal(text string) string {
	s := strings.Join(strings.Fields(text), " ")
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	switch runes[len(runes)-1] {
	case '.', '!', '?':
	default:
		runes = append(runes, '.')
	}
	return string(runes)
}

var scripts = []struct {
	table *unicode.RangeTable
	lang  string
}{
	{unicode.Latin, "en"},
	{unicode.Cyrillic, "ru"},
	{unicode.Arabic, "ar"},
	{unicode.Greek, "el"},
	{unicode.Han, "zh"},
	{unicode.Hiragana, "ja"},
	{unicode.Katakana, "ja"},
	{unicode.Hangul, "ko"},
	{unicode.Devanagari, "hi"},
}

// DetectLanguage classifies text by its dominant script. Kana outweighs Han
// so Japanese text mixing both is not reported as Chinese.
func DetectLanguage(text string) string {
	counts := make(map[string]int)
	for _, r := range text {
		for _, s := range scripts {
			if unicode.Is(s.table, r) {
				counts[s.lang]++
				break
			}
		}
	}
	if counts["ja"] > 0 {
		counts["ja"] += counts["zh"]
		delete(counts, "zh")
	}
	best, bestN := UnknownLanguage, 0
	for _, s := range scripts {
		if n := counts[s.lang]; n > bestN {
			best, bestN = s.lang, n
		}
	}
	return best
}
