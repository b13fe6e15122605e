package service

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"foundry/shared/models"

	"go.uber.org/zap"
)

const (
	pricingSourceText = "manual:text"
	pricingSourceJSON = "manual:json"
)

var (
	pricingSpaces      = regexp.MustCompile(`\s+`)
	pricingNonNumeric  = regexp.MustCompile(`[^0-9.]`)
	pricingSingleLine  = regexp.MustCompile(`(?i)^([a-z0-9][a-z0-9 .-]*)\s+\$([0-9.]+)\s*/\s*1m\s*input tokens.*?\$([0-9.]+)\s*/\s*1m\s*output tokens`)
	pricingModelPrefix = regexp.MustCompile(`^(gpt|o[0-9]|sora)`)
	pricingInput       = regexp.MustCompile(`(?i)Input:\s*\$?([0-9.]+)`)
	pricingInputLabel  = regexp.MustCompile(`(?i)^Input:\s*$`)
	pricingOutput      = regexp.MustCompile(`(?i)Output:\s*\$?([0-9.]+)`)
	pricingOutputLabel = regexp.MustCompile(`(?i)^Output:\s*$`)
	pricingInlineIn    = regexp.MustCompile(`(?i)\$([0-9.]+).*input tokens`)
	pricingInlineOut   = regexp.MustCompile(`(?i)\$([0-9.]+).*output tokens`)
	pricingDollar      = regexp.MustCompile(`\$([0-9.]+)`)
)

// PricingRefresh - тело POST /ai/pricing/refresh: вставленный текст страницы цен или готовая карта моделей.
type PricingRefresh struct {
	PricingText string         `json:"pricingText"`
	Text        string         `json:"text"`
	Models      map[string]any `json:"models"`
}

// Pricing возвращает сохраненный прайс-лист или пустой ручной.
func (s *UsageService) Pricing(ctx context.Context) PricingView {
	cfg := s.config.GetSiteConfig(ctx)
	if cfg.AI == nil || cfg.AI.Pricing == nil {
		return PricingView{Source: defaultSource, Models: map[string]models.PricingModel{}}
	}
	p := *cfg.AI.Pricing
	if p.Models == nil {
		p.Models = map[string]models.PricingModel{}
	}
	return PricingView{Source: p.Source, UpdatedAt: p.UpdatedAt, Models: p.Models}
}

// RefreshPricing разбирает прайс-лист из запроса и сохраняет его в ai.pricing.
// Текст имеет приоритет над картой models.
func (s *UsageService) RefreshPricing(ctx context.Context, req PricingRefresh) (PricingView, error) {
	text := req.PricingText
	if text == "" {
		text = req.Text
	}
	var (
		prices map[string]models.PricingModel
		source string
	)
	switch {
	case strings.TrimSpace(text) != "":
		prices = ParsePricingText(text)
		if len(prices) == 0 {
			return PricingView{}, models.NewPublicError(models.ErrBadRequest, "No pricing models could be parsed from the provided text.")
		}
		source = pricingSourceText
	case req.Models != nil:
		prices = pricingFromMap(req.Models)
		if len(prices) == 0 {
			return PricingView{}, models.NewPublicError(models.ErrBadRequest, "No valid pricing models found in the payload.")
		}
		source = pricingSourceJSON
	default:
		return PricingView{}, models.NewPublicError(models.ErrBadRequest, "Provide pricingText or models.")
	}

	view := PricingView{Source: source, UpdatedAt: isoTimestamp(s.now()), Models: prices}
	patch := map[string]any{"ai": map[string]any{"pricing": map[string]any{
		"source":    view.Source,
		"updatedAt": view.UpdatedAt,
		"models":    prices,
	}}}
	if _, err := s.config.SaveConfig(ctx, patch); err != nil {
		return PricingView{}, err
	}
	s.logger.Info("Pricing updated", zap.String("source", source), zap.Int("models", len(prices)))
	return view, nil
}

func pricingFromMap(in map[string]any) map[string]models.PricingModel {
	out := map[string]models.PricingModel{}
	for name, raw := range in {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		input, okIn := parsePrice(entry["inputUsdPerMillion"])
		output, okOut := parsePrice(entry["outputUsdPerMillion"])
		key := NormalizeModelKey(name)
		if !okIn || !okOut || key == "" {
			continue
		}
		out[key] = models.PricingModel{InputUSDPerMillion: input, OutputUSDPerMillion: output}
	}
	return out
}

// parsePrice принимает число или строку вида "$1.25".
func parsePrice(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		cleaned := pricingNonNumeric.ReplaceAllString(n, "")
		if cleaned == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func isPricingModelLine(line string) bool {
	lower := strings.ToLower(line)
	if !pricingModelPrefix.MatchString(lower) {
		return false
	}
	for _, word := range []string{"price", "input", "output", "cached", "tokens", "api", "models"} {
		if strings.Contains(lower, word) {
			return false
		}
	}
	return true
}

// ParsePricingText извлекает цены из текста, скопированного со страницы цен OpenAI.
// Понимает строки "gpt-x $1 / 1M input tokens ... $2 / 1M output tokens" и блоки
// из строки с именем модели и следующих за ней строк Input:/Output:.
func ParsePricingText(text string) map[string]models.PricingModel {
	out := map[string]models.PricingModel{}
	var (
		current       string
		input, output *float64
		expecting     string
	)
	commit := func() {
		if current == "" || input == nil || output == nil {
			return
		}
		key := NormalizeModelKey(current)
		if key == "" {
			return
		}
		out[key] = models.PricingModel{InputUSDPerMillion: *input, OutputUSDPerMillion: *output}
	}
	price := func(s string) *float64 {
		v, ok := parsePrice(s)
		if !ok {
			return nil
		}
		return &v
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(pricingSpaces.ReplaceAllString(raw, " "))
		if line == "" {
			continue
		}

		if m := pricingSingleLine.FindStringSubmatch(line); m != nil {
			lo, hi := price(m[2]), price(m[3])
			if lo != nil && hi != nil {
				commit()
				current, input, output = m[1], lo, hi
				commit()
			}
			expecting = ""
			continue
		}
		if isPricingModelLine(line) {
			commit()
			current, input, output, expecting = line, nil, nil, ""
			continue
		}
		if m := pricingInput.FindStringSubmatch(line); m != nil {
			if v := price(m[1]); v != nil {
				input = v
			}
			expecting = "input"
			continue
		}
		if pricingInputLabel.MatchString(line) {
			expecting = "input"
			continue
		}
		if m := pricingOutput.FindStringSubmatch(line); m != nil {
			if v := price(m[1]); v != nil {
				output = v
			}
			expecting = "output"
			continue
		}
		if pricingOutputLabel.MatchString(line) {
			expecting = "output"
			continue
		}
		if m := pricingInlineIn.FindStringSubmatch(line); m != nil {
			if v := price(m[1]); v != nil {
				input = v
			}
			continue
		}
		if m := pricingInlineOut.FindStringSubmatch(line); m != nil {
			if v := price(m[1]); v != nil {
				output = v
			}
			continue
		}
		if expecting != "" {
			if m := pricingDollar.FindStringSubmatch(line); m != nil {
				if v := price(m[1]); v != nil {
					if expecting == "input" {
						input = v
					} else {
						output = v
					}
					expecting = ""
				}
			}
		}
	}
	commit()
	return out
}
