package synth

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/seenimoa/diligence/pkg/utils"
)

// ErrNotJSON is returned by ParseResponse when the text holds no JSON object.
var ErrNotJSON = errors.New("synth: response is not a JSON object")

var validate = validator.New()

// Narrative is the part of a report the generative backend writes.
type Narrative struct {
	ExecutiveSummary   string                `json:"executiveSummary" validate:"required"`
	KeyFindings        []string              `json:"keyFindings"      validate:"omitempty,dive,required"`
	FinancialAnalysis  narrativeFinancial    `json:"financialAnalysis"`
	MarketAnalysis     narrativeMarket       `json:"marketAnalysis"`
	RiskAssessment     narrativeRisk         `json:"riskAssessment"`
	RecentDevelopments narrativeDevelopments `json:"recentDevelopments"`
}

type narrativeFinancial struct {
	Metrics   map[string]any `json:"metrics"`
	Narrative string         `json:"narrative"`
}

type narrativeMarket struct {
	Position    string   `json:"position"`
	Competitors []string `json:"competitors"`
	SWOT        struct {
		Strengths     []string `json:"strengths"`
		Weaknesses    []string `json:"weaknesses"`
		Opportunities []string `json:"opportunities"`
		Threats       []string `json:"threats"`
	} `json:"swot"`
}

type narrativeRisk struct {
	RiskRating  string   `json:"riskRating"`
	Financial   []string `json:"financialRisks"`
	Market      []string `json:"marketRisks"`
	Operational []string `json:"operationalRisks"`
	Regulatory  []string `json:"regulatoryRisks"`
	ESG         []string `json:"esgRisks"`
}

type narrativeDevelopments struct {
	Summary   string `json:"summary"`
	Sentiment string `json:"sentiment"`
}

// ParseResponse extracts and validates the JSON report from backend
// output. Markdown code fences and text around the object are ignored.
func ParseResponse(content string) (*Narrative, error) {
	raw, ok := extractJSON(content)
	if !ok {
		return nil, ErrNotJSON
	}
	var n Narrative
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJSON, err)
	}
	n.ExecutiveSummary = strings.TrimSpace(n.ExecutiveSummary)
	if err := validate.Struct(&n); err != nil {
		return nil, fmt.Errorf("synth: invalid report JSON: %w", err)
	}
	return &n, nil
}

// extractJSON returns the outermost {...} span of s.
func extractJSON(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// metricStrings renders metric values of any JSON type as display strings.
func metricStrings(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := in[k].(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = strings.TrimSpace(v)
		case float64:
			out[k] = utils.TrimDecimals(v)
		case bool:
			out[k] = fmt.Sprint(v)
		default:
			b, _ := json.Marshal(v)
			out[k] = string(b)
		}
	}
	return out
}

// normalizeRating maps backend wording onto low, medium or high.
func normalizeRating(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "minimal", "low risk":
		return "low"
	case "medium", "moderate", "medium risk", "moderate risk":
		return "medium"
	case "high", "elevated", "severe", "high risk", "critical":
		return "high"
	}
	return ""
}

func normalizeSentiment(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive", "bullish":
		return "positive"
	case "negative", "bearish":
		return "negative"
	case "neutral", "mixed":
		return "neutral"
	}
	return ""
}
