package decision

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/stentorlabs/stentor/pkg/config"
)

// matched carries what a rule extracted from the message. action
// overrides the rule's static action for tools with several
// operations.
type matched struct {
	params map[string]any
	action string
}

// rule is one Phase A classifier. match receives the lowercased
// trimmed message and the original trimmed message; payloads that
// must keep their case (paths, JSON) are extracted from the original.
type rule struct {
	name       string
	strategy   string
	confidence float64
	reasoning  string
	tool       string
	action     string
	agent      string
	match      func(lower, original string) (*matched, bool)
}

// Messages longer than this with knowledge-bearing vocabulary route
// to retrieval even without a question opener.
const longMessageThreshold = 120

var (
	greetingRe = regexp.MustCompile(`^(?:hi|hello|hey|howdy|greetings|yo|sup|good\s+(?:morning|afternoon|evening))(?:\s+(?:there|all|everyone|folks|team))?[\s!.,]*$`)

	// Keyed on the operand-operator-operand span, not the words around
	// it, so any question framing works ("what is 7 + 5", "quanto é
	// 7 + 5", "wieviel ist 7 + 5").
	arithmeticRe = regexp.MustCompile(`(?:^|[\s(:=,])(-?\d+(?:\.\d+)?)\s*(\+|-|\*|×|x|/|÷|plus|minus|times|multiplied\s+by|divided\s+by|over)\s*(-?\d+(?:\.\d+)?)\s*[)?!.]*$`)

	fileReadRe = regexp.MustCompile(`(?i)^(?:please\s+)?(?:read|open|show|cat)\s+(?:the\s+)?file\s+['"]?(.+?)['"]?\s*$`)

	jsonToolRe = regexp.MustCompile(`(?is)^(?:please\s+)?(parse|validate|check)\s+(?:this\s+)?json\b[:\s]+(.+)$`)

	codeAgentRe = regexp.MustCompile(`(?s)^(?:please\s+)?(?:analy[sz]e|lint|review|check)\b.*(?:\bcode\b|\bsyntax\b|\bsnippet\b|\bfunction\b|\bscript\b|` + "```" + `)`)

	dataAgentRe = regexp.MustCompile(`(?s)^(?:please\s+)?(?:validate|transform|aggregate|process|summari[sz]e)\b.*(?:\bdata\b|\bjson\b|[{\[])`)

	taskAgentRe = regexp.MustCompile(`^(?:please\s+)?(?:schedule|remind|add|create|execute|run|complete|finish|report|list|show)\b.*\btasks?\b`)

	questionRe = regexp.MustCompile(`^(?:what\s+is|what\s+are|what's|how\s+do(?:es)?|how\s+can|how\s+to|why\s|when\s|where\s|who\s|explain|describe|tell\s+me\s+about|documentation|docs\b)`)
)

var opActions = map[string]string{
	"+":             "add",
	"plus":          "add",
	"-":             "subtract",
	"minus":         "subtract",
	"*":             "multiply",
	"×":             "multiply",
	"x":             "multiply",
	"times":         "multiply",
	"multiplied by": "multiply",
	"/":             "divide",
	"÷":             "divide",
	"over":          "divide",
	"divided by":    "divide",
}

var knowledgeTokens = []string{
	"documentation", "docs", "api", "reference", "guide", "manual",
	"library", "configure", "install", "version", "protocol",
}

// builtinRules are the seed classifiers, most specific first. The
// conversational default is not a rule; the engine falls through to
// it when nothing matches.
func builtinRules() []rule {
	return []rule{
		{name: "greeting", strategy: StrategyLLM, confidence: 0.95, reasoning: "greeting", match: regexRule(greetingRe)},
		{name: "arithmetic", strategy: StrategyTool, confidence: 0.95, reasoning: "arithmetic expression", tool: "calculator", match: matchArithmetic},
		{name: "file_read", strategy: StrategyTool, confidence: 0.95, reasoning: "file read request", tool: "file_reader", action: "read", match: matchFileRead},
		{name: "json_payload", strategy: StrategyTool, confidence: 0.95, reasoning: "json payload", tool: "json_parser", match: matchJSONTool},
		{name: "code_analysis", strategy: StrategyAgent, confidence: 0.90, reasoning: "code analysis request", agent: "code_analyzer", match: regexRule(codeAgentRe)},
		{name: "data_processing", strategy: StrategyAgent, confidence: 0.90, reasoning: "data processing request", agent: "data_processor", match: regexRule(dataAgentRe)},
		{name: "task_management", strategy: StrategyAgent, confidence: 0.85, reasoning: "task request", agent: "task_manager", match: regexRule(taskAgentRe)},
		{name: "knowledge", strategy: StrategyRAG, confidence: 0.85, reasoning: "knowledge question", match: matchKnowledge},
	}
}

func regexRule(re *regexp.Regexp) func(lower, original string) (*matched, bool) {
	return func(lower, _ string) (*matched, bool) {
		if !re.MatchString(lower) {
			return nil, false
		}
		return &matched{}, true
	}
}

func matchArithmetic(lower, _ string) (*matched, bool) {
	m := arithmeticRe.FindStringSubmatch(lower)
	if m == nil {
		return nil, false
	}
	a, errA := strconv.ParseFloat(m[1], 64)
	b, errB := strconv.ParseFloat(m[3], 64)
	if errA != nil || errB != nil {
		return nil, false
	}
	op := strings.Join(strings.Fields(m[2]), " ")
	action, ok := opActions[op]
	if !ok {
		return nil, false
	}
	return &matched{action: action, params: map[string]any{"a": a, "b": b}}, true
}

func matchFileRead(_, original string) (*matched, bool) {
	m := fileReadRe.FindStringSubmatch(original)
	if m == nil {
		return nil, false
	}
	path := strings.TrimSpace(m[1])
	if path == "" {
		return nil, false
	}
	return &matched{params: map[string]any{"path": path}}, true
}

func matchJSONTool(_, original string) (*matched, bool) {
	m := jsonToolRe.FindStringSubmatch(original)
	if m == nil {
		return nil, false
	}
	body := strings.TrimSpace(m[2])
	if region := jsonRegion(body); region != "" {
		body = region
	}
	action := "parse"
	if strings.EqualFold(m[1], "validate") {
		action = "validate"
	}
	return &matched{action: action, params: map[string]any{"json": body}}, true
}

func matchKnowledge(lower, _ string) (*matched, bool) {
	if questionRe.MatchString(lower) {
		return &matched{}, true
	}
	if len(lower) > longMessageThreshold {
		for _, token := range knowledgeTokens {
			if strings.Contains(lower, token) {
				return &matched{}, true
			}
		}
	}
	return nil, false
}

// configRule compiles one configured rule. Named capture groups in
// the pattern become extracted params.
func configRule(cfg config.RuleConfig, index int) (rule, error) {
	re, err := regexp.Compile(cfg.Pattern)
	if err != nil {
		return rule{}, fmt.Errorf("decision rule %d: %w", index+1, err)
	}
	reasoning := cfg.Reasoning
	if reasoning == "" {
		reasoning = fmt.Sprintf("matched configured rule %d", index+1)
	}
	r := rule{
		name:       fmt.Sprintf("rules[%d]", index),
		strategy:   cfg.Strategy,
		confidence: cfg.Confidence,
		reasoning:  reasoning,
		tool:       cfg.Tool,
		agent:      cfg.Agent,
	}
	r.match = func(lower, _ string) (*matched, bool) {
		m := re.FindStringSubmatch(lower)
		if m == nil {
			return nil, false
		}
		res := &matched{}
		for i, name := range re.SubexpNames() {
			if name == "" || i >= len(m) {
				continue
			}
			if res.params == nil {
				res.params = map[string]any{}
			}
			res.params[name] = m[i]
		}
		return res, true
	}
	return r, nil
}

// jsonRegion returns the first balanced {...} or [...] span, or ""
// when none closes. Quoted brackets are skipped.
func jsonRegion(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	var depth int
	var inString, escaped bool
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// skip bracket counting inside strings
		case c == '{' || c == '[':
			depth++
		case c == '}' || c == ']':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
