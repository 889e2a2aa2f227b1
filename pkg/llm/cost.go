package llm

// Token pricing per 1M tokens (USD).
var pricing = map[string]modelPrice{
	// Gemini
	"gemini-2.5-flash":      {Input: 0.30, Output: 2.50},
	"gemini-2.5-flash-lite": {Input: 0.10, Output: 0.40},
	"gemini-2.5-pro":        {Input: 1.25, Output: 10.00},
	"gemini-2.0-flash":      {Input: 0.10, Output: 0.40},

	// OpenAI
	"gpt-4o":       {Input: 2.50, Output: 10.00},
	"gpt-4o-mini":  {Input: 0.15, Output: 0.60},
	"gpt-4.1":      {Input: 2.00, Output: 8.00},
	"gpt-4.1-mini": {Input: 0.40, Output: 1.60},

	// MiniMax
	"MiniMax-M2.5": {Input: 1.10, Output: 4.40},
	"MiniMax-M2":   {Input: 0.50, Output: 2.00},
}

type modelPrice struct {
	Input  float64 // per 1M input tokens
	Output float64 // per 1M output tokens
}

// EstimateCost returns the estimated cost in USD for the given model and token counts.
// Unknown models (including local ones) cost nothing.
func EstimateCost(model string, tokensIn, tokensOut int) float64 {
	p, ok := pricing[model]
	if !ok {
		return 0
	}
	return (float64(tokensIn)*p.Input + float64(tokensOut)*p.Output) / 1_000_000
}
