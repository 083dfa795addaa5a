// Package topics assigns coarse topic labels to items by keyword matching.
package topics

import (
	"strings"

	ahocorasick "github.com/cloudflare/ahocorasick"
)

// Rule maps a topic label to the keywords that trigger it.
type Rule struct {
	Label    string
	Keywords []string
}

// DefaultRules is the built-in rule set, in output order.
var DefaultRules = []Rule{
	{Label: "LLM", Keywords: []string{"llm", "large language model", "gpt", "transformer", "bert", "t5", "llama", "claude", "chatgpt", "prompt engineering"}},
	{Label: "RL", Keywords: []string{"reinforcement learning", "rl", "rlhf", "reward model", "policy gradient", "q-learning", "dpo"}},
	{Label: "Multimodal", Keywords: []string{"multimodal", "vision", "image", "video", "dall-e", "clip", "visual", "ocr", "object detection"}},
	{Label: "Systems", Keywords: []string{"infrastructure", "mlops", "systems", "deployment", "production", "scalability", "distributed", "gpu", "vram", "quantization", "inference", "serving"}},
	{Label: "Alignment", Keywords: []string{"alignment", "safety", "ethics", "fairness", "bias", "hallucination", "interpretability", "explainability", "responsible ai", "agi"}},
	{Label: "Agents", Keywords: []string{"agent", "autonomous", "robotics", "automation", "action planning", "tool use", "function calling"}},
	{Label: "Finance", Keywords: []string{"finance", "trading", "market", "stock", "portfolio", "investment", "risk", "quant", "algorithmic"}},
	{Label: "Open Source", Keywords: []string{"open source", "hugging face", "pytorch", "tensorflow", "community", "huggingface"}},
	{Label: "Search", Keywords: []string{"retrieval", "rag", "search", "knowledge base", "vector database", "embedding", "semantic search"}},
	{Label: "Data", Keywords: []string{"dataset", "data", "annotation", "labeling", "synthetic data", "pretraining"}},
	{Label: "Optimization", Keywords: []string{"optimization", "training", "fine-tuning", "finetuning", "learning rate", "gradient", "loss"}},
	{Label: "Applications", Keywords: []string{"application", "use case", "product", "tool", "plugin", "extension", "integration"}},
}

// Classifier labels text with every rule that has at least one keyword
// occurring as a plain substring of the lowercased input. Short keywords
// such as "rl" or "rag" therefore also match inside longer words.
//
// A Classifier is immutable after construction and safe for concurrent use.
type Classifier struct {
	labels  []string
	matcher *ahocorasick.Matcher
	// keyword index -> rule indexes
	owners [][]int
}

// New builds a Classifier from rules. Keywords are lowercased.
func New(rules []Rule) *Classifier {
	c := &Classifier{labels: make([]string, len(rules))}

	index := make(map[string]int)
	var dict []string
	for ri, r := range rules {
		c.labels[ri] = r.Label
		for _, kw := range r.Keywords {
			kw = strings.ToLower(kw)
			if kw == "" {
				continue
			}
			ki, ok := index[kw]
			if !ok {
				ki = len(dict)
				index[kw] = ki
				dict = append(dict, kw)
				c.owners = append(c.owners, nil)
			}
			c.owners[ki] = append(c.owners[ki], ri)
		}
	}

	if len(dict) > 0 {
		c.matcher = ahocorasick.NewStringMatcher(dict)
	}
	return c
}

// Classify returns the labels matching title and the optional summary,
// in rule order and without repeats. The result is nil when nothing matches.
func (c *Classifier) Classify(title string, summary *string) []string {
	if c.matcher == nil {
		return nil
	}

	text := title + " "
	if summary != nil {
		text += *summary
	}
	hits := c.matcher.MatchThreadSafe([]byte(strings.ToLower(text)))
	if len(hits) == 0 {
		return nil
	}

	matched := make([]bool, len(c.labels))
	for _, ki := range hits {
		for _, ri := range c.owners[ki] {
			matched[ri] = true
		}
	}

	var out []string
	for ri, ok := range matched {
		if ok {
			out = append(out, c.labels[ri])
		}
	}
	return out
}

var defaultClassifier = New(DefaultRules)

// Extract classifies with DefaultRules.
func Extract(title string, summary *string) []string {
	return defaultClassifier.Classify(title, summary)
}
