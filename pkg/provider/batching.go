package provider

// SplitTexts packs texts into consecutive sub-batches for embedding
// requests, each staying under both a token ceiling and a document-count
// ceiling. A single text whose estimate exceeds maxTokens still ships alone
// in its own batch; the provider, not this packer, decides its fate.
func SplitTexts(texts []string, estimate func(string) int, maxTokens, maxDocs int) [][]string {
	if len(texts) == 0 {
		return nil
	}
	if maxDocs <= 0 {
		maxDocs = len(texts)
	}

	var (
		batches [][]string
		current []string
		tokens  int
	)
	for _, text := range texts {
		cost := estimate(text)
		if len(current) > 0 && (tokens+cost > maxTokens || len(current) >= maxDocs) {
			batches = append(batches, current)
			current = nil
			tokens = 0
		}
		current = append(current, text)
		tokens += cost
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
