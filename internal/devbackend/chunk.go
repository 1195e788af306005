package devbackend

import "strings"

const (
	chunkSize    = 1500
	chunkOverlap = 200
)

// splitText normalizes whitespace and cuts text into windows of size runes
// overlapping by overlap runes.
func splitText(text string, size, overlap int) []string {
	normalized := strings.Join(strings.Fields(text), " ")
	if normalized == "" {
		return nil
	}
	runes := []rune(normalized)
	if len(runes) <= size {
		return []string{normalized}
	}

	var chunks []string
	for start := 0; start < len(runes); {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
		start = end - overlap
		if start < 0 {
			start = 0
		}
	}
	return chunks
}
