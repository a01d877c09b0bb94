// Package rag implements the documentation side of the proxy: chunking,
// hybrid retrieval over chunked READMEs, and the ingest pipeline feeding it.
package rag

// SplitChunks windows text into overlapping chunks of size runes with
// overlap runes shared between neighbours. The final chunk is shorter when
// the text does not divide evenly; empty input yields no chunks. Addressing
// is in runes throughout, matching how chunks are truncated and stored.
func SplitChunks(text string, size, overlap int) []string {
	if text == "" || size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(text)
	step := size - overlap
	chunks := make([]string, 0, (len(runes)+step-1)/step)

	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// Truncate limits text to at most n runes.
func Truncate(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}
