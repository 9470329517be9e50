package pipeline

import "strings"

// repeatThreshold is how many times an n-gram may appear before the
// transcript is considered degenerate.
const repeatThreshold = 5

// maxRunLength is the longest allowed run of one repeated character.
const maxRunLength = 6

// ngramLengths covers short-to-medium word repetition without morphological
// analysis; character n-grams approximate words for Japanese as well.
var ngramLengths = []int{4, 6, 8}

// IsInvalidTranscript reports whether a transcript is a known degenerate
// output of local transcription under noise: empty/whitespace-only text,
// a single character repeated more than maxRunLength times, or any sliding
// n-gram repeated repeatThreshold times or more. Invalid transcripts are
// suppressed before generation, not treated as errors.
func IsInvalidTranscript(text string) bool {
	if strings.TrimSpace(text) == "" {
		return true
	}

	runes := []rune(text)

	for _, n := range ngramLengths {
		if len(runes) < n {
			continue
		}
		counts := make(map[string]int)
		for i := 0; i+n <= len(runes); i++ {
			gram := string(runes[i : i+n])
			counts[gram]++
			if counts[gram] >= repeatThreshold {
				return true
			}
		}
	}

	run := 1
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			run++
			if run > maxRunLength {
				return true
			}
		} else {
			run = 1
		}
	}

	return false
}
