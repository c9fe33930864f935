package strategy

import "strings"

// blankAudioToken is whisper.cpp's marker for a chunk it judged silent.
const blankAudioToken = "[BLANK_AUDIO]"

// preferRefine implements the Progressive merge rule (spec §4.7.3): refine
// text wins over fast text for one aligned chunk pair iff its length is
// within 30% of the longer text's length (a sanity check rejecting hallucinated
// paragraphs) and it doesn't introduce a [BLANK_AUDIO] marker the fast text
// didn't already have.
func preferRefine(fastText, refineText string) bool {
	if !withinLengthTolerance(fastText, refineText, 0.30) {
		return false
	}
	if strings.Contains(refineText, blankAudioToken) && !strings.Contains(fastText, blankAudioToken) {
		return false
	}
	return true
}

func withinLengthTolerance(a, b string, tolerance float64) bool {
	la, lb := len(a), len(b)
	if la == 0 && lb == 0 {
		return true
	}
	longest := la
	if lb > longest {
		longest = lb
	}
	diff := la - lb
	if diff < 0 {
		diff = -diff
	}
	return float64(diff) <= tolerance*float64(longest)
}
