package tts

import (
	"fmt"
	"strconv"
	"strings"
)

// ParsePCMFormat extracts the sample rate from provider format names of the
// form "pcm_<rate>" (e.g., "pcm_16000"). ok is false for any other name.
func ParsePCMFormat(name string) (rate int, ok bool) {
	digits, found := strings.CutPrefix(strings.ToLower(name), "pcm_")
	if !found {
		return 0, false
	}
	rate, err := strconv.Atoi(digits)
	if err != nil || rate <= 0 {
		return 0, false
	}
	return rate, true
}

// PCMFormatName is the inverse of ParsePCMFormat.
func PCMFormatName(rate int) string {
	return fmt.Sprintf("pcm_%d", rate)
}
