package sshx

import (
	"regexp"
	"strings"
)

// promptLine matches a bare prompt line like "sw-den-01#" or "router>".
var promptLine = regexp.MustCompile(`^[\w\-.]+[#>$)]\s*$`)

// CleanOutput strips the command echo and trailing prompt lines from a
// raw transcript, leaving the payload a parser expects.
//
// The echo line is located by searching for the command text; everything
// up to and including it is dropped. When the echo cannot be found the
// transcript is returned with only prompt lines and trailing blanks
// removed.
func CleanOutput(raw, command string) string {
	lines := strings.Split(raw, "\n")

	start := 0
	if command != "" {
		needle := strings.ToLower(strings.TrimSpace(command))
		for i, line := range lines {
			if strings.Contains(strings.ToLower(line), needle) {
				start = i + 1
				break
			}
		}
	}

	cleaned := make([]string, 0, len(lines)-start)
	for _, line := range lines[start:] {
		if promptLine.MatchString(strings.TrimSpace(line)) {
			continue
		}
		cleaned = append(cleaned, strings.TrimRight(line, "\r"))
	}

	for len(cleaned) > 0 && strings.TrimSpace(cleaned[len(cleaned)-1]) == "" {
		cleaned = cleaned[:len(cleaned)-1]
	}

	return strings.Join(cleaned, "\n")
}
