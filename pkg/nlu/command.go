package nlu

import "strings"

// CommandMarker prefixes messages that bypass the classifier.
const CommandMarker = "!"

// ExitKeyword leaves a command conversation and restores the suspended one.
const ExitKeyword = "exit"

// IsCommand reports whether text invokes a command directly.
func IsCommand(text string) bool {
	return strings.HasPrefix(text, CommandMarker)
}

// ParseCommand synthesizes an Intent from a "!keyword rest..." message
// without calling the classifier. The keyword is taken verbatim with full
// confidence. Any text after the keyword becomes a synthetic entity: named
// after the keyword itself when arguments are present, "newEntity" otherwise.
func ParseCommand(text string) Intent {
	parts := strings.SplitN(text, " ", 2)
	keyword := strings.TrimPrefix(parts[0], CommandMarker)

	intent := Intent{Keyword: keyword, Confidence: 1.0}
	if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
		intent.Entities = []Entity{{Name: keyword, Value: strings.TrimSpace(parts[1])}}
	} else {
		intent.Entities = []Entity{{Name: "newEntity"}}
	}
	return intent
}
