package engine

import "strings"

// proofMarker introduces a payment proof inside a command's argument
// text: --tx=<reference>, where the reference is a contiguous run of
// alphanumeric characters. The first match anywhere in the arguments
// wins, and the whole token is stripped from the input handed to the
// tool.
const proofMarker = "--tx="

// Command is a tokenized tool invocation.
type Command struct {
	// Name of the tool, as written. Matched case-insensitively.
	Name string

	// Args is the argument text with the proof token removed and
	// whitespace normalized.
	Args string

	// Proof is the payment transaction reference, if one was attached.
	Proof string
}

// ParseCommand tokenizes message content. A message is a command iff it
// begins with "/".
func ParseCommand(content string) (Command, bool) {
	if !strings.HasPrefix(content, "/") {
		return Command{}, false
	}

	rest := content[1:]
	name, args := rest, ""
	if i := strings.IndexByte(rest, ' '); i >= 0 {
		name, args = rest[:i], rest[i+1:]
	}

	cmd := Command{Name: name}
	cmd.Args, cmd.Proof = extractProof(args)
	return cmd, true
}

// extractProof pulls the first --tx=<token> out of the argument text and
// returns the remaining text with spacing normalized.
func extractProof(args string) (string, string) {
	idx := strings.Index(args, proofMarker)
	if idx < 0 {
		return strings.TrimSpace(args), ""
	}

	start := idx + len(proofMarker)
	end := start
	for end < len(args) && isAlphanumeric(args[end]) {
		end++
	}

	proof := args[start:end]
	remainder := strings.Join(strings.Fields(args[:idx]+" "+args[end:]), " ")
	if proof == "" {
		// A bare "--tx=" carries no reference; treat it as absent.
		return remainder, ""
	}
	return remainder, proof
}

func isAlphanumeric(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
