package entity

import "strings"

// EncoderChain is an ordered list of encoder identifiers. Identifiers are not
// checked against known encoders here; the generation toolchain does that.
type EncoderChain struct {
	steps []string
}

// BuildEncoderChain keeps the input order. Blank entries are dropped and the
// rest are trimmed. A nil or empty input yields the empty chain.
func BuildEncoderChain(identifiers []string) EncoderChain {
	var steps []string
	for _, id := range identifiers {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		steps = append(steps, id)
	}
	return EncoderChain{steps: steps}
}

func (c EncoderChain) Sequence() []string {
	out := make([]string, len(c.steps))
	copy(out, c.steps)
	return out
}

func (c EncoderChain) Len() int {
	return len(c.steps)
}

func (c EncoderChain) Empty() bool {
	return len(c.steps) == 0
}

func (c EncoderChain) String() string {
	return strings.Join(c.steps, " -> ")
}
