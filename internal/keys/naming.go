package keys

import "strings"

// DefaultDelimiter separates key segments when none is configured.
const DefaultDelimiter = ":"

// Strategy turns an ordered sequence of segments into one store key.
type Strategy interface {
	Key(segments ...string) string
}

// Delimited joins segments with a fixed delimiter.
type Delimited struct {
	Delimiter string
}

// Colon is the colon-delimited strategy ("prefix:id", "index:value").
var Colon Strategy = Delimited{Delimiter: DefaultDelimiter}

// NewDelimited returns a Delimited strategy, falling back to
// DefaultDelimiter when delim is empty.
func NewDelimited(delim string) Delimited {
	if delim == "" {
		delim = DefaultDelimiter
	}
	return Delimited{Delimiter: delim}
}

// Key joins segments in order. Empty segments are kept so that
// Key("color", "") and Key("color") stay distinguishable.
func (d Delimited) Key(segments ...string) string {
	return strings.Join(segments, d.Delimiter)
}

// Func adapts a plain function to a Strategy.
type Func func(segments ...string) string

// Key implements Strategy.
func (f Func) Key(segments ...string) string {
	return f(segments...)
}
