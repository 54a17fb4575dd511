package quote

import (
	"fmt"
	"strings"
)

// SubFlags selects the push kinds of a subscription.
type SubFlags uint8

const (
	SubQuote SubFlags = 1 << iota
	SubDepth
	SubBrokers
	SubTrade

	SubAll = SubQuote | SubDepth | SubBrokers | SubTrade
)

var subFlagNames = []struct {
	flag SubFlags
	name string
}{
	{SubQuote, "QUOTE"},
	{SubDepth, "DEPTH"},
	{SubBrokers, "BROKERS"},
	{SubTrade, "TRADE"},
}

// Contains reports whether every bit of o is set in f.
func (f SubFlags) Contains(o SubFlags) bool {
	return f&o == o
}

func (f SubFlags) String() string {
	if f == 0 {
		return "NONE"
	}
	var parts []string
	for _, n := range subFlagNames {
		if f&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	if rest := f &^ SubAll; rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint8(rest)))
	}
	return strings.Join(parts, "|")
}

// ParseSubFlags parses names like "QUOTE|DEPTH" or "quote,trade".
func ParseSubFlags(s string) (SubFlags, error) {
	var f SubFlags
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' || r == ' ' }) {
		var found bool
		for _, n := range subFlagNames {
			if strings.EqualFold(part, n.name) {
				f |= n.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown subscription type %q", part)
		}
	}
	if f == 0 {
		return 0, fmt.Errorf("no subscription type in %q", s)
	}
	return f, nil
}

// wire values of the subscription types
func (f SubFlags) wire() []int32 {
	var out []int32
	for i, n := range subFlagNames {
		if f&n.flag != 0 {
			out = append(out, int32(i+1))
		}
	}
	return out
}

func subFlagsFromWire(vs []int32) SubFlags {
	var f SubFlags
	for _, v := range vs {
		if v >= 1 && int(v) <= len(subFlagNames) {
			f |= subFlagNames[v-1].flag
		}
	}
	return f
}
