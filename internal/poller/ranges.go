package poller

import (
	"github.com/modmetrics/modmetrics/internal/schema"
)

// maxReadWords is the largest register block one Modbus read request may
// cover (protocol limit).
const maxReadWords = 125

// readRange is one read request covering a contiguous block of registers of
// a single kind. Ranges are planned once from the schema and reused every
// cycle.
type readRange struct {
	kind  schema.RegisterKind
	start uint16
	count uint16
	defs  []schema.RegisterDefinition
}

// planRanges groups definitions into contiguous, same-kind ranges capped at
// maxReadWords, minimizing request count per cycle. The set is already
// ordered by kind, then address.
func planRanges(set *schema.Set) []readRange {
	var ranges []readRange
	var cur *readRange

	for _, def := range set.Definitions() {
		if cur != nil &&
			def.Kind == cur.kind &&
			uint32(def.Address) == uint32(cur.start)+uint32(cur.count) &&
			uint32(cur.count)+uint32(def.Span()) <= maxReadWords {
			cur.count += def.Span()
			cur.defs = append(cur.defs, def)
			continue
		}
		ranges = append(ranges, readRange{
			kind:  def.Kind,
			start: def.Address,
			count: def.Span(),
			defs:  []schema.RegisterDefinition{def},
		})
		cur = &ranges[len(ranges)-1]
	}
	return ranges
}
