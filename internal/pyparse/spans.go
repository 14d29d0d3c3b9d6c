package pyparse

import "sort"

// rawSpan is a (kind, name, start) triple before end positions are extended.
type rawSpan struct {
	Kind  string
	Name  string
	Start int
}

// extendSpans takes top-level symbol start offsets (already sorted by
// Start, ties broken by input order) and the total content length, and
// returns Symbols with End extended so that each symbol's end equals the
// next symbol's start (or textLen for the last one) — per spec §4.1,
// "inter-symbol whitespace belongs to the preceding symbol". Duplicates
// (same kind:name key appearing more than once) are listed in Duplicates
// once per repeat; only the first occurrence gets an entry in Symbols and
// Order (its span ends where the next symbol starts), and Order lists each
// key once, in first-seen order.
func extendSpans(spans []rawSpan, content string) Result {
	sorted := make([]rawSpan, len(spans))
	copy(sorted, spans)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	symbols := make(map[string]Symbol, len(sorted))
	order := make([]string, 0, len(sorted))
	seen := make(map[string]bool, len(sorted))
	var duplicates []string

	for i, s := range sorted {
		end := len(content)
		if i+1 < len(sorted) {
			end = sorted[i+1].Start
		}
		key := s.Kind + ":" + s.Name
		sym := Symbol{
			Kind:  s.Kind,
			Name:  s.Name,
			Start: s.Start,
			End:   end,
			Body:  content[s.Start:end],
		}
		if seen[key] {
			duplicates = append(duplicates, key)
			// Keep the first occurrence's span in Symbols/Order; later
			// occurrences only contribute to Duplicates, matching a
			// parser that reports the top-level symbol table once per
			// name but flags the collision.
			continue
		}
		seen[key] = true
		symbols[key] = sym
		order = append(order, key)
	}

	return Result{Symbols: symbols, Order: order, Duplicates: duplicates}
}
