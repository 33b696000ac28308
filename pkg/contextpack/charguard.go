package contextpack

import "sort"

// applyCharGuard enforces spec §4.3's hard max-chars guard after selection:
//  1. compact included optional packs (highest priority / latest order
//     first) until the total fits;
//  2. if still over, drop optional packs (same order);
//  3. if still over, truncate required packs — preserve packs last, largest
//     first — by slicing and appending a truncation marker.
func applyCharGuard(packs []Pack, entries map[string]*entry, order []string, maxChars int) {
	total := func() int {
		n, included := 0, 0
		for _, id := range order {
			if entries[id].status == StatusIncluded {
				if included > 0 {
					n += 2 // "\n\n" joining this pack to the previous one
				}
				n += entries[id].chars()
				included++
			}
		}
		return n
	}

	if total() <= maxChars {
		return
	}

	byPackID := make(map[string]Pack, len(packs))
	for _, p := range packs {
		byPackID[p.ID] = p
	}

	// Step 1 & 2 operate on the same ordering: optional, included packs
	// sorted highest-priority first, then latest order first.
	optionalIDs := make([]string, 0, len(order))
	for _, id := range order {
		p := byPackID[id]
		if p.effectivePriority() != PriorityRequired {
			optionalIDs = append(optionalIDs, id)
		}
	}
	sort.SliceStable(optionalIDs, func(i, j int) bool {
		pi, pj := byPackID[optionalIDs[i]].effectivePriority(), byPackID[optionalIDs[j]].effectivePriority()
		if pi != pj {
			return priorityRank(pi) < priorityRank(pj)
		}
		return byPackID[optionalIDs[i]].Order > byPackID[optionalIDs[j]].Order
	})

	// Step 1: compact.
	for _, id := range optionalIDs {
		if total() <= maxChars {
			return
		}
		e := entries[id]
		p := byPackID[id]
		if e.status != StatusIncluded || e.variant != VariantFull || !p.hasCompact() {
			continue
		}
		e.text = p.Compact()
		e.variant = VariantCompact
	}

	// Step 2: drop.
	for _, id := range optionalIDs {
		if total() <= maxChars {
			return
		}
		e := entries[id]
		if e.status != StatusIncluded {
			continue
		}
		e.status = StatusSkipped
		e.variant = VariantNone
		e.text = ""
		e.reason = "char_guard"
	}

	if total() <= maxChars {
		return
	}

	// Step 3: truncate required packs. Non-preserve first, largest first;
	// preserve packs truncated last (and among themselves, largest first).
	requiredIDs := make([]string, 0, len(order))
	for _, id := range order {
		if byPackID[id].effectivePriority() == PriorityRequired {
			requiredIDs = append(requiredIDs, id)
		}
	}
	sort.SliceStable(requiredIDs, func(i, j int) bool {
		pi, pj := byPackID[requiredIDs[i]], byPackID[requiredIDs[j]]
		if pi.Preserve != pj.Preserve {
			return !pi.Preserve // non-preserve first
		}
		return entries[requiredIDs[i]].chars() > entries[requiredIDs[j]].chars()
	})

	for _, id := range requiredIDs {
		over := total() - maxChars
		if over <= 0 {
			return
		}
		e := entries[id]
		if e.status != StatusIncluded || e.chars() == 0 {
			continue
		}
		targetLen := e.chars() - over - len(truncationMarker)
		if targetLen < 0 {
			targetLen = 0
		}
		if targetLen >= e.chars() {
			continue
		}
		e.text = e.text[:targetLen] + truncationMarker
		e.truncated = true
	}
}
