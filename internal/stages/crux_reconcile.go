package stages

import "strings"

// ReconcileSpeakers applies the crux speaker reconciliation rules of
// spec.md §4.E in their fixed order, as a pure function from the raw
// LLM-produced triple to the corrected one. It never mutates its inputs.
//
// Input entries have the form "id:name[ | weight]"; identity is the
// substring before the first colon, trimmed. Rules, applied in order:
//
//  1. Drop entries without an extractable non-empty id.
//  2. An id present in both agree and disagree ("ambiguous") is removed
//     from both and added to noClearPosition, using the agree-side full
//     string as its payload.
//  3. An id present in noClearPosition that is also present in agree or
//     disagree (after rule 2) is removed from noClearPosition — a clear
//     stance overrides "no clear position".
//  4. Within each of the three output lists, duplicates are removed,
//     keeping the first occurrence.
func ReconcileSpeakers(agree, disagree, noClearPosition []string) (outAgree, outDisagree, outNoClearPosition []string) {
	agreeByID := firstByID(agree)
	disagreeByID := firstByID(disagree)
	noClearByID := firstByID(noClearPosition)

	for id := range agreeByID {
		if _, ambiguous := disagreeByID[id]; ambiguous {
			noClearByID[id] = agreeByID[id]
			delete(agreeByID, id)
			delete(disagreeByID, id)
		}
	}

	for id := range noClearByID {
		_, inAgree := agreeByID[id]
		_, inDisagree := disagreeByID[id]
		if inAgree || inDisagree {
			delete(noClearByID, id)
		}
	}

	return orderedValues(agree, agreeByID),
		orderedValues(disagree, disagreeByID),
		orderedNoClearValues(noClearPosition, agree, noClearByID)
}

// speakerID returns the trimmed substring before the first colon, and
// whether it is non-empty (rule 1).
func speakerID(entry string) (string, bool) {
	idx := strings.IndexByte(entry, ':')
	if idx < 0 {
		return "", false
	}
	id := strings.TrimSpace(entry[:idx])
	if id == "" {
		return "", false
	}
	return id, true
}

// firstByID builds an id -> representative-string map from a raw list,
// keeping the first occurrence's string and dropping entries with no
// extractable id (rule 1).
func firstByID(entries []string) map[string]string {
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		id, ok := speakerID(e)
		if !ok {
			continue
		}
		if _, exists := out[id]; !exists {
			out[id] = e
		}
	}
	return out
}

// orderedValues walks the original list order, emitting each surviving id's
// representative string exactly once, in its first-occurrence position.
func orderedValues(original []string, byID map[string]string) []string {
	seen := make(map[string]struct{}, len(byID))
	out := make([]string, 0, len(byID))
	for _, e := range original {
		id, ok := speakerID(e)
		if !ok {
			continue
		}
		if _, exists := byID[id]; !exists {
			continue
		}
		if _, already := seen[id]; already {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, byID[id])
	}
	return out
}

// orderedNoClearValues orders noClearPosition's surviving entries: original
// noClearPosition order first (for ids that started there), then any id
// that was promoted in from the ambiguous agree/disagree overlap (rule 2),
// ordered by the agree list's position, since those ids never appeared in
// the original noClearPosition list.
func orderedNoClearValues(originalNoClear, originalAgree []string, byID map[string]string) []string {
	seen := make(map[string]struct{}, len(byID))
	out := make([]string, 0, len(byID))
	for _, e := range originalNoClear {
		id, ok := speakerID(e)
		if !ok {
			continue
		}
		if _, exists := byID[id]; !exists {
			continue
		}
		if _, already := seen[id]; already {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, byID[id])
	}
	for _, e := range originalAgree {
		id, ok := speakerID(e)
		if !ok {
			continue
		}
		if _, exists := byID[id]; !exists {
			continue
		}
		if _, already := seen[id]; already {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, byID[id])
	}
	return out
}
