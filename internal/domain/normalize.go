package domain

import "encoding/json"

// legacyFieldAliases maps a canonical payload field name to the older names
// it may appear under in ingested content. ContentStore.PutBatch runs
// NormalizePayload once per item, at insert, so nothing downstream ever has
// to reason about which alias a given record used.
var legacyFieldAliases = map[string][]string{
	"correct_answer_index": {"correct-answer-idx", "correct-answer-index", "correctAnswerIdx"},
	"choices":              {"options", "answers"},
	"prompt":               {"question", "question_text"},
}

// NormalizePayload rewrites known legacy field aliases in raw to their
// canonical name, leaving unrecognized fields untouched. It is a one-shot
// normalization applied when an item is first written to the content store
// (PutBatch), not an ongoing runtime concern for the allocator or ledger.
func NormalizePayload(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		// Not a JSON object (or malformed); pass through unchanged.
		return raw
	}

	changed := false
	for canonical, aliases := range legacyFieldAliases {
		if _, ok := fields[canonical]; ok {
			continue
		}
		for _, alias := range aliases {
			if v, ok := fields[alias]; ok {
				fields[canonical] = v
				delete(fields, alias)
				changed = true
				break
			}
		}
	}

	if !changed {
		return raw
	}

	out, err := json.Marshal(fields)
	if err != nil {
		return raw
	}
	return out
}
