package extractor

import "strconv"

// Deduper accepts each terminal once per run. The first record seen wins;
// later duplicates are dropped, never merged.
type Deduper struct {
	ids     map[string]struct{}
	keys    map[string]struct{}
	records []ExtractedRecord
}

func NewDeduper() *Deduper {
	return &Deduper{
		ids:  make(map[string]struct{}),
		keys: make(map[string]struct{}),
	}
}

// extractionKey identifies a record by label plus stable ID, or by label
// plus its row position within the page when no ID was resolved.
func extractionKey(rec ExtractedRecord, position int) string {
	if rec.stableID != "" {
		return rec.label + "|" + rec.stableID
	}
	return rec.label + "|" + strconv.Itoa(position)
}

// Accept records rec if neither its stable ID nor its key was seen before.
func (d *Deduper) Accept(rec ExtractedRecord, position int) bool {
	if rec.stableID != "" {
		if _, seen := d.ids[rec.stableID]; seen {
			return false
		}
	}
	key := extractionKey(rec, position)
	if _, seen := d.keys[key]; seen {
		return false
	}

	d.keys[key] = struct{}{}
	if rec.stableID != "" {
		d.ids[rec.stableID] = struct{}{}
	}
	d.records = append(d.records, rec)
	return true
}

// Records returns the accepted records in discovery order.
func (d *Deduper) Records() []ExtractedRecord {
	return d.records
}

func (d *Deduper) Len() int { return len(d.records) }
