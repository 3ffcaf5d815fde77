package tracking

import (
	"context"
	"sort"
)

// declaredAcls sums the AclCount of changeSets.
func declaredAcls(changeSets []AclChangeSet) int64 {
	var n int64
	for _, cs := range changeSets {
		n += int64(cs.AclCount)
	}
	return n
}

// AclsTruncated reports whether acls, everything GetAcls returned for
// changeSets from the first id on, is short of the declared ACL count. When
// no change set declares a count, a page filled up to maxResults is taken as
// truncated.
func AclsTruncated(changeSets []AclChangeSet, acls []Acl, maxResults int) bool {
	if declared := declaredAcls(changeSets); declared > 0 {
		return int64(len(acls)) < declared
	}
	return maxResults > 0 && len(acls) >= maxResults
}

// FetchAllAcls pages through GetAcls until every ACL of changeSets is returned.
// Each follow-up page starts at the last id of the previous one; the repeated
// boundary record is dropped. Paging stops early when the repository has
// nothing past the last id, even if fewer ACLs than declared were found.
func FetchAllAcls(ctx context.Context, c Client, changeSets []AclChangeSet, maxResults int) ([]Acl, error) {
	var all []Acl
	seen := make(map[int64]struct{})
	var minID *int64
	stalled := false
	declared := declaredAcls(changeSets)

	for {
		page, err := c.GetAcls(ctx, changeSets, minID, maxResults)
		if err != nil {
			return nil, err
		}
		added := 0
		for _, a := range page {
			if _, dup := seen[a.ID]; dup {
				continue
			}
			seen[a.ID] = struct{}{}
			all = append(all, a)
			added++
		}
		more := maxResults > 0 && len(page) >= maxResults
		if declared > 0 {
			more = int64(len(all)) < declared
		}
		if len(page) == 0 || !more {
			return all, nil
		}

		next := page[len(page)-1].ID
		if added == 0 {
			if stalled {
				return all, nil
			}
			// the page held only records already returned
			stalled = true
			next++
		} else {
			stalled = false
		}
		minID = &next
	}
}

// Watermark is the (commit time, id) high-water mark of a time-range cursor.
// Pages are ordered by commit time then id, so everything at or below the mark
// has already been processed.
type Watermark struct {
	CommitTimeMs int64
	ID           int64
}

// Query returns the time-range query for the next page. The lower bound is
// inclusive, so the page repeats the records at the mark; Advance drops them.
func (w Watermark) Query(maxResults int) CursorQuery {
	from := w.CommitTimeMs
	return CursorQuery{FromCommitTime: &from, MaxResults: maxResults}
}

// Covers reports whether cs is at or below the mark.
func (w Watermark) Covers(cs ChangeSet) bool {
	ct := cs.GetCommitTimeMs()
	return ct < w.CommitTimeMs || (ct == w.CommitTimeMs && cs.GetID() <= w.ID)
}

// Advance returns the records of page above w and the mark after them.
func Advance[T ChangeSet](w Watermark, page []T) ([]T, Watermark) {
	fresh := make([]T, 0, len(page))
	for _, cs := range page {
		if w.Covers(cs) {
			continue
		}
		fresh = append(fresh, cs)
	}
	next := w
	for _, cs := range fresh {
		if next.Covers(cs) {
			continue
		}
		next = Watermark{CommitTimeMs: cs.GetCommitTimeMs(), ID: cs.GetID()}
	}
	return fresh, next
}

// selectPage applies a cursor query to records.
func selectPage[T ChangeSet](all []T, q CursorQuery) []T {
	var out []T
	if q.TimeRange() {
		for _, cs := range all {
			ct := cs.GetCommitTimeMs()
			if q.FromCommitTime != nil && ct < *q.FromCommitTime {
				continue
			}
			if q.ToCommitTime != nil && ct > *q.ToCommitTime {
				continue
			}
			out = append(out, cs)
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].GetCommitTimeMs() != out[j].GetCommitTimeMs() {
				return out[i].GetCommitTimeMs() < out[j].GetCommitTimeMs()
			}
			return out[i].GetID() < out[j].GetID()
		})
	} else {
		var minID int64
		if q.MinID != nil {
			minID = *q.MinID
		}
		for _, cs := range all {
			id := cs.GetID()
			if id < minID {
				continue
			}
			if q.MaxID != nil && id >= *q.MaxID {
				continue
			}
			out = append(out, cs)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].GetID() < out[j].GetID() })
	}

	if q.MaxResults > 0 && len(out) > q.MaxResults {
		out = out[:q.MaxResults]
	}
	if out == nil {
		out = []T{}
	}
	return out
}

// pageWatermarks returns the highest commit time and id in page, nil when empty.
func pageWatermarks[T ChangeSet](page []T) (maxCommitTime, maxID *int64) {
	for _, cs := range page {
		ct, id := cs.GetCommitTimeMs(), cs.GetID()
		if maxCommitTime == nil || ct > *maxCommitTime {
			maxCommitTime = &ct
		}
		if maxID == nil || id > *maxID {
			maxID = &id
		}
	}
	return maxCommitTime, maxID
}
