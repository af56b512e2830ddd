package flow

// Table maps flow keys to their accumulated stats. Insertion order is
// irrelevant; duplicate keys merge.
type Table map[Key]Stats

// AddToTable merges stats for key into the table, creating the entry if it
// does not exist yet.
func AddToTable(t Table, key Key, stats Stats) {
	if existing, ok := t[key]; ok {
		existing.Merge(stats)
		t[key] = existing
		return
	}
	t[key] = stats
}

// CombineTable merges every entry of src into dst.
func CombineTable(dst Table, src Table) {
	for key, stats := range src {
		AddToTable(dst, key, stats)
	}
}
