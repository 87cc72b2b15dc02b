package models

// Airing is one scheduled broadcast of an episode. It is an immutable
// value; its identity for deduplication is the ID. Start and end times are
// kept as the offset timestamp strings received from the provider.
type Airing struct {
	ID        string
	Season    int64
	Episode   *int64 // nil when the provider reports no episode number
	StartTime string
	EndTime   string
}

// Show is a snapshot of one TV show's aggregated airings within a single
// day bucket. A show airing on multiple days has one independent Show per
// bucket. Snapshots are copies; mutating one never affects the store.
type Show struct {
	ID          string
	Title       string
	Description string
	Airings     []Airing
}

// Occurrence is the airing count for one show accumulated over one or more
// days. Derived per query, never persisted.
type Occurrence struct {
	ID          string
	Title       string
	Description string
	Count       int64
}
