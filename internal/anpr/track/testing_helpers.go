package track

// SeedTrack inserts a fully-formed track directly into the tracker. This is
// exported to allow test code in other packages to set up fixtures without
// driving whole frames through Update.
//
// NOTE: This function is intended for testing purposes only and should not
// be used in production code. Production code must let Update manage the
// track table so lifecycle invariants hold.
func (t *Tracker) SeedTrack(trk Track) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := trk
	t.tracks[trk.ID] = &cp
	if trk.ID >= t.nextID {
		t.nextID = trk.ID + 1
	}
}
