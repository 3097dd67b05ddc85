package state

// Package state holds the client-side cache of sections, albums, songs and
// per-task statuses. One Store exists per logged-in session and republishes
// a change signal on every mutation for reactive consumers.
