package model

import "fmt"

// Song is a single track in the server's library
type Song struct {
	Name   string `json:"name"`
	Artist string `json:"artist"`
	Album  string `json:"album"`
}

// DownloadRequest identifies a requested download. There is no separate
// request ID; the tuple itself is the key that correlates a request to the
// status events the server pushes for it. The struct is comparable so it can
// key a map directly.
type DownloadRequest struct {
	URL     string `json:"url"`
	Name    string `json:"name"`
	Artist  string `json:"artist"`
	Album   string `json:"album"`
	Section string `json:"section"`
}

// TaskStatus is the latest known progress of a download request. Percentage
// is in the 0.0-1.0 range and carries meaning only when Status.HasPercentage().
type TaskStatus struct {
	Request    DownloadRequest `json:"request"`
	Status     StatusKind      `json:"status"`
	Percentage float64         `json:"percentage"`
}

// GetDisplayTitle returns "artist - name", falling back to the URL when the
// request carries no name yet.
func (r DownloadRequest) GetDisplayTitle() string {
	if r.Name == "" {
		return r.URL
	}
	if r.Artist == "" {
		return r.Name
	}
	return fmt.Sprintf("%s - %s", r.Artist, r.Name)
}

// GetPercentString formats the progress for display, or "—" for kinds without
// bounded progress.
func (s TaskStatus) GetPercentString() string {
	if !s.Status.HasPercentage() {
		return "—"
	}
	return fmt.Sprintf("%d%%", int(s.Percentage*100))
}
