package client

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ytget/musicdl/internal/model"
)

type sectionWrapper struct {
	Name string `json:"name"`
}

type cancelRequestWrapper struct {
	Name    string `json:"name"`
	Section string `json:"section"`
	Album   string `json:"album"`
}

// Ping checks that the server is reachable and the credentials work.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.doBytes(ctx, "/api", nil)
	return err
}

// Sections lists all section names.
func (c *Client) Sections(ctx context.Context) ([]string, error) {
	var sections []string
	if err := c.doJSON(ctx, http.MethodGet, "/api/get/sections", nil, nil, &sections); err != nil {
		return nil, err
	}
	return sections, nil
}

// Albums lists all album names.
func (c *Client) Albums(ctx context.Context) ([]string, error) {
	var albums []string
	if err := c.doJSON(ctx, http.MethodGet, "/api/get/albums", nil, nil, &albums); err != nil {
		return nil, err
	}
	return albums, nil
}

// Songs lists the songs of one section.
func (c *Client) Songs(ctx context.Context, section string) ([]model.Song, error) {
	var songs []model.Song
	q := url.Values{"section": {section}}
	if err := c.doJSON(ctx, http.MethodGet, "/api/get/songs", q, nil, &songs); err != nil {
		return nil, err
	}
	return songs, nil
}

// SectionsAndSongs returns every section with its songs in one call.
func (c *Client) SectionsAndSongs(ctx context.Context) (map[string][]model.Song, error) {
	var result map[string][]model.Song
	if err := c.doJSON(ctx, http.MethodGet, "/api/get/sectionsAndSongs", nil, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// AlbumCover fetches the cover image bytes for an album.
func (c *Client) AlbumCover(ctx context.Context, album string) ([]byte, error) {
	return c.doBytes(ctx, "/api/get/albumCover", url.Values{"album": {album}})
}

// AlbumCoverModTime returns the server-side modification time of an album's
// cover in unix milliseconds, for cache freshness checks.
func (c *Client) AlbumCoverModTime(ctx context.Context, album string) (int64, error) {
	data, err := c.doBytes(ctx, "/api/get/albumCoverDate", url.Values{"album": {album}})
	if err != nil {
		return 0, err
	}
	millis, err := strconv.ParseInt(string(bytes.TrimSpace(data)), 10, 64)
	if err != nil {
		return 0, decodeErr("parse cover date", err)
	}
	return millis, nil
}

// Song fetches the audio bytes of one song, addressed by the
// (section, name, album) triple.
func (c *Client) Song(ctx context.Context, section, name, album string) ([]byte, error) {
	q := url.Values{"section": {section}, "name": {name}, "album": {album}}
	return c.doBytes(ctx, "/api/get/song", q)
}

// CreateSection creates an empty section.
func (c *Client) CreateSection(ctx context.Context, section string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/post/section", nil, sectionWrapper{Name: section}, nil)
}

// CreateAlbum creates an album with its cover image. The server expects a
// multipart form with a JSON "header" part and the PNG bytes as "image".
func (c *Client) CreateAlbum(ctx context.Context, album string, image []byte) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("header", `{"name":`+strconv.Quote(album)+`}`); err != nil {
		return otherErr(err.Error())
	}
	part, err := w.CreateFormFile("image", "cover.png")
	if err != nil {
		return otherErr(err.Error())
	}
	if _, err := part.Write(image); err != nil {
		return otherErr(err.Error())
	}
	if err := w.Close(); err != nil {
		return otherErr(err.Error())
	}
	form := buf.Bytes()

	resp, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, c.endpoint("/api/post/album", nil), bytes.NewReader(form))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return otherErr("create album: " + readBodyMessage(resp))
	}
	return nil
}

// DeleteSection removes a section and its song assignments.
func (c *Client) DeleteSection(ctx context.Context, section string) error {
	q := url.Values{"section": {section}}
	return c.doJSON(ctx, http.MethodDelete, "/api/delete/section", q, nil, nil)
}

// DeleteAlbum removes an album.
func (c *Client) DeleteAlbum(ctx context.Context, album string) error {
	q := url.Values{"album": {album}}
	return c.doJSON(ctx, http.MethodDelete, "/api/delete/album", q, nil, nil)
}

// DeleteSong removes one song, addressed by the (section, name, album) triple.
func (c *Client) DeleteSong(ctx context.Context, name, section, album string) error {
	q := url.Values{"name": {name}, "section": {section}, "album": {album}}
	return c.doJSON(ctx, http.MethodDelete, "/api/delete/song", q, nil, nil)
}

// SubmitRequest submits a new download request.
func (c *Client) SubmitRequest(ctx context.Context, request model.DownloadRequest) error {
	return c.doJSON(ctx, http.MethodPost, "/api/post/request", nil, request, nil)
}

// CancelRequest cancels an in-flight download. The album is part of the key:
// two songs may share a name and section and differ only by album.
func (c *Client) CancelRequest(ctx context.Context, name, section, album string) error {
	body := cancelRequestWrapper{Name: name, Section: section, Album: album}
	return c.doJSON(ctx, http.MethodPost, "/api/post/cancelRequest", nil, body, nil)
}
