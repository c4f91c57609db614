package itunes

// Response is the envelope of both /search and /lookup
type Response struct {
	ResultCount int      `json:"resultCount"`
	Results     []Result `json:"results"`
}

// Result is one row. Podcasts and episodes share the envelope and are told
// apart by WrapperType/Kind.
type Result struct {
	WrapperType string `json:"wrapperType"` // "track" (podcast) or "podcastEpisode"
	Kind        string `json:"kind"`        // "podcast" or "podcast-episode"

	// Podcast fields
	CollectionID   int64  `json:"collectionId"`
	CollectionName string `json:"collectionName"`
	ArtistName     string `json:"artistName"`
	FeedURL        string `json:"feedUrl"`
	ArtworkURL100  string `json:"artworkUrl100"`
	ArtworkURL600  string `json:"artworkUrl600"`
	TrackCount     int    `json:"trackCount"`

	// Episode fields
	TrackID         int64  `json:"trackId"`
	TrackName       string `json:"trackName"`
	EpisodeURL      string `json:"episodeUrl"`
	TrackTimeMillis int64  `json:"trackTimeMillis"`
	ReleaseDate     string `json:"releaseDate"`
	EpisodeGUID     string `json:"episodeGuid"`
}

func (r Result) isEpisode() bool {
	return r.WrapperType == "podcastEpisode" || r.Kind == "podcast-episode"
}
