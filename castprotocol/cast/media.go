package cast

// Stream types.
const (
	StreamTypeBuffered = "BUFFERED"
	StreamTypeLive     = "LIVE"
)

// Metadata types understood by the default media receiver.
const (
	MetadataGeneric = 0
	MetadataMovie   = 1
)

const (
	trackKindText     = "TEXT"
	trackSubtitles    = "SUBTITLES"
	webVTTContentType = "text/vtt"
)

// Track is one selectable stream of a media item. Only text tracks are ever
// sent; the receiver reports the others in its status.
type Track struct {
	TrackID     int    `json:"trackId"`
	Type        string `json:"type"`
	SubType     string `json:"subtype,omitempty"`
	ContentID   string `json:"trackContentId,omitempty"`
	ContentType string `json:"trackContentType,omitempty"`
	Name        string `json:"name,omitempty"`
	Language    string `json:"language,omitempty"`
}

// IsSubtitle reports whether t is a subtitle text track.
func (t Track) IsSubtitle() bool {
	return t.Type == trackKindText && t.SubType == trackSubtitles
}

// WebVTTSubtitles is a subtitle track served as WebVTT from url.
func WebVTTSubtitles(id int, url, language string) Track {
	return Track{
		TrackID:     id,
		Type:        trackKindText,
		SubType:     trackSubtitles,
		ContentID:   url,
		ContentType: webVTTContentType,
		Name:        "Subtitles",
		Language:    language,
	}
}

type Metadata struct {
	MetadataType int    `json:"metadataType"`
	Title        string `json:"title,omitempty"`
}

// MediaInformation is the media item of a LOAD and of a media status.
type MediaInformation struct {
	ContentID   string    `json:"contentId"`
	ContentType string    `json:"contentType"`
	StreamType  string    `json:"streamType"`
	Duration    float64   `json:"duration,omitempty"`
	Metadata    *Metadata `json:"metadata,omitempty"`
	Tracks      []Track   `json:"tracks,omitempty"`
}

// Subtitles returns the subtitle tracks of m.
func (m MediaInformation) Subtitles() []Track {
	var out []Track
	for _, t := range m.Tracks {
		if t.IsSubtitle() {
			out = append(out, t)
		}
	}
	return out
}
