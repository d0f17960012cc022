package castprotocol

import (
	"context"

	"go2tv.app/castlink/castprotocol/cast"
)

// DefaultMediaReceiverAppID is the platform's default media receiver.
const DefaultMediaReceiverAppID = "CC1AD845"

// LoadOptions describes media to load.
type LoadOptions struct {
	URL         string
	ContentType string
	Title       string
	// StartTime is the start position in seconds.
	StartTime float64
	// Duration in seconds, 0 lets the receiver detect it.
	Duration float64
	// SubtitleURL points at a WebVTT file. Empty means no subtitles.
	SubtitleURL string
	Live        bool
}

// MediaChannel controls media sessions of the launched application. Its
// messages go to the application transport id, never to receiver-0.
type MediaChannel struct {
	sender      Sender
	destination func() (string, error)
	status      statusHolder[cast.MediaStatus]
}

func (ch *MediaChannel) Namespace() string { return NamespaceMedia }

// Status returns the last-known media status, or nil when nothing is loaded.
func (ch *MediaChannel) Status() *cast.MediaStatus { return ch.status.load() }

// GetStatus asks the application for its media status. A nil status with a
// nil error means no media is loaded.
func (ch *MediaChannel) GetStatus(ctx context.Context) (*cast.MediaStatus, error) {
	return ch.request(ctx, cast.NewGetStatus())
}

// Load loads media. With a subtitle URL a single WebVTT text track is added
// and activated. Live streams are loaded paused and then played right away;
// autoplay on a live stream makes some receivers buffer for a long time.
func (ch *MediaChannel) Load(ctx context.Context, opts LoadOptions) (*cast.MediaStatus, error) {
	media := cast.MediaInformation{
		ContentID:   opts.URL,
		ContentType: opts.ContentType,
		StreamType:  cast.StreamTypeBuffered,
		Duration:    opts.Duration,
	}
	if opts.Live {
		media.StreamType = cast.StreamTypeLive
	}
	if opts.Title != "" {
		media.Metadata = &cast.Metadata{MetadataType: cast.MetadataGeneric, Title: opts.Title}
	}

	load := cast.NewLoad(media, !opts.Live, opts.StartTime)
	if opts.SubtitleURL != "" {
		load.Media.Tracks = []cast.Track{cast.WebVTTSubtitles(1, opts.SubtitleURL, "en")}
		load.ActiveTrackIDs = []int{1}
	}

	status, err := ch.request(ctx, load)
	if err != nil || !opts.Live || status == nil {
		return status, err
	}
	return ch.command(ctx, cast.NewMediaCommand(cast.TypePlay, status.MediaSessionID))
}

func (ch *MediaChannel) Play(ctx context.Context) (*cast.MediaStatus, error) {
	return ch.sessionCommand(ctx, cast.TypePlay)
}

func (ch *MediaChannel) Pause(ctx context.Context) (*cast.MediaStatus, error) {
	return ch.sessionCommand(ctx, cast.TypePause)
}

// Stop stops playback and ends the media session.
func (ch *MediaChannel) Stop(ctx context.Context) (*cast.MediaStatus, error) {
	return ch.sessionCommand(ctx, cast.TypeStop)
}

// Seek moves to seconds from the start.
func (ch *MediaChannel) Seek(ctx context.Context, seconds float64) (*cast.MediaStatus, error) {
	cur := ch.status.load()
	if cur == nil {
		return nil, cast.NewStateError("Seek", cast.ErrNoMediaSession)
	}
	return ch.command(ctx, cast.NewSeek(cur.MediaSessionID, seconds))
}

func (ch *MediaChannel) sessionCommand(ctx context.Context, typ string) (*cast.MediaStatus, error) {
	cur := ch.status.load()
	if cur == nil {
		return nil, cast.NewStateError(typ, cast.ErrNoMediaSession)
	}
	return ch.command(ctx, cast.NewMediaCommand(typ, cur.MediaSessionID))
}

func (ch *MediaChannel) command(ctx context.Context, msg *cast.MediaCommandMessage) (*cast.MediaStatus, error) {
	return ch.request(ctx, msg)
}

func (ch *MediaChannel) request(ctx context.Context, msg cast.Correlatable) (*cast.MediaStatus, error) {
	dest, err := ch.destination()
	if err != nil {
		return nil, err
	}
	reply, err := Request[*cast.MediaStatusMessage](ctx, ch.sender, NamespaceMedia, msg, dest)
	if err != nil {
		return nil, err
	}
	return reply.MediaStatus(), nil
}

func (ch *MediaChannel) OnMessage(cast.Message) {}

func (ch *MediaChannel) applyStatus(msg cast.Message) bool {
	ms, ok := msg.(*cast.MediaStatusMessage)
	if !ok {
		return false
	}
	if s := ms.MediaStatus(); s != nil {
		ch.status.store(s)
	} else {
		ch.status.reset()
	}
	return true
}

func (ch *MediaChannel) resetStatus() { ch.status.reset() }

func (ch *MediaChannel) statusSnapshot() any { return ch.status.snapshot() }

func (ch *MediaChannel) statusTopic() string { return TopicMediaStatus }
