package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"go2tv.app/castlink/castprotocol"
	"go2tv.app/castlink/devices"
	"go2tv.app/castlink/internal/mediaserver"
)

func loadCmd(g *globals) *cobra.Command {
	var (
		opts     castprotocol.LoadOptions
		appID    string
		file     string
		subsFile string
	)

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load media from a URL or a local file",
		Long: `Launch or join the media receiver and load media.

A local --file is served over HTTP from this machine until interrupted.
Local .srt subtitles are converted to WebVTT.

Examples:
  castctl load --device 192.168.1.20 --url http://192.168.1.5:3500/movie.mp4 --type video/mp4
  castctl load --pick 1 --url http://example.com/live.m3u8 --type application/x-mpegurl --live
  castctl load --pick 1 --file ./movie.mp4 --subs-file ./movie.srt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (opts.URL == "") == (file == "") {
				return fmt.Errorf("exactly one of --url or --file is required")
			}
			if subsFile != "" && file == "" {
				return fmt.Errorf("--subs-file needs --file")
			}
			if appID == "" {
				appID = g.conf.DefaultAppID
			}

			ctx, cancel := signalContext()
			defer cancel()

			dev, err := g.target(ctx)
			if err != nil {
				return err
			}

			var srv *mediaserver.Server
			if file != "" {
				srv, err = serveLocal(dev, file, subsFile, cmd.Flags().Changed("type"), &opts)
				if err != nil {
					return err
				}
				srv.Logger = g.log
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			c, err := g.connectTo(ctx, dev)
			if err != nil {
				return err
			}
			defer c.Close()

			if _, err := c.LaunchApplication(ctx, appID, true); err != nil {
				return err
			}
			status, err := c.Media().Load(ctx, opts)
			if err != nil {
				return err
			}
			printMediaStatus(status)

			if srv == nil {
				return nil
			}
			fmt.Println("Serving local media, press Ctrl+C to stop.")
			sub := c.Subscribe(castprotocol.TopicMediaStatus, castprotocol.TopicDisconnected)
			defer c.Unsubscribe(sub)
			return watchEvents(ctx, c, sub)
		},
	}

	cmd.Flags().StringVarP(&opts.URL, "url", "u", "", "HTTP URL of the media")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Local media file to serve")
	cmd.Flags().StringVarP(&opts.ContentType, "type", "t", "video/mp4", "MIME type of the media (sniffed for --file)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "Title shown by the receiver")
	cmd.Flags().StringVarP(&opts.SubtitleURL, "subs", "s", "", "HTTP URL of a WebVTT subtitle file")
	cmd.Flags().StringVar(&subsFile, "subs-file", "", "Local .srt or .vtt subtitle file to serve")
	cmd.Flags().Float64Var(&opts.StartTime, "start", 0, "Start position in seconds")
	cmd.Flags().BoolVar(&opts.Live, "live", false, "Treat the URL as a live stream")
	cmd.Flags().StringVarP(&appID, "app", "a", "", "Media receiver application id (default from settings)")

	return cmd
}

// serveLocal starts a media server reachable from dev and points opts at it.
func serveLocal(dev devices.Device, file, subsFile string, typeSet bool, opts *castprotocol.LoadOptions) (*mediaserver.Server, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return nil, err
	}
	if !typeSet {
		if opts.ContentType, err = mediaserver.MimeFromFile(abs); err != nil {
			return nil, err
		}
	}

	port := dev.Port
	if port == 0 {
		port = devices.DefaultPort
	}
	addr, err := mediaserver.ListenAddress(dev.Host, port)
	if err != nil {
		return nil, err
	}

	srv := mediaserver.New(addr)
	mediaPath := srv.AddFile(abs, opts.ContentType)

	var subsPath string
	if subsFile != "" {
		vtt, err := mediaserver.LoadSubtitles(subsFile)
		if err != nil {
			return nil, err
		}
		name := strings.TrimSuffix(filepath.Base(subsFile), filepath.Ext(subsFile)) + ".vtt"
		subsPath = srv.AddBytes(name, "text/vtt", vtt)
	}

	if err := srv.Start(); err != nil {
		return nil, err
	}
	opts.URL = srv.URL(mediaPath)
	if subsPath != "" {
		opts.SubtitleURL = srv.URL(subsPath)
	}
	if opts.Title == "" {
		opts.Title = filepath.Base(abs)
	}
	return srv, nil
}
