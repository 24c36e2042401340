package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/reddit-video-publisher/internal/config"
	"github.com/fpang/reddit-video-publisher/internal/dropbox"
	"github.com/fpang/reddit-video-publisher/internal/logging"
	"github.com/fpang/reddit-video-publisher/internal/media"
	"github.com/fpang/reddit-video-publisher/internal/pipeline"
	"github.com/fpang/reddit-video-publisher/internal/reddit"
	"github.com/fpang/reddit-video-publisher/internal/telegram"
)

// runMain is the main execution logic called by Cobra.
func runMain(cmd *cobra.Command, args []string) {
	logging.Init()
	ctx := context.Background()

	cfg, err := config.Load(configFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	box := dropbox.NewClient(dropbox.Credentials{
		AppKey:       cfg.Dropbox.AppKey,
		AppSecret:    cfg.Dropbox.AppSecret,
		RefreshToken: cfg.Dropbox.RefreshToken,
	})

	var notifier *telegram.Notifier
	if cfg.Telegram.BotToken != "" {
		notifier, err = telegram.New(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			log.Warn().Err(err).Msg("Telegram notifier unavailable, continuing without notifications")
		}
	}

	client := reddit.NewClient(reddit.Credentials{
		ClientID:     cfg.Reddit.ClientID,
		ClientSecret: cfg.Reddit.ClientSecret,
		RefreshToken: cfg.Reddit.RefreshToken,
		UserAgent:    cfg.Reddit.UserAgent,
	})
	client.EnableWebsocket(cfg.Pipeline.UseWebsocket)

	report, err := box.BuildReport(ctx, cfg.Dropbox.FolderPath)
	if err != nil {
		log.Fatal().Err(err).Str("folder", cfg.Dropbox.FolderPath).Msg("Failed to build folder report")
	}
	notifier.Notify(formatReport("Queue report", cfg.Dropbox.FolderPath, report))
	if reportOnlyFlag {
		fmt.Print(formatReport("Queue report", cfg.Dropbox.FolderPath, report))
		hot, err := client.SubredditHot(ctx, cfg.Reddit.Subreddit, 5)
		if err != nil {
			log.Warn().Err(err).Str("subreddit", cfg.Reddit.Subreddit).Msg("Failed to list hot posts")
			return
		}
		fmt.Print(formatHot(cfg.Reddit.Subreddit, hot))
		return
	}

	if !client.Operational(ctx) {
		// Advisory only. Posts submitted during an incident mostly
		// land; they just take longer to process.
		log.Warn().Msg("Platform status page reports an incident")
		notifier.Notify("⚠️ Reddit status page reports an incident, proceeding anyway")
	}

	pipe := buildPipeline(cfg, client)
	downloader := pipeline.NewDownloader(cfg.Pipeline.TempDir)

	var processed []string
	for i := 0; i < countFlag; i++ {
		files, err := box.ListFolder(ctx, cfg.Dropbox.FolderPath)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list queue folder")
			break
		}
		pick := pickPublishable(files)
		if pick == nil {
			log.Info().Msg("No publishable files left in the queue")
			break
		}

		if err := publishOne(ctx, cfg, box, client, pipe, downloader, notifier, *pick); err != nil {
			log.Error().Err(err).Str("file", pick.Name).Msg("Publication failed")
			notifier.Notify(fmt.Sprintf("❌ Failed to publish %s: %v", pick.Name, err))
			continue
		}
		processed = append(processed, pick.Name)
	}

	final, err := box.BuildReport(ctx, cfg.Dropbox.FolderPath)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to build final folder report")
	} else {
		notifier.Notify(formatReport("Remaining queue", cfg.Dropbox.FolderPath, final))
	}
	if len(processed) > 0 {
		notifier.Notify(fmt.Sprintf("Processed this run:\n%s", strings.Join(processed, "\n")))
	}
	log.Info().Int("published", len(processed)).Msg("Run complete")
}

// buildPipeline assembles the publication pipeline from configuration.
func buildPipeline(cfg *config.Config, client *reddit.Client) *pipeline.Pipeline {
	prober := media.NewFFprober(cfg.Pipeline.ToolTimeout)
	encoder := media.NewFFmpegEncoder(cfg.Pipeline.ToolTimeout)

	validator := media.NewValidator(prober)
	transcoder := media.NewTranscoder(encoder, prober, cfg.Pipeline.TempDir)
	thumbnailer := media.NewThumbnailer(encoder, cfg.Pipeline.TempDir)

	direct := pipeline.NewDirectSubmitter(client, client, cfg.Reddit.Subreddit)
	fallback := pipeline.NewFallbackSubmitter(client, client, cfg.Reddit.Subreddit, cfg.Pipeline.TempDir)

	return pipeline.New(pipeline.Options{
		Validator:        validator,
		Transcoder:       transcoder,
		Thumbnailer:      thumbnailer,
		Submitter:        pipeline.NewFallbackChain(direct, fallback),
		Posts:            client,
		Poller:           pipeline.NewPoller(client, cfg.Pipeline.PollAttempts, cfg.Pipeline.PollDelay),
		API:              client,
		Finder:           client,
		Subreddit:        cfg.Reddit.Subreddit,
		TempDir:          cfg.Pipeline.TempDir,
		MaxGhostRestarts: cfg.Pipeline.MaxGhostRestarts,
		ResizeFirst:      resizeFlag,
	})
}

// publishOne downloads a queued file, publishes it, crossposts the
// result, and removes the source from Dropbox.
func publishOne(ctx context.Context, cfg *config.Config, box *dropbox.Client, client *reddit.Client,
	pipe *pipeline.Pipeline, downloader *pipeline.Downloader, notifier *telegram.Notifier, file dropbox.FileMeta) error {

	link, err := box.TemporaryLink(ctx, file.PathDisplay)
	if err != nil {
		return fmt.Errorf("temporary link: %w", err)
	}

	name := pipeline.CleanFilename(file.Name)
	artifact, err := downloader.Fetch(ctx, link, name)
	if err != nil {
		return err
	}

	title := pipeline.PostTitle(file.Name)
	log.Info().Str("file", file.Name).Str("title", title).
		Int64("bytes", artifact.Size()).Msg("Publishing")

	var sub *reddit.Submission
	stillProcessing := false
	switch {
	case media.IsVideo(file.Name):
		sub, err = pipe.PublishVideo(ctx, artifact, title)
		if errors.Is(err, pipeline.ErrMediaTimeout) && sub != nil {
			// The post exists; it just has not finished processing.
			stillProcessing = true
			err = nil
		}
	case media.IsImage(file.Name):
		sub, err = pipe.PublishImage(ctx, artifact, title)
	default:
		artifact.Release()
		return fmt.Errorf("unsupported file type: %s", file.Name)
	}
	if err != nil {
		return err
	}

	if stillProcessing {
		notifier.Notify(fmt.Sprintf("🕐 Posted %q, media still processing\n%s", title, sub.PermalinkURL()))
	} else {
		notifier.Notify(fmt.Sprintf("✅ Posted %q\n%s", title, sub.PermalinkURL()))
	}

	if len(cfg.Reddit.CrosspostTo) > 0 && !stillProcessing {
		result := pipeline.CrosspostAll(ctx, client, sub.Fullname(), title,
			cfg.Reddit.CrosspostTo, cfg.Pipeline.CrosspostDelay)
		notifier.Notify(formatCrossposts(title, result))
	}

	if keepSourceFlag {
		return nil
	}
	if err := box.Delete(ctx, file.PathDisplay); err != nil {
		// The post is live; losing the cleanup is not worth failing
		// the run over.
		log.Warn().Err(err).Str("file", file.PathDisplay).Msg("Failed to delete source file from Dropbox")
		notifier.Notify(fmt.Sprintf("⚠️ Could not delete %s from Dropbox", file.Name))
	}
	return nil
}

// pickPublishable chooses a random video from the listing, falling back
// to a random image when no videos are queued.
func pickPublishable(files []dropbox.FileMeta) *dropbox.FileMeta {
	var videos, images []dropbox.FileMeta
	for _, f := range files {
		switch {
		case media.IsVideo(f.Name):
			videos = append(videos, f)
		case media.IsImage(f.Name):
			images = append(images, f)
		}
	}
	if len(videos) > 0 {
		return &videos[rand.IntN(len(videos))]
	}
	if len(images) > 0 {
		return &images[rand.IntN(len(images))]
	}
	return nil
}

func formatReport(header, folder string, r *dropbox.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s for %s\n", header, folder)
	fmt.Fprintf(&b, "Total: %d (videos %d, images %d, other %d)\n",
		r.TotalFiles, r.VideoFiles, r.ImageFiles, r.OtherFiles)
	if len(r.Videos) > 0 {
		fmt.Fprintf(&b, "Videos:\n  %s\n", strings.Join(r.Videos, "\n  "))
	}
	if len(r.Images) > 0 {
		fmt.Fprintf(&b, "Images:\n  %s\n", strings.Join(r.Images, "\n  "))
	}
	return b.String()
}

// formatHot shows what the target feed currently looks like, so a
// report-only run previews the competition before anything is posted.
func formatHot(subreddit string, subs []*reddit.Submission) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hot in r/%s:\n", subreddit)
	for _, s := range subs {
		fmt.Fprintf(&b, "  %s\n", s.Title)
	}
	return b.String()
}

func formatCrossposts(title string, r *pipeline.CrosspostResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Crosspost summary for %q: %d/%d succeeded\n",
		title, len(r.Successful), r.Attempted)
	if len(r.Successful) > 0 {
		fmt.Fprintf(&b, "OK: %s\n", strings.Join(r.Successful, ", "))
	}
	for _, f := range r.Failed {
		fmt.Fprintf(&b, "Failed r/%s: %s\n", f.Subreddit, f.Reason)
	}
	return b.String()
}
