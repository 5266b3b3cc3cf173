package job

import (
	"context"
	"fmt"
	"log/slog"

	config "github.com/xeinst/autopost/configs"
	"github.com/xeinst/autopost/internal/models"
	"github.com/xeinst/autopost/internal/platform"
	"github.com/xeinst/autopost/internal/repository"
	"github.com/xeinst/autopost/internal/service"
	"github.com/xeinst/autopost/internal/transfer"
)

// MonitorJob polls each active Reddit target for new posts matching its
// keywords and drafts a reply for every unseen match. Drafts land in pending
// review; nothing is published from here.
type MonitorJob struct {
	bc     *config.BotConfig
	reddit *platform.RedditClient
	gen    service.GeneratorService
	ds     service.DraftService
	dr     repository.DraftRepository
}

func NewMonitorJob(
	bc *config.BotConfig,
	reddit *platform.RedditClient,
	gen service.GeneratorService,
	ds service.DraftService,
	dr repository.DraftRepository) *MonitorJob {
	return &MonitorJob{
		bc:     bc,
		reddit: reddit,
		gen:    gen,
		ds:     ds,
		dr:     dr,
	}
}

func (j *MonitorJob) Run() {
	ctx := context.Background()

	for _, target := range j.bc.Targets {
		if !target.IsActive || target.Platform != models.PlatformReddit || len(target.Keywords) == 0 {
			continue
		}

		posts, err := j.reddit.SearchNew(ctx, target.Target, target.Keywords, 25)
		if err != nil {
			slog.Error("listing scan failed", "target", target.Target, "err", err)
			continue
		}

		for _, post := range posts {
			seen, err := j.dr.ExistsBySource(ctx, models.PlatformReddit, post.ID)
			if err != nil {
				slog.Error("source lookup failed", "source_ref", post.ID, "err", err)
				continue
			}
			if seen {
				continue
			}

			body, err := j.gen.Generate(ctx, replyPrompt(target, post), post.Title+"\n\n"+post.Body)
			if err != nil {
				// no draft without a generated body; the post stays
				// unseen and the next run tries again
				slog.Error("reply generation failed", "source_ref", post.ID, "err", err)
				continue
			}

			draft, err := j.ds.Create(ctx, &transfer.DraftCreation{
				Platform:    models.PlatformReddit,
				Target:      target.Target,
				Kind:        models.DraftKindComment,
				Body:        body,
				ParentRef:   post.ID,
				ParentFlair: post.Flair,
				SourceRef:   post.ID,
			})
			if err != nil {
				slog.Error("draft creation failed", "source_ref", post.ID, "err", err)
				continue
			}
			slog.Info("reply drafted", "draft_id", draft.ID, "target", target.Target, "status", draft.Status)
		}
	}
}

func replyPrompt(target config.TargetPolicy, post platform.SourcePost) string {
	return fmt.Sprintf(
		"Write a short, helpful reply to this r/%s post. Be specific to the post, avoid marketing language, and do not include links.\n\nTitle: %s",
		target.Target, post.Title)
}
