package queue

import (
	"github.com/benbjohnson/clock"
	"github.com/hibiken/asynq"
	config "github.com/xeinst/autopost/configs"
	"github.com/xeinst/autopost/internal/platform"
	"github.com/xeinst/autopost/internal/service"
)

type Queue struct {
	ds          service.DraftService
	rl          service.RateLimitService
	ss          service.SettingsService
	pubs        *platform.Publishers
	bc          *config.BotConfig
	clk         clock.Clock
	asynqClient *asynq.Client
}

func NewQueue(
	ds service.DraftService,
	rl service.RateLimitService,
	ss service.SettingsService,
	pubs *platform.Publishers,
	bc *config.BotConfig,
	clk clock.Clock,
	asynqClient *asynq.Client) *Queue {
	return &Queue{
		ds:          ds,
		rl:          rl,
		ss:          ss,
		pubs:        pubs,
		bc:          bc,
		clk:         clk,
		asynqClient: asynqClient,
	}
}

const TaskTypePublishDraft = "publish:draft"

type PublishDraftPayload struct {
	DraftID string `json:"draft_id"`
}
