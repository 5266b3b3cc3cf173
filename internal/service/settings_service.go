package service

import (
	"context"

	"github.com/xeinst/autopost/internal/models"
	"github.com/xeinst/autopost/internal/repository"
)

// SettingsService exposes the operator kill switch. When enabled the publish
// pipeline skips every attempt until it is turned off again.
type SettingsService interface {
	KillSwitch(ctx context.Context) (bool, error)
	SetKillSwitch(ctx context.Context, enabled bool) error
}

type settingsService struct {
	sr repository.SettingsRepository
}

func NewSettingsService(sr repository.SettingsRepository) SettingsService {
	return &settingsService{sr: sr}
}

func (s *settingsService) KillSwitch(ctx context.Context) (bool, error) {
	value, ok, err := s.sr.Get(ctx, models.SettingKillSwitch)
	if err != nil {
		return false, err
	}
	return ok && value == "true", nil
}

func (s *settingsService) SetKillSwitch(ctx context.Context, enabled bool) error {
	value := "false"
	if enabled {
		value = "true"
	}
	return s.sr.Set(ctx, models.SettingKillSwitch, value)
}
