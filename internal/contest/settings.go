package contest

import (
	"context"
	"fmt"

	"github.com/garnizeh/contest/pkg/models"
	"github.com/garnizeh/contest/pkg/repository"
)

// Platform setting keys.
const (
	SettingPlatformName = "platform_name"
	SettingPlatformLogo = "platform_logo"
	SettingFooterText   = "footer_text"
)

var settingKeys = map[string]bool{SettingPlatformName: true, SettingPlatformLogo: true, SettingFooterText: true}

// Settings loads a snapshot of every platform setting. Callers load it once
// per request and read from the snapshot.
func (s *Service) Settings(ctx context.Context) (models.Settings, error) {
	return s.store.GetSettings(ctx)
}

// UpdateSettings writes the given keys in one transaction. Unknown keys are
// refused.
func (s *Service) UpdateSettings(ctx context.Context, values map[string]string) (models.Settings, error) {
	for k := range values {
		if !settingKeys[k] {
			return nil, fmt.Errorf("%w: unknown setting %q", ErrInvalidInput, k)
		}
	}
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		for k, v := range values {
			if err := tx.SetSetting(ctx, k, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Settings(ctx)
}

// EnsureDefaults writes defaults for settings that are missing or empty.
func (s *Service) EnsureDefaults(ctx context.Context, defaults map[string]string) error {
	return s.store.InTx(ctx, func(tx repository.Store) error {
		current, err := tx.GetSettings(ctx)
		if err != nil {
			return err
		}
		for k, v := range defaults {
			if current[k] != "" || v == "" {
				continue
			}
			if err := tx.SetSetting(ctx, k, v); err != nil {
				return err
			}
		}
		return nil
	})
}
