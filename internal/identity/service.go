package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/squadspace/backend/internal/livesync"
	"gorm.io/gorm"
)

// ErrInvalidProfile indicates the supplied identity had no usable identifier.
var ErrInvalidProfile = errors.New("identity: invalid profile")

// ServiceConfig describes the dependencies required for profile resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service manages user profiles and caches lookups for join payload
// assembly.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	cache sync.Map
}

// NewService constructs the profile service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("identity: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, now: clock}, nil
}

// Ensure creates the profile when the user id has not been seen before and
// returns the stored profile either way.
func (s *Service) Ensure(ctx context.Context, userID, username string) (Profile, error) {
	userID = normalize(userID)
	if userID == "" {
		return Profile{}, ErrInvalidProfile
	}

	var profile Profile
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		profile = Profile{
			UserID:     userID,
			Username:   normalize(username),
			LastSeenAt: s.now(),
		}
		if profile.Username == "" {
			profile.Username = userID
		}
		if err := s.db.WithContext(ctx).Create(&profile).Error; err != nil {
			return Profile{}, fmt.Errorf("identity: create profile: %w", err)
		}
		s.cache.Store(userID, profile)
		return profile, nil
	}
	if err != nil {
		return Profile{}, fmt.Errorf("identity: load profile: %w", err)
	}
	s.cache.Store(userID, profile)
	return profile, nil
}

// Get returns the profile for the user id.
func (s *Service) Get(ctx context.Context, userID string) (Profile, error) {
	if cached, ok := s.cache.Load(userID); ok {
		if profile, ok := cached.(Profile); ok {
			return profile, nil
		}
	}

	var profile Profile
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, fmt.Errorf("identity: %s: %w", userID, livesync.ErrNotFound)
	}
	if err != nil {
		return Profile{}, fmt.Errorf("identity: load profile: %w", err)
	}
	s.cache.Store(userID, profile)
	return profile, nil
}

// GetMany returns profiles keyed by user id for join payload assembly.
// Unknown ids are simply absent from the result.
func (s *Service) GetMany(ctx context.Context, userIDs []string) (map[string]Profile, error) {
	result := make(map[string]Profile, len(userIDs))
	var missing []string
	for _, userID := range userIDs {
		if cached, ok := s.cache.Load(userID); ok {
			if profile, ok := cached.(Profile); ok {
				result[userID] = profile
				continue
			}
		}
		missing = append(missing, userID)
	}
	if len(missing) == 0 {
		return result, nil
	}

	var profiles []Profile
	if err := s.db.WithContext(ctx).Where("user_id IN ?", missing).Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("identity: load profiles: %w", err)
	}
	for _, profile := range profiles {
		result[profile.UserID] = profile
		s.cache.Store(profile.UserID, profile)
	}
	return result, nil
}

// UpdateStatus sets the short presence line shown next to the user's name.
func (s *Service) UpdateStatus(ctx context.Context, userID, status string) error {
	userID = normalize(userID)
	if userID == "" {
		return ErrInvalidProfile
	}
	err := s.db.WithContext(ctx).Model(&Profile{}).
		Where("user_id = ?", userID).
		Update("status", normalize(status)).Error
	if err != nil {
		return fmt.Errorf("identity: update status: %w", err)
	}
	s.cache.Delete(userID)
	return nil
}
