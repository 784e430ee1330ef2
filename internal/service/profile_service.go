package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"session-auth/internal/event"
	"session-auth/internal/model"
	"session-auth/internal/util"
)

type ProfileService struct {
	accounts     AccountStore
	issuer       *SessionIssuer
	uploader     Uploader
	filter       NicknameFilter
	bus          event.Bus
	maxImageSize int64
}

func NewProfileService(accounts AccountStore, issuer *SessionIssuer, uploader Uploader, filter NicknameFilter, bus event.Bus, maxImageSize int64) *ProfileService {
	if maxImageSize <= 0 {
		maxImageSize = 1 << 20
	}
	return &ProfileService{
		accounts:     accounts,
		issuer:       issuer,
		uploader:     uploader,
		filter:       filter,
		bus:          bus,
		maxImageSize: maxImageSize,
	}
}

func (s *ProfileService) MaxImageSize() int64 {
	return s.maxImageSize
}

// UpdateNickname stores the nickname and re-mints the access token so the
// claims carry it. The token presented with this request is superseded.
func (s *ProfileService) UpdateNickname(ctx context.Context, principal model.Principal, raw string) (model.ProfileUpdateResponse, error) {
	nickname, err := util.NormalizeNickname(raw)
	if err != nil {
		return model.ProfileUpdateResponse{}, err
	}
	if s.filter != nil && s.filter.Contains(nickname) {
		return model.ProfileUpdateResponse{}, model.ErrNicknameRejected
	}

	if err := s.accounts.UpdateNickname(ctx, principal.UserID, nickname); err != nil {
		return model.ProfileUpdateResponse{}, err
	}
	publish(ctx, s.bus, event.TypeProfileUpdated, principal.UserID, nil, map[string]any{"field": "nickname"})

	return s.reissue(ctx, principal.UserID)
}

// UpdateProfileImage replaces the stored image. The previous object is
// removed only after the account points at the new one.
func (s *ProfileService) UpdateProfileImage(ctx context.Context, principal model.Principal, data []byte) (model.ProfileUpdateResponse, error) {
	account, err := s.accounts.FindByID(ctx, principal.UserID)
	if err != nil {
		return model.ProfileUpdateResponse{}, err
	}
	if account.Status != model.StatusActive {
		return model.ProfileUpdateResponse{}, model.ErrAccountInactive.WithDetails(string(account.Status))
	}

	if _, err := s.AttachImage(ctx, account.ID, data); err != nil {
		return model.ProfileUpdateResponse{}, err
	}
	s.discard(ctx, account.ProfileImage)
	publish(ctx, s.bus, event.TypeProfileUpdated, account.ID, nil, map[string]any{"field": "profile_image"})

	return s.reissue(ctx, account.ID)
}

// CheckImage rejects data that would not be accepted as a profile image.
func (s *ProfileService) CheckImage(data []byte) error {
	_, err := util.DetectImage(data, s.maxImageSize)
	return err
}

// AttachImage uploads data and points the account at it. The upload is
// removed again when the account update fails.
func (s *ProfileService) AttachImage(ctx context.Context, userID int64, data []byte) (string, error) {
	info, err := util.DetectImage(data, s.maxImageSize)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("profiles/%d/%s%s", userID, uuid.NewString(), info.Extension)
	url, err := s.uploader.Upload(ctx, key, info.ContentType, data)
	if err != nil {
		return "", fmt.Errorf("upload profile image: %w", err)
	}

	if err := s.accounts.UpdateProfileImage(ctx, userID, url); err != nil {
		if removeErr := s.uploader.Remove(context.WithoutCancel(ctx), key); removeErr != nil {
			slog.Warn("orphaned profile image", "key", key, "error", removeErr)
		}
		return "", err
	}
	return url, nil
}

// discard removes a replaced image. URLs outside our storage, such as
// provider avatars, are left alone.
func (s *ProfileService) discard(ctx context.Context, previous *string) {
	if previous == nil || *previous == "" {
		return
	}
	key, ok := s.uploader.KeyFor(*previous)
	if !ok {
		return
	}
	if err := s.uploader.Remove(context.WithoutCancel(ctx), key); err != nil {
		slog.Warn("failed to remove replaced profile image", "key", key, "error", err)
	}
}

// DeleteAccount marks the account DELETED and revokes its sessions.
func (s *ProfileService) DeleteAccount(ctx context.Context, principal model.Principal) error {
	if err := s.accounts.UpdateStatus(ctx, principal.UserID, model.StatusDeleted); err != nil {
		return err
	}
	if err := s.issuer.Close(ctx, principal.UserID); err != nil {
		return err
	}
	publish(ctx, s.bus, event.TypeAccountDeleted, principal.UserID, nil, nil)
	return nil
}

// PublicProfile hides accounts that are not ACTIVE.
func (s *ProfileService) PublicProfile(ctx context.Context, userID int64) (model.PublicProfile, error) {
	account, err := s.accounts.FindByID(ctx, userID)
	if err != nil {
		return model.PublicProfile{}, err
	}
	if account.Status != model.StatusActive {
		return model.PublicProfile{}, model.ErrUserNotFound
	}

	return model.PublicProfile{ID: account.ID, Nickname: account.Nickname, ProfileImage: account.ProfileImage}, nil
}

func (s *ProfileService) reissue(ctx context.Context, userID int64) (model.ProfileUpdateResponse, error) {
	account, err := s.accounts.FindByID(ctx, userID)
	if err != nil {
		return model.ProfileUpdateResponse{}, err
	}
	if account.Status != model.StatusActive {
		return model.ProfileUpdateResponse{}, model.ErrAccountInactive.WithDetails(string(account.Status))
	}

	access, err := s.issuer.ReissueAccess(ctx, account)
	if err != nil {
		return model.ProfileUpdateResponse{}, err
	}
	return model.ProfileUpdateResponse{AccessToken: access.Token, User: account.Info()}, nil
}
