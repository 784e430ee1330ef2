package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"session-auth/internal/model"
	"session-auth/internal/repository"
	"session-auth/internal/session"
)

func profilePNG(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}

func TestUpdateNicknameReissuesAccessToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pair := h.join(t, "student@example.com")

	resp, err := h.profile.UpdateNickname(ctx, principalOf(pair), "  renamed1 ")
	require.NoError(t, err)
	require.Equal(t, "renamed1", resp.User.Nickname)
	require.NotEqual(t, pair.AccessToken, resp.AccessToken)

	claims, err := h.codec.Decode(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "renamed1", claims.Nickname)

	// The old access token is superseded; the refresh binding is untouched.
	require.Equal(t, resp.AccessToken, h.bound(t, pair.User.ID, session.KindAccess))
	require.Equal(t, pair.RefreshToken, h.bound(t, pair.User.ID, session.KindRefresh))
}

func TestUpdateNicknameRejections(t *testing.T) {
	h := newHarness(t)
	pair := h.join(t, "student@example.com")

	_, err := h.profile.UpdateNickname(context.Background(), principalOf(pair), "theBadWord")
	require.ErrorIs(t, err, model.ErrNicknameRejected)

	_, err = h.profile.UpdateNickname(context.Background(), principalOf(pair), "x")
	require.ErrorIs(t, err, model.ErrInvalidInput)

	account, err := h.repo.FindByID(context.Background(), pair.User.ID)
	require.NoError(t, err)
	require.Equal(t, "student1", account.Nickname)
}

func TestUpdateProfileImageStoresUploadedURL(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pair := h.join(t, "student@example.com")
	data := profilePNG(t)

	isProfileKey := mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "profiles/1/") && strings.HasSuffix(key, ".png")
	})
	h.uploader.On("Upload", mock.Anything, isProfileKey, "image/png", data).
		Return("https://cdn.test/profiles/1/a.png", nil).Once()

	resp, err := h.profile.UpdateProfileImage(ctx, principalOf(pair), data)
	require.NoError(t, err)
	require.NotNil(t, resp.User.ProfileImage)
	require.Equal(t, "https://cdn.test/profiles/1/a.png", *resp.User.ProfileImage)
	require.Equal(t, resp.AccessToken, h.bound(t, pair.User.ID, session.KindAccess))

	h.uploader.AssertExpectations(t)
}

func TestUpdateProfileImageRejectsNonImage(t *testing.T) {
	h := newHarness(t)
	pair := h.join(t, "student@example.com")

	_, err := h.profile.UpdateProfileImage(context.Background(), principalOf(pair), []byte("#!/bin/sh\necho hi\n"))
	require.ErrorIs(t, err, model.ErrImageRejected)

	h.uploader.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateProfileImageUploadFailure(t *testing.T) {
	h := newHarness(t)
	pair := h.join(t, "student@example.com")
	h.uploader.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("disk full")).Once()

	_, err := h.profile.UpdateProfileImage(context.Background(), principalOf(pair), profilePNG(t))
	require.Error(t, err)

	account, err := h.repo.FindByID(context.Background(), pair.User.ID)
	require.NoError(t, err)
	require.Nil(t, account.ProfileImage)
}

func TestUpdateProfileImageUnknownAccount(t *testing.T) {
	h := newHarness(t)
	ghost := model.Principal{UserID: 404, Nickname: "ghost1"}

	_, err := h.profile.UpdateProfileImage(context.Background(), ghost, profilePNG(t))
	require.ErrorIs(t, err, model.ErrUserNotFound)

	h.uploader.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// brokenImageWrites fails the account update after the upload succeeded.
type brokenImageWrites struct {
	*repository.MemoryUserRepository
}

func (brokenImageWrites) UpdateProfileImage(context.Context, int64, string) error {
	return fmt.Errorf("update profile image: %w: %w", model.ErrUpstreamUnavailable, context.DeadlineExceeded)
}

func TestUpdateProfileImageRemovesUploadWhenAccountUpdateFails(t *testing.T) {
	h := newHarness(t, withAccountStore(func(repo *repository.MemoryUserRepository) AccountStore {
		return brokenImageWrites{MemoryUserRepository: repo}
	}))
	pair := h.join(t, "student@example.com")

	h.uploader.On("Upload", mock.Anything, mock.Anything, "image/png", mock.Anything).
		Return("https://cdn.test/x.png", nil).Once()
	h.uploader.On("Remove", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "profiles/1/")
	})).Return(nil).Once()

	_, err := h.profile.UpdateProfileImage(context.Background(), principalOf(pair), profilePNG(t))
	require.ErrorIs(t, err, model.ErrUpstreamUnavailable)

	h.uploader.AssertExpectations(t)
}

func TestUpdateProfileImageRemovesReplacedImage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pair := h.join(t, "student@example.com")
	data := profilePNG(t)

	h.uploader.On("Upload", mock.Anything, mock.Anything, "image/png", data).
		Return("https://cdn.test/profiles/1/first.png", nil).Once()
	first, err := h.profile.UpdateProfileImage(ctx, principalOf(pair), data)
	require.NoError(t, err)
	h.uploader.AssertNotCalled(t, "Remove", mock.Anything, mock.Anything)

	h.uploader.On("Upload", mock.Anything, mock.Anything, "image/png", data).
		Return("https://cdn.test/profiles/1/second.png", nil).Once()
	h.uploader.On("KeyFor", "https://cdn.test/profiles/1/first.png").
		Return("profiles/1/first.png", true).Once()
	h.uploader.On("Remove", mock.Anything, "profiles/1/first.png").
		Return(errors.New("bucket unavailable")).Once()

	second, err := h.profile.UpdateProfileImage(ctx, model.Principal{UserID: first.User.ID}, data)
	require.NoError(t, err, "a failed cleanup must not fail the update")
	require.Equal(t, "https://cdn.test/profiles/1/second.png", *second.User.ProfileImage)

	h.uploader.AssertExpectations(t)
	h.uploader.AssertNumberOfCalls(t, "Remove", 1)
}

func TestUpdateProfileImageKeepsForeignImage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pair := h.join(t, "student@example.com")
	require.NoError(t, h.repo.UpdateProfileImage(ctx, pair.User.ID, "https://phinf.pstatic.net/avatar.png"))

	h.uploader.On("Upload", mock.Anything, mock.Anything, "image/png", mock.Anything).
		Return("https://cdn.test/profiles/1/new.png", nil).Once()
	h.uploader.On("KeyFor", "https://phinf.pstatic.net/avatar.png").Return("", false).Once()

	_, err := h.profile.UpdateProfileImage(ctx, principalOf(pair), profilePNG(t))
	require.NoError(t, err)

	h.uploader.AssertExpectations(t)
	h.uploader.AssertNotCalled(t, "Remove", mock.Anything, mock.Anything)
}

func TestDeleteAccountRevokesSessionsAndHidesProfile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pair := h.join(t, "student@example.com")

	public, err := h.profile.PublicProfile(ctx, pair.User.ID)
	require.NoError(t, err)
	require.Equal(t, "student1", public.Nickname)

	require.NoError(t, h.profile.DeleteAccount(ctx, principalOf(pair)))
	require.Empty(t, h.bound(t, pair.User.ID, session.KindAccess))
	require.Empty(t, h.bound(t, pair.User.ID, session.KindRefresh))

	account, err := h.repo.FindByID(ctx, pair.User.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusDeleted, account.Status)

	_, err = h.profile.PublicProfile(ctx, pair.User.ID)
	require.ErrorIs(t, err, model.ErrUserNotFound)

	_, err = h.auth.ForceLogin(ctx, model.LoginRequest{Email: "student@example.com", Password: "s3cret!pw"})
	require.ErrorIs(t, err, model.ErrAccountInactive)
}
