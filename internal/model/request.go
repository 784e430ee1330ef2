package model

type JoinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Nickname string `json:"nickname"`
	// ProfileImage is filled from the multipart form, never from JSON.
	ProfileImage []byte `json:"-"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	AccessToken string `json:"access_token"`
}

type ValidateTokenRequest struct {
	Token string `json:"token"`
}

type ValidateTokenResponse struct {
	Valid  bool   `json:"valid"`
	Status string `json:"status"`
}

type LinkRequest struct {
	LinkToken string `json:"link_token"`
}

type NicknameUpdateRequest struct {
	Nickname string `json:"nickname"`
}

type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type ProfileUpdateResponse struct {
	AccessToken string      `json:"access_token"`
	User        AccountInfo `json:"user"`
}

type MeResponse struct {
	Principal Principal   `json:"principal"`
	Account   AccountInfo `json:"account"`
}
