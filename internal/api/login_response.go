package api

// LoginResponse is the reply to a login attempt. The token is filled in by
// the HTTP layer once the credentials check succeeds.
type LoginResponse struct {
	Success  bool   `json:"success"`
	Token    string `json:"token,omitempty"`
	Error    string `json:"err,omitempty"`
	UserID   string `json:"userId,omitempty"`
	Verified bool   `json:"verified"`
}

// SignupResponse carries the id of the created user.
type SignupResponse struct {
	InsertedID string `json:"inserted_id"`
}
