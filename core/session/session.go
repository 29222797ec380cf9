package session

// Projection is the minimal account snapshot kept server-side for a logged-in
// user. It is overwritten from storage on every authenticated request.
type Projection struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	AvatarURL string `json:"avatar_url"`
	XP        int    `json:"xp"`
}

// Session is the server-side record keyed by the opaque identifier stored in
// the client cookie. Flash fields are read once then cleared.
type Session struct {
	ID       string      `json:"id"`
	User     *Projection `json:"user,omitempty"`
	Remember bool        `json:"remember,omitempty"`

	ErrorMessage   string `json:"error_message,omitempty"`
	SuccessMessage string `json:"success_message,omitempty"`
}

// Authenticated is nil-safe: a missing session authorizes nothing.
func (s *Session) Authenticated() bool {
	return s != nil && s.User != nil
}

// HasRole tests the stored role for exact match; a missing/anonymous session
// matches no role.
func (s *Session) HasRole(role string) bool {
	return s.Authenticated() && s.User.Role == role
}

func (s *Session) HasFlash() bool {
	return s != nil && (s.ErrorMessage != "" || s.SuccessMessage != "")
}
