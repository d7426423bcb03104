package domain

// Participant is a user as seen by the messaging client.
type Participant struct {
	ID     UserID `json:"id"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// Fill copies fields that are empty on p from other. Fields already set are
// never overwritten.
func (p Participant) Fill(other Participant) (Participant, bool) {
	changed := false
	if p.Name == "" && other.Name != "" {
		p.Name = other.Name
		changed = true
	}
	if p.Email == "" && other.Email != "" {
		p.Email = other.Email
		changed = true
	}
	if p.Role == "" && other.Role != "" {
		p.Role = other.Role
		changed = true
	}
	if p.Avatar == "" && other.Avatar != "" {
		p.Avatar = other.Avatar
		changed = true
	}
	return p, changed
}

func (p Participant) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return "user " + p.ID.String()
}
