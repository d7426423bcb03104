package httpdto

import (
	"encoding/json"
	"fmt"

	"collaboraid-sync/internal/domain"
)

// UserDTO is the backend's public user representation.
type UserDTO struct {
	ID             json.RawMessage `json:"id"`
	Username       string          `json:"username"`
	Email          string          `json:"email"`
	Role           string          `json:"role"`
	ProfilePicture string          `json:"profilePicture,omitempty"`
}

func (u UserDTO) Participant() (domain.Participant, error) {
	s, err := rawString(u.ID)
	if err != nil {
		return domain.Participant{}, err
	}
	id, err := domain.ParseUserID(s)
	if err != nil || id <= 0 {
		return domain.Participant{}, fmt.Errorf("invalid user id %q", s)
	}
	return domain.Participant{
		ID:     id,
		Name:   u.Username,
		Email:  u.Email,
		Role:   u.Role,
		Avatar: u.ProfilePicture,
	}, nil
}
