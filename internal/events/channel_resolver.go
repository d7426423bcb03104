package events

import (
	"fmt"

	"collaboraid-sync/internal/domain"
)

const SendChannel = "channel:messages:send"

// UserChannel is the per-user inbox channel the relay fans messages out to.
func UserChannel(id domain.UserID) string {
	return fmt.Sprintf("channel:user:%s", id)
}
