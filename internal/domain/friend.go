package domain

import "strings"

// FriendRequestStatus is the state of a friend request.
type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "PENDING"
	FriendRequestAccepted FriendRequestStatus = "ACCEPTED"
	FriendRequestRejected FriendRequestStatus = "REJECTED"
)

var friendRequestDescriptions = map[FriendRequestStatus]string{
	FriendRequestPending:  "waiting for a response",
	FriendRequestAccepted: "request accepted",
	FriendRequestRejected: "request rejected",
}

// ParseFriendRequestStatus parses a status case-insensitively. Unknown values fail.
func ParseFriendRequestStatus(raw string) (FriendRequestStatus, error) {
	status := FriendRequestStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := friendRequestDescriptions[status]; !ok {
		return "", ErrUnknownFriendRequestStatus
	}
	return status, nil
}

// Description returns the display string for the status.
func (s FriendRequestStatus) Description() string {
	return friendRequestDescriptions[s]
}
