package messaging

import "time"

// Topics carried by the broker
const (
	TopicAdminMessage = "admin_msg"
	TopicCryptoCheck  = "crypto_check"
	TopicExpireCheck  = "expire_check"
	TopicUserFollowUp = "noti_user"
)

// AdminMessage is a text to broadcast to every admin
type AdminMessage struct {
	Text string `json:"text"`
}

// ExpireCheck asks for a one-shot expiry check of an unpaid booking
type ExpireCheck struct {
	BookingID int64     `json:"booking_id"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// UserFollowUp asks for the delayed follow-up messages after a paid booking
type UserFollowUp struct {
	UserID int64 `json:"user_id"`
}
