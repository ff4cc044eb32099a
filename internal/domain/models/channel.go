package models

import "time"

// Subscription is a directed subscriber -> channel edge. Both ends reference users.
type Subscription struct {
	SubscriberID string
	ChannelID    string
	CreatedAt    time.Time
}

// ChannelProfile is a user as seen on their channel page, with subscription counts
// computed from the Subscription relation. It carries no contact or credential
// fields since anonymous viewers can read it.
type ChannelProfile struct {
	ID                        string    `json:"id"`
	Username                  string    `json:"username"`
	FullName                  string    `json:"fullName"`
	AvatarURL                 string    `json:"avatarUrl"`
	CoverImageURL             string    `json:"coverImageUrl,omitempty"`
	SubscriberCount           int64     `json:"subscriberCount"`
	ChannelsSubscribedToCount int64     `json:"channelsSubscribedToCount"`
	IsSubscribed              bool      `json:"isSubscribed"`
	CreatedAt                 time.Time `json:"createdAt"`
}
