package models

import (
	"strconv"
	"strings"
	"time"
)

type User struct {
	ID    int64  `json:"id,string"`
	Email string `json:"email,omitempty"`
}

// UID is the user id as it is stored inside documents.
func (u User) UID() string {
	return strconv.FormatInt(u.ID, 10)
}

// DisplayName is the local part of the email, the name shown next to messages.
func (u User) DisplayName() string {
	name, _, _ := strings.Cut(u.Email, "@")
	if name == "" {
		return "Anonymous"
	}
	return name
}

// Channel is stored in the "servers" collection.
type Channel struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy"`
}

type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	CreatedAt time.Time `json:"createdAt"`
}

const (
	ChannelCollection     = "servers"
	PreferencesCollection = "userSettings"
)

// MessageCollection is the collection holding the messages of one channel.
func MessageCollection(channelID string) string {
	return "channels/" + channelID + "/messages"
}
