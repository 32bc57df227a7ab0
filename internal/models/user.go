package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AccountData holds credentials. Password is the stored bcrypt hash and is only
// present for locally-owned accounts.
type AccountData struct {
	ID               string `bson:"id" json:"id"`
	Password         string `bson:"password,omitempty" json:"password,omitempty"`
	SecurityQuestion string `bson:"securityQuestion,omitempty" json:"securityQuestion,omitempty"`
	SecurityAnswer   string `bson:"securityAnswer,omitempty" json:"securityAnswer,omitempty"`
}

// LocallyOwned reports whether the account authenticates with a local password
// rather than a third-party provider.
func (a AccountData) LocallyOwned() bool {
	return a.Password != ""
}

// IdentityData is the public face of the user.
type IdentityData struct {
	DisplayName string `bson:"displayName" json:"displayName"`
	ProfilePic  string `bson:"profilePic" json:"profilePic"`
}

// PersonalBest is the user's best recorded round.
type PersonalBest struct {
	Strokes int    `bson:"strokes,omitempty" json:"strokes,omitempty"`
	Minutes int    `bson:"minutes,omitempty" json:"minutes,omitempty"`
	Seconds int    `bson:"seconds,omitempty" json:"seconds,omitempty"`
	Course  string `bson:"course,omitempty" json:"course,omitempty"`
	Date    string `bson:"date,omitempty" json:"date,omitempty"`
}

// SpeedgolfData is the golf profile of the user.
type SpeedgolfData struct {
	Bio          string       `bson:"bio" json:"bio"`
	HomeCourse   string       `bson:"homeCourse" json:"homeCourse"`
	PersonalBest PersonalBest `bson:"personalBest" json:"personalBest"`
	Clubs        StringList   `bson:"clubs" json:"clubs"`
	ClubComments string       `bson:"clubComments" json:"clubComments"`
}

// User is the persisted document, one per account.
type User struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	AccountData   AccountData        `bson:"accountData" json:"accountData"`
	IdentityData  IdentityData       `bson:"identityData" json:"identityData"`
	SpeedgolfData SpeedgolfData      `bson:"speedgolfData" json:"speedgolfData"`
	Rounds        []Round            `bson:"rounds" json:"rounds"`
	RoundsLogged  int                `bson:"roundsLogged" json:"roundsLogged"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Clone returns a copy that shares no slices with u.
func (u User) Clone() User {
	out := u
	if u.Rounds != nil {
		out.Rounds = make([]Round, len(u.Rounds))
		copy(out.Rounds, u.Rounds)
	}
	if u.SpeedgolfData.Clubs != nil {
		out.SpeedgolfData.Clubs = make(StringList, len(u.SpeedgolfData.Clubs))
		copy(out.SpeedgolfData.Clubs, u.SpeedgolfData.Clubs)
	}
	return out
}

// RoundIndex returns the position of the round with id, or -1.
func (u User) RoundIndex(id primitive.ObjectID) int {
	for i, round := range u.Rounds {
		if round.ID == id {
			return i
		}
	}
	return -1
}
