package syncclient

import "speedgolf/internal/models"

// AccountDataPatch changes credentials. Nil fields keep the current value; a
// nil or empty Password keeps the current password.
type AccountDataPatch struct {
	ID               *string
	Password         *string
	SecurityQuestion *string
	SecurityAnswer   *string
}

type IdentityDataPatch struct {
	DisplayName *string
	ProfilePic  *string
}

type SpeedgolfDataPatch struct {
	Bio          *string
	HomeCourse   *string
	PersonalBest *models.PersonalBest
	Clubs        *[]string
	ClubComments *string
}

// AccountUpdate edits profile sections field by field. Nil sections are not
// sent.
type AccountUpdate struct {
	AccountData   *AccountDataPatch
	IdentityData  *IdentityDataPatch
	SpeedgolfData *SpeedgolfDataPatch
}

func (u AccountUpdate) isEmpty() bool {
	return u.AccountData == nil && u.IdentityData == nil && u.SpeedgolfData == nil
}

func (p AccountDataPatch) merge(current models.AccountData) models.AccountData {
	out := current
	if p.ID != nil {
		out.ID = *p.ID
	}
	if p.Password != nil && *p.Password != "" {
		out.Password = *p.Password
	}
	if p.SecurityQuestion != nil {
		out.SecurityQuestion = *p.SecurityQuestion
	}
	if p.SecurityAnswer != nil {
		out.SecurityAnswer = *p.SecurityAnswer
	}
	return out
}

func (p IdentityDataPatch) merge(current models.IdentityData) models.IdentityData {
	out := current
	if p.DisplayName != nil {
		out.DisplayName = *p.DisplayName
	}
	if p.ProfilePic != nil {
		out.ProfilePic = *p.ProfilePic
	}
	return out
}

func (p SpeedgolfDataPatch) merge(current models.SpeedgolfData) models.SpeedgolfData {
	out := current
	if current.Clubs != nil {
		out.Clubs = append(models.StringList(nil), current.Clubs...)
	}
	if p.Bio != nil {
		out.Bio = *p.Bio
	}
	if p.HomeCourse != nil {
		out.HomeCourse = *p.HomeCourse
	}
	if p.PersonalBest != nil {
		out.PersonalBest = *p.PersonalBest
	}
	if p.Clubs != nil {
		out.Clubs = append(models.StringList{}, *p.Clubs...)
	}
	if p.ClubComments != nil {
		out.ClubComments = *p.ClubComments
	}
	return out
}

// body merges the update onto current and returns the whole sections to send.
func (u AccountUpdate) body(current models.User) accountUpdateBody {
	var body accountUpdateBody
	if u.AccountData != nil {
		account := u.AccountData.merge(current.AccountData)
		body.AccountData = &account
	}
	if u.IdentityData != nil {
		identity := u.IdentityData.merge(current.IdentityData)
		body.IdentityData = &identity
	}
	if u.SpeedgolfData != nil {
		sg := u.SpeedgolfData.merge(current.SpeedgolfData)
		body.SpeedgolfData = &sg
	}
	return body
}
