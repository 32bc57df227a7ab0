package models

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RoundFieldNames is the fixed set of round fields. Every name is required on
// creation and only these names may appear in a partial update.
var RoundFieldNames = []string{"date", "course", "type", "holes", "strokes", "minutes", "seconds", "notes"}

// IsRoundField reports whether name is one of RoundFieldNames.
func IsRoundField(name string) bool {
	for _, field := range RoundFieldNames {
		if field == name {
			return true
		}
	}
	return false
}

// RoundFields holds the user-editable data of a single round.
type RoundFields struct {
	Date    string `bson:"date" json:"date" binding:"required,datetime=2006-01-02"`
	Course  string `bson:"course" json:"course" binding:"required,max=120"`
	Type    string `bson:"type" json:"type" binding:"required,max=40"`
	Holes   int    `bson:"holes" json:"holes" binding:"min=1,max=18"`
	Strokes int    `bson:"strokes" json:"strokes" binding:"min=1,max=999"`
	Minutes int    `bson:"minutes" json:"minutes" binding:"min=0,max=999"`
	Seconds int    `bson:"seconds" json:"seconds" binding:"min=0,max=59"`
	Notes   string `bson:"notes" json:"notes" binding:"max=1000"`
}

// Round is a round embedded in a user document. ID is zero until the server
// has stored it.
type Round struct {
	ID          primitive.ObjectID `bson:"_id" json:"id"`
	RoundFields `bson:",inline"`
}

// RoundPatch is a partial round update. Nil fields are left untouched.
type RoundPatch struct {
	Date    *string `json:"date" binding:"omitnil,datetime=2006-01-02"`
	Course  *string `json:"course" binding:"omitnil,min=1,max=120"`
	Type    *string `json:"type" binding:"omitnil,min=1,max=40"`
	Holes   *int    `json:"holes" binding:"omitnil,min=1,max=18"`
	Strokes *int    `json:"strokes" binding:"omitnil,min=1,max=999"`
	Minutes *int    `json:"minutes" binding:"omitnil,min=0,max=999"`
	Seconds *int    `json:"seconds" binding:"omitnil,min=0,max=59"`
	Notes   *string `json:"notes" binding:"omitnil,max=1000"`
}

// IsEmpty reports whether the patch changes nothing.
func (p RoundPatch) IsEmpty() bool {
	return len(p.Fields()) == 0
}

// Fields returns the set fields keyed by their wire name.
func (p RoundPatch) Fields() map[string]interface{} {
	out := make(map[string]interface{}, len(RoundFieldNames))
	if p.Date != nil {
		out["date"] = *p.Date
	}
	if p.Course != nil {
		out["course"] = *p.Course
	}
	if p.Type != nil {
		out["type"] = *p.Type
	}
	if p.Holes != nil {
		out["holes"] = *p.Holes
	}
	if p.Strokes != nil {
		out["strokes"] = *p.Strokes
	}
	if p.Minutes != nil {
		out["minutes"] = *p.Minutes
	}
	if p.Seconds != nil {
		out["seconds"] = *p.Seconds
	}
	if p.Notes != nil {
		out["notes"] = *p.Notes
	}
	return out
}

// Apply merges the patch into fields in place.
func (p RoundPatch) Apply(fields *RoundFields) {
	if p.Date != nil {
		fields.Date = *p.Date
	}
	if p.Course != nil {
		fields.Course = *p.Course
	}
	if p.Type != nil {
		fields.Type = *p.Type
	}
	if p.Holes != nil {
		fields.Holes = *p.Holes
	}
	if p.Strokes != nil {
		fields.Strokes = *p.Strokes
	}
	if p.Minutes != nil {
		fields.Minutes = *p.Minutes
	}
	if p.Seconds != nil {
		fields.Seconds = *p.Seconds
	}
	if p.Notes != nil {
		fields.Notes = *p.Notes
	}
}

// FormatTime renders minutes and seconds as m:ss.
func (f RoundFields) FormatTime() string {
	return fmt.Sprintf("%d:%02d", f.Minutes, f.Seconds)
}

// SpeedgolfScore renders the derived score-time, e.g. "127:09 (72 in 55:09)".
// It is display only and never stored.
func (f RoundFields) SpeedgolfScore() string {
	return fmt.Sprintf("%d:%02d (%d in %s)", f.Strokes+f.Minutes, f.Seconds, f.Strokes, f.FormatTime())
}
