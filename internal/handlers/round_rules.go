package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"speedgolf/internal/models"
)

var errInvalidRoundID = errors.New("roundId must be a 24 character hex id")

// missingRoundFields lists every round field absent from keys, in allow-list
// order. Presence is what counts, so zero values are accepted.
func missingRoundFields(keys map[string]json.RawMessage) []string {
	var missing []string
	for _, name := range models.RoundFieldNames {
		if _, ok := keys[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// illegalRoundFields lists the keys outside the allow-list, sorted.
func illegalRoundFields(keys map[string]json.RawMessage) []string {
	var illegal []string
	for name := range keys {
		if !models.IsRoundField(name) {
			illegal = append(illegal, name)
		}
	}
	sort.Strings(illegal)
	return illegal
}

func missingFieldsMessage(missing []string) string {
	return fmt.Sprintf("Round not added to database. Body must contain all %d required fields: %s. Missing: %s.",
		len(models.RoundFieldNames),
		strings.Join(models.RoundFieldNames, ", "),
		strings.Join(missing, ", "))
}

func illegalFieldsMessage(illegal []string) string {
	return fmt.Sprintf("Round not updated. Invalid props: %s. Only the following props are allowed: %s.",
		strings.Join(illegal, ", "),
		strings.Join(models.RoundFieldNames, ", "))
}

func parseRoundID(raw string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(raw))
	if err != nil {
		return primitive.NilObjectID, errInvalidRoundID
	}
	return id, nil
}
