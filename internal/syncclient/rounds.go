package syncclient

import (
	"context"
	"fmt"
	"net/http"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"speedgolf/internal/models"
)

const newRoundKey = "round:new"

func roundKey(id primitive.ObjectID) string {
	return "round:" + id.Hex()
}

// AddRound logs a new round. The round becomes visible only after the server
// stored it and the refreshed round list was committed locally.
func (c *Client) AddRound(ctx context.Context, fields models.RoundFields) (string, error) {
	const failure = "New Round could not be logged. "

	session, err := c.currentSession()
	if err != nil {
		return failure + reason(err), err
	}
	done, err := c.begin(newRoundKey)
	if err != nil {
		return failure + reason(err), err
	}
	defer done()
	since := c.generation()

	var created createRoundResponse
	err = c.do(ctx, call{
		op:         "add round",
		method:     http.MethodPost,
		path:       "/rounds/{userId}",
		pathParams: map[string]string{"userId": session.AccountID},
		token:      session.Token,
		body:       fields,
		result:     &created,
	})
	if err != nil {
		return failure + reason(err), err
	}

	rounds, err := c.fetchRounds(ctx, session)
	if err != nil {
		return failure + reason(err), err
	}

	err = c.commitOrReconcile(ctx, session, since, func(user *models.User, _ *State) {
		user.Rounds = rounds
		user.RoundsLogged = created.RoundsLogged
	}, func(_ *models.User, state *State) {
		state.RoundAdded = true
	})
	if err != nil {
		return failure + reason(err), err
	}

	c.logger.Info().Str("accountId", session.AccountID).Str("roundId", created.Round.ID.Hex()).Msg("round logged")
	return "New round logged.", nil
}

// UpdateRound replaces the editable fields of the round with id.
func (c *Client) UpdateRound(ctx context.Context, id primitive.ObjectID, fields models.RoundFields) (string, error) {
	const failure = "No rounds was updated. "

	session, err := c.currentSession()
	if err != nil {
		return failure + reason(err), err
	}
	since := c.generation()
	if c.State().User.RoundIndex(id) < 0 {
		err := fmt.Errorf("round %s: %w", id.Hex(), ErrNotFound)
		return failure + "Round not found.", err
	}
	done, err := c.begin(roundKey(id))
	if err != nil {
		return failure + reason(err), err
	}
	defer done()

	var updated updateRoundResponse
	err = c.do(ctx, call{
		op:         "update round",
		method:     http.MethodPut,
		path:       "/rounds/{roundId}",
		pathParams: map[string]string{"roundId": id.Hex()},
		token:      session.Token,
		body:       fields,
		result:     &updated,
	})
	if err != nil {
		return failure + reason(err), err
	}

	idx := -1
	err = c.commitOrReconcile(ctx, session, since, func(user *models.User, _ *State) {
		if i := user.RoundIndex(id); i >= 0 {
			user.Rounds[i] = updated.Round
		}
	}, func(user *models.User, _ *State) {
		idx = user.RoundIndex(id)
	})
	if err != nil {
		return failure + reason(err), err
	}

	c.logger.Info().Str("accountId", session.AccountID).Str("roundId", id.Hex()).Msg("round updated")
	return fmt.Sprintf("Round %d updated.", idx), nil
}

// DeleteRound removes the round with id. A round the server does not know is
// a terminal failure and leaves the local state untouched.
func (c *Client) DeleteRound(ctx context.Context, id primitive.ObjectID) (string, error) {
	const failure = "Error: round not deleted"

	session, err := c.currentSession()
	if err != nil {
		return failure, err
	}
	done, err := c.begin(roundKey(id))
	if err != nil {
		return failure, err
	}
	defer done()
	since := c.generation()

	var deleted deleteRoundResponse
	err = c.do(ctx, call{
		op:         "delete round",
		method:     http.MethodDelete,
		path:       "/rounds/{roundId}",
		pathParams: map[string]string{"roundId": id.Hex()},
		token:      session.Token,
		result:     &deleted,
	})
	if err != nil {
		return failure, err
	}

	err = c.commitOrReconcile(ctx, session, since, func(user *models.User, state *State) {
		if idx := user.RoundIndex(id); idx >= 0 {
			user.Rounds = append(user.Rounds[:idx:idx], user.Rounds[idx+1:]...)
			if state.SelectedRound == idx {
				state.SelectedRound = -1
			} else if state.SelectedRound > idx {
				state.SelectedRound--
			}
		}
		user.RoundsLogged = deleted.RoundsLogged
	}, nil)
	if err != nil {
		return failure, err
	}

	c.logger.Info().Str("accountId", session.AccountID).Str("roundId", id.Hex()).Msg("round deleted")
	return fmt.Sprintf("round id=%s deleted successfully", id.Hex()), nil
}
