package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"speedgolf/internal/metrics"
	"speedgolf/internal/middleware"
	"speedgolf/internal/models"
	"speedgolf/internal/store"
)

// CreateRound appends a round to the user named by :userId. All round fields
// must be present in the body.
func CreateRound(st store.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "ROUND"
		defer handlePanic(c, route)

		userID := c.Param("userId")
		keys, err := readJSONObject(c)
		if err != nil {
			metrics.RecordRoundMutation("create", false)
			respondWithError(c, http.StatusBadRequest, codeValidation, route, "Round not added to database. "+err.Error())
			return
		}
		if missing := missingRoundFields(keys); len(missing) > 0 {
			metrics.RecordRoundMutation("create", false)
			respondWithError(c, http.StatusBadRequest, codeValidation, route, missingFieldsMessage(missing))
			return
		}

		var fields models.RoundFields
		if err := c.ShouldBindJSON(&fields); err != nil {
			metrics.RecordRoundMutation("create", false)
			respondValidationError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		round, count, err := st.AppendRound(ctx, userID, fields)
		if err != nil {
			metrics.RecordRoundMutation("create", false)
			respondStoreError(c, route, err, http.StatusBadRequest,
				fmt.Sprintf("Round not added to database. User '%s' does not exist.", userID))
			return
		}

		metrics.RecordRoundMutation("create", true)
		log.Info().Str("accountId", userID).Str("roundId", round.ID.Hex()).Int("roundsLogged", count).Msg("[ROUND] created")
		c.JSON(http.StatusCreated, gin.H{
			"message":      "Round successfully added to database.",
			"round":        round,
			"roundsLogged": count,
		})
	}
}

// ListRounds returns the rounds of :userId as a JSON array.
func ListRounds(st store.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "ROUND"
		defer handlePanic(c, route)

		ctx, cancel := requestContext(c)
		defer cancel()

		rounds, err := st.ListRounds(ctx, c.Param("userId"))
		if err != nil {
			respondStoreError(c, route, err, http.StatusBadRequest,
				"No user account with specified userId was found in database.")
			return
		}
		c.JSON(http.StatusOK, rounds)
	}
}

// UpdateRound patches the session owner's round :roundId. Any key outside the
// round field allow-list rejects the whole request.
func UpdateRound(st store.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "ROUND"
		defer handlePanic(c, route)

		roundID, err := parseRoundID(c.Param("roundId"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, codeValidation, route, err.Error())
			return
		}

		keys, err := readJSONObject(c)
		if err != nil {
			metrics.RecordRoundMutation("update", false)
			respondWithError(c, http.StatusBadRequest, codeValidation, route, "Round not updated. "+err.Error())
			return
		}
		if illegal := illegalRoundFields(keys); len(illegal) > 0 {
			metrics.RecordRoundMutation("update", false)
			respondWithError(c, http.StatusBadRequest, codeValidation, route, illegalFieldsMessage(illegal))
			return
		}

		var patch models.RoundPatch
		if err := c.ShouldBindJSON(&patch); err != nil {
			metrics.RecordRoundMutation("update", false)
			respondValidationError(c, route, err)
			return
		}
		if patch.IsEmpty() {
			metrics.RecordRoundMutation("update", false)
			respondWithError(c, http.StatusBadRequest, codeValidation, route, "Round not updated. No fields to update.")
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		accountID := middleware.AccountID(c)
		round, err := st.UpdateRound(ctx, accountID, roundID, patch)
		if err != nil {
			metrics.RecordRoundMutation("update", false)
			respondStoreError(c, route, err, http.StatusNotFound,
				"Round not updated. No round with that id exists for this account.")
			return
		}

		metrics.RecordRoundMutation("update", true)
		log.Info().Str("accountId", accountID).Str("roundId", roundID.Hex()).Msg("[ROUND] updated")
		c.JSON(http.StatusOK, gin.H{
			"message": "Round successfully updated.",
			"round":   round,
		})
	}
}

// DeleteRound removes the session owner's round :roundId.
func DeleteRound(st store.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "ROUND"
		defer handlePanic(c, route)

		roundID, err := parseRoundID(c.Param("roundId"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, codeValidation, route, err.Error())
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		accountID := middleware.AccountID(c)
		count, err := st.DeleteRound(ctx, accountID, roundID)
		if err != nil {
			metrics.RecordRoundMutation("delete", false)
			if errors.Is(err, store.ErrNotFound) {
				respondWithError(c, http.StatusNotFound, codeNotFound, route,
					fmt.Sprintf("Round %s not deleted. No round with that id exists for this account.", roundID.Hex()))
				return
			}
			respondStoreError(c, route, err, http.StatusNotFound, "round not found")
			return
		}

		metrics.RecordRoundMutation("delete", true)
		log.Info().Str("accountId", accountID).Str("roundId", roundID.Hex()).Int("roundsLogged", count).Msg("[ROUND] deleted")
		c.JSON(http.StatusOK, gin.H{
			"message":      "Round successfully deleted.",
			"roundsLogged": count,
		})
	}
}
