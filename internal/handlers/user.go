package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"speedgolf/internal/middleware"
	"speedgolf/internal/models"
	"speedgolf/internal/store"
)

var userSections = map[string]struct{}{
	"accountData":   {},
	"identityData":  {},
	"speedgolfData": {},
}

type accountDataRequest struct {
	ID               string `json:"id" binding:"required,max=254"`
	Password         string `json:"password" binding:"max=256"`
	SecurityQuestion string `json:"securityQuestion" binding:"max=256"`
	SecurityAnswer   string `json:"securityAnswer" binding:"max=256"`
}

type createUserRequest struct {
	AccountData   accountDataRequest    `json:"accountData"`
	IdentityData  *models.IdentityData  `json:"identityData"`
	SpeedgolfData *models.SpeedgolfData `json:"speedgolfData"`
}

type updateUserRequest struct {
	AccountData   *accountDataRequest   `json:"accountData"`
	IdentityData  *models.IdentityData  `json:"identityData"`
	SpeedgolfData *models.SpeedgolfData `json:"speedgolfData"`
}

// CreateUser registers a local account under :id.
func CreateUser(st store.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "USER"
		defer handlePanic(c, route)

		var req createUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		accountID := strings.TrimSpace(req.AccountData.ID)
		if accountID != c.Param("id") {
			respondWithError(c, http.StatusBadRequest, codeValidation, route, "accountData.id must match the account in the URL")
			return
		}
		if req.AccountData.Password == "" {
			respondWithError(c, http.StatusBadRequest, codeValidation, route, "accountData.password is required")
			return
		}

		hash, err := hashPassword(req.AccountData.Password)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, codeInternal, route, "password hash failed")
			return
		}

		now := time.Now()
		user := models.User{
			AccountData: models.AccountData{
				ID:               accountID,
				Password:         hash,
				SecurityQuestion: req.AccountData.SecurityQuestion,
				SecurityAnswer:   req.AccountData.SecurityAnswer,
			},
			IdentityData: models.IdentityData{DisplayName: accountID},
			Rounds:       []models.Round{},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if req.IdentityData != nil {
			user.IdentityData = *req.IdentityData
			if strings.TrimSpace(user.IdentityData.DisplayName) == "" {
				user.IdentityData.DisplayName = accountID
			}
		}
		if req.SpeedgolfData != nil {
			user.SpeedgolfData = *req.SpeedgolfData
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		if err := st.CreateUser(ctx, &user); err != nil {
			respondStoreError(c, route, err, http.StatusNotFound, "user not found")
			return
		}

		log.Info().Str("accountId", accountID).Msg("[USER] account created")
		c.JSON(http.StatusCreated, gin.H{"message": fmt.Sprintf("New account created with id %s", accountID)})
	}
}

// GetUser returns the full snapshot to its owner and only the identifier to
// anyone else, which lets clients check whether an account exists.
func GetUser(st store.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "USER"
		defer handlePanic(c, route)

		accountID := c.Param("id")

		ctx, cancel := requestContext(c)
		defer cancel()

		user, err := st.GetUser(ctx, accountID)
		if err != nil {
			respondStoreError(c, route, err, http.StatusNotFound,
				fmt.Sprintf("No user account with id %s was found.", accountID))
			return
		}

		if middleware.AccountID(c) != accountID {
			c.JSON(http.StatusOK, gin.H{"id": user.AccountData.ID})
			return
		}
		c.JSON(http.StatusOK, ownerSnapshot(user))
	}
}

// UpdateUser replaces whole profile sections of the session owner. Changing
// accountData.id renames the account and issues a new token.
func UpdateUser(st store.UserStore, sessions Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "USER"
		defer handlePanic(c, route)

		keys, err := readJSONObject(c)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, codeValidation, route, err.Error())
			return
		}
		if unknown := unknownUserSections(keys); len(unknown) > 0 {
			respondWithError(c, http.StatusBadRequest, codeValidation, route,
				fmt.Sprintf("Only accountData, identityData and speedgolfData may be updated. Invalid props: %s.", strings.Join(unknown, ", ")))
			return
		}

		var req updateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}
		if req.AccountData == nil && req.IdentityData == nil && req.SpeedgolfData == nil {
			respondWithError(c, http.StatusBadRequest, codeValidation, route, "No user data to update.")
			return
		}

		accountID := c.Param("id")

		ctx, cancel := requestContext(c)
		defer cancel()

		current, err := st.GetUser(ctx, accountID)
		if err != nil {
			respondStoreError(c, route, err, http.StatusNotFound,
				fmt.Sprintf("No user account with id %s was found.", accountID))
			return
		}

		update := store.UserUpdate{
			IdentityData:  req.IdentityData,
			SpeedgolfData: req.SpeedgolfData,
		}
		if req.AccountData != nil {
			if !current.AccountData.LocallyOwned() {
				respondWithError(c, http.StatusForbidden, codeForbidden, route, "Account by third party. Nothing to edit!")
				return
			}
			account, err := mergeAccountData(current.AccountData, *req.AccountData)
			if err != nil {
				respondWithError(c, http.StatusInternalServerError, codeInternal, route, "password hash failed")
				return
			}
			update.AccountData = &account
		}

		updated, err := st.UpdateUser(ctx, accountID, update)
		if err != nil {
			respondStoreError(c, route, err, http.StatusNotFound,
				fmt.Sprintf("No user account with id %s was found.", accountID))
			return
		}

		response := gin.H{
			"message": "User data updated.",
			"user":    ownerSnapshot(updated),
		}
		if updated.AccountData.ID != accountID {
			accessToken, err := sessions.start(c, updated.AccountData.ID)
			if err != nil {
				respondWithError(c, http.StatusInternalServerError, codeInternal, route, "token generation failed")
				return
			}
			response["accessToken"] = accessToken
			log.Info().Str("accountId", updated.AccountData.ID).Str("previousId", accountID).Msg("[USER] account renamed")
		}

		log.Info().Str("accountId", updated.AccountData.ID).Msg("[USER] account updated")
		c.JSON(http.StatusOK, response)
	}
}

func unknownUserSections(keys map[string]json.RawMessage) []string {
	var unknown []string
	for key := range keys {
		if _, ok := userSections[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown
}

func mergeAccountData(current models.AccountData, req accountDataRequest) (models.AccountData, error) {
	password, err := resolvePassword(current.Password, req.Password)
	if err != nil {
		return models.AccountData{}, err
	}
	merged := models.AccountData{
		ID:               strings.TrimSpace(req.ID),
		Password:         password,
		SecurityQuestion: req.SecurityQuestion,
		SecurityAnswer:   req.SecurityAnswer,
	}
	if merged.SecurityQuestion == "" {
		merged.SecurityQuestion = current.SecurityQuestion
	}
	if merged.SecurityAnswer == "" {
		merged.SecurityAnswer = current.SecurityAnswer
	}
	return merged, nil
}
