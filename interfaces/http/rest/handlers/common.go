package handlers

import (
	"net/http"

	"atelier/pkg/auth"
	"atelier/pkg/common"
	pkgerrors "atelier/pkg/errors"
	"atelier/pkg/utils"
)

// maxBodyBytes bounds JSON bodies; reference uploads carry base64 images.
const maxBodyBytes = 12 << 20

// currentUser returns the authenticated user id set by the auth middleware.
func currentUser(r *http.Request) (string, error) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		return "", pkgerrors.NewUnauthorizedError("")
	}
	return user.UserID, nil
}

// decodeBody parses and validates a JSON body.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if err := common.ParseJSONBody(w, r, v, maxBodyBytes); err != nil {
		return pkgerrors.NewValidationError("invalid request body: " + err.Error())
	}
	if err := utils.ValidateStruct(v); err != nil {
		return pkgerrors.NewValidationError(err.Error())
	}
	return nil
}
