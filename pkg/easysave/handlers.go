package easysave

import (
	"encoding/json"
	"net/http"

	"github.com/easysave/easysave/pkg/credentials"
	"github.com/easysave/easysave/pkg/errs"
	"github.com/easysave/easysave/pkg/identifier"
	"github.com/easysave/easysave/pkg/models"
	"github.com/easysave/easysave/pkg/store"
)

// CreateUserRequest registers a new account. Test selects the test
// environment for the account's namespace root; the environment is
// immutable afterwards.
type CreateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Test     bool   `json:"test"`
}

// UpdateUserRequest patches the caller's own account. These three fields
// are the only mutable ones; unknown fields are rejected.
type UpdateUserRequest struct {
	Email     *string `json:"email"`
	AccessKey *string `json:"accessKey"`
	Password  *string `json:"password"`
}

// LoginResponse carries the access key to use in RequesterAccessKey
// headers on protected endpoints.
type LoginResponse struct {
	AccessKey string `json:"accessKey"`
}

// CreateBlockRequest stores a value under the caller's namespace. The
// extended identifier is the path after "environment.username"; empty
// addresses the namespace root itself.
type CreateBlockRequest struct {
	ExtendedIdentifier string `json:"extendedIdentifier"`
	Value              string `json:"value"`
}

// UpdateBlockRequest replaces the value of an existing block.
type UpdateBlockRequest struct {
	ExtendedIdentifier string `json:"extendedIdentifier"`
	Value              string `json:"value"`
}

// DeleteBlockRequest removes the exact identifier only; children keep
// existing.
type DeleteBlockRequest struct {
	ExtendedIdentifier string `json:"extendedIdentifier"`
}

// GetBlocksResponse lists the blocks matching a prefix query.
type GetBlocksResponse struct {
	BlockList []models.Block `json:"blockList"`
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCreateUser registers a new account. The password is hashed before
// storage and a fresh access key is generated; the namespace root is
// derived from the chosen environment and username.
func (a *App) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "Username and password are required.")
		return
	}

	env := identifier.EnvProd
	if req.Test {
		env = identifier.EnvTest
	}
	// The username must stay a single segment. "alice.private" would form
	// the root "prod.alice.private", nested inside alice's namespace.
	if !identifier.ValidUsername(req.Username) || !identifier.Valid(identifier.Root(env, req.Username)) {
		a.respondDomainError(w, errs.Newf(errs.InvalidIdentifier, "invalid username %q", req.Username))
		return
	}

	hash, err := credentials.HashPassword(req.Password)
	if err != nil {
		a.respondDomainError(w, errs.Wrap(errs.StoreFailure, "failed to hash password", err))
		return
	}
	accessKey, err := credentials.GenerateAccessKey()
	if err != nil {
		a.respondDomainError(w, errs.Wrap(errs.StoreFailure, "failed to generate access key", err))
		return
	}

	user := &models.User{
		Username:     req.Username,
		UniqueID:     identifier.Root(env, req.Username),
		Email:        req.Email,
		AccessKey:    accessKey,
		PasswordHash: hash,
	}
	if err := a.store.CreateUser(r.Context(), user); err != nil {
		a.respondDomainError(w, err)
		return
	}

	a.log.Info().Str("username", user.Username).Str("uniqueid", user.UniqueID).Msg("user created")
	w.WriteHeader(http.StatusNoContent)
}

// handleLogin exchanges username+password for the stored access key.
// Unknown username and wrong password collapse to the same response.
func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	password := r.URL.Query().Get("password")
	if username == "" {
		a.respondDomainError(w, errs.New(errs.AuthenticationFailure, "Invalid login details."))
		return
	}

	user, err := a.store.FindUser(r.Context(), store.FindUserQuery{Username: username})
	if err != nil {
		a.respondDomainError(w, err)
		return
	}
	if user == nil || !credentials.VerifyPassword(password, user.PasswordHash) {
		a.respondDomainError(w, errs.New(errs.AuthenticationFailure, "Invalid login details."))
		return
	}

	respondJSON(w, http.StatusOK, LoginResponse{AccessKey: user.AccessKey})
}

// handleGetUser looks up an account by exactly one search criterion. The
// response never includes the password hash or access key.
func (a *App) handleGetUser(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := store.FindUserQuery{
		Username:  q.Get("username"),
		UniqueID:  q.Get("uniqueid"),
		Email:     q.Get("email"),
		AccessKey: q.Get("accessKey"),
	}
	if query.Empty() {
		respondError(w, http.StatusBadRequest, "Must pass in at least ONE search parameter.")
		return
	}

	user, err := a.store.FindUser(r.Context(), query)
	if err != nil {
		a.respondDomainError(w, err)
		return
	}
	if user == nil {
		a.respondDomainError(w, errs.New(errs.NotFound, "No matching user."))
		return
	}

	respondJSON(w, http.StatusOK, user)
}

// handleUpdateUser patches the authenticated caller's own row. The patch
// struct is closed: username, uniqueid, and environment cannot be
// addressed at all, and unknown JSON fields fail before any store call.
func (a *App) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	var req UpdateUserRequest
	if err := decoder.Decode(&req); err != nil {
		a.respondDomainError(w, errs.Wrap(errs.InvalidUpdateField,
			"Update accepts only email, accessKey, and password.", err))
		return
	}

	patch := store.UserPatch{
		Email:     req.Email,
		AccessKey: req.AccessKey,
	}
	if req.Password != nil {
		hash, err := credentials.HashPassword(*req.Password)
		if err != nil {
			a.respondDomainError(w, errs.Wrap(errs.StoreFailure, "failed to hash password", err))
			return
		}
		patch.PasswordHash = &hash
	}

	caller := requester(r)
	if err := a.store.UpdateUser(r.Context(), caller.Username, patch); err != nil {
		a.respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// callerIdentifier expands the authenticated caller's namespace root with
// a request-supplied suffix. The root comes from the verified identity,
// so a caller cannot address another user's namespace.
func callerIdentifier(r *http.Request, suffix string) (string, error) {
	return identifier.ExtendPath(requester(r).UniqueID, suffix)
}

func (a *App) handleCreateBlock(w http.ResponseWriter, r *http.Request) {
	var req CreateBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	id, err := callerIdentifier(r, req.ExtendedIdentifier)
	if err != nil {
		a.respondDomainError(w, err)
		return
	}
	if err := a.store.CreateBlock(r.Context(), &models.Block{Identifier: id, Value: req.Value}); err != nil {
		a.respondDomainError(w, err)
		return
	}

	a.events.broadcast("create", id)
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleGetBlocks(w http.ResponseWriter, r *http.Request) {
	prefix, err := callerIdentifier(r, r.URL.Query().Get("extendedIdentifier"))
	if err != nil {
		a.respondDomainError(w, err)
		return
	}

	blocks, err := a.store.GetBlocks(r.Context(), prefix)
	if err != nil {
		a.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, GetBlocksResponse{BlockList: blocks})
}

func (a *App) handleUpdateBlock(w http.ResponseWriter, r *http.Request) {
	var req UpdateBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	id, err := callerIdentifier(r, req.ExtendedIdentifier)
	if err != nil {
		a.respondDomainError(w, err)
		return
	}
	if err := a.store.UpdateBlock(r.Context(), id, req.Value); err != nil {
		a.respondDomainError(w, err)
		return
	}

	a.events.broadcast("update", id)
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleDeleteBlock(w http.ResponseWriter, r *http.Request) {
	var req DeleteBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	id, err := callerIdentifier(r, req.ExtendedIdentifier)
	if err != nil {
		a.respondDomainError(w, err)
		return
	}
	if err := a.store.DeleteBlock(r.Context(), id); err != nil {
		a.respondDomainError(w, err)
		return
	}

	a.events.broadcast("delete", id)
	w.WriteHeader(http.StatusNoContent)
}
