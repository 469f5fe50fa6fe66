// ============================================================================
// FILE: internal/handlers/group_handler.go
// PURPOSE: Account and account-group endpoints
// ============================================================================

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/xipebhui/autopublish/internal/application/common"
	"github.com/xipebhui/autopublish/internal/models"
	"github.com/xipebhui/autopublish/internal/store"
)

type GroupHandler struct {
	store *store.Store
}

func NewGroupHandler(st *store.Store) *GroupHandler {
	return &GroupHandler{store: st}
}

func parseID(r *http.Request, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		return uuid.Nil, common.BadRequest("invalid_id", "invalid "+param)
	}
	return id, nil
}

// --- accounts ---

type accountRequest struct {
	DisplayName string `json:"display_name" validate:"required"`
	Platform    string `json:"platform"`
	ProfileRef  string `json:"profile_ref" validate:"required"`
	Active      *bool  `json:"active"`
}

// POST /accounts
func (h *GroupHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondAppError(w, err)
		return
	}
	account := &models.Account{
		DisplayName: req.DisplayName,
		Platform:    req.Platform,
		ProfileRef:  req.ProfileRef,
		Active:      true,
	}
	if req.Platform == "" {
		account.Platform = "youtube"
	}
	if req.Active != nil {
		account.Active = *req.Active
	}
	if err := h.store.CreateAccount(r.Context(), account); err != nil {
		respondAppError(w, err)
		return
	}
	respondCreated(w, account)
}

// GET /accounts
func (h *GroupHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.store.ListAccounts(r.Context(), r.URL.Query().Get("active") == "true")
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, accounts)
}

// PUT /accounts/{id}
func (h *GroupHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}
	account, err := h.store.GetAccount(r.Context(), id)
	if err != nil {
		respondAppError(w, err)
		return
	}
	var req accountRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondAppError(w, err)
		return
	}
	account.DisplayName = req.DisplayName
	if req.Platform != "" {
		account.Platform = req.Platform
	}
	account.ProfileRef = req.ProfileRef
	if req.Active != nil {
		account.Active = *req.Active
	}
	if err := h.store.UpdateAccount(r.Context(), account); err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, account)
}

// DELETE /accounts/{id}
func (h *GroupHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}
	if err := h.store.DeleteAccount(r.Context(), id); err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, map[string]string{"deleted": id.String()})
}

// --- groups ---

type groupRequest struct {
	Name        string `json:"name" validate:"required"`
	GroupType   string `json:"group_type" validate:"omitempty,oneof=production experiment test"`
	Description string `json:"description"`
	Active      *bool  `json:"active"`
}

// POST /account-groups
func (h *GroupHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondAppError(w, err)
		return
	}
	group := &models.AccountGroup{
		Name:        req.Name,
		GroupType:   models.GroupType(req.GroupType),
		Description: req.Description,
		Active:      true,
	}
	if group.GroupType == "" {
		group.GroupType = models.GroupProduction
	}
	if req.Active != nil {
		group.Active = *req.Active
	}
	if err := h.store.CreateGroup(r.Context(), group); err != nil {
		respondAppError(w, err)
		return
	}
	respondCreated(w, group)
}

// GET /account-groups
func (h *GroupHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.store.ListGroups(r.Context())
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, groups)
}

// GET /account-groups/{id}
func (h *GroupHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}
	group, err := h.store.GetGroup(r.Context(), id)
	if err != nil {
		respondAppError(w, err)
		return
	}
	members, err := h.store.ListGroupMembers(r.Context(), id)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, map[string]interface{}{"group": group, "members": members})
}

// PUT /account-groups/{id}
func (h *GroupHandler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}
	group, err := h.store.GetGroup(r.Context(), id)
	if err != nil {
		respondAppError(w, err)
		return
	}
	var req groupRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondAppError(w, err)
		return
	}
	group.Name = req.Name
	if req.GroupType != "" {
		group.GroupType = models.GroupType(req.GroupType)
	}
	group.Description = req.Description
	if req.Active != nil {
		group.Active = *req.Active
	}
	if err := h.store.UpdateGroup(r.Context(), group); err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, group)
}

// DELETE /account-groups/{id}
func (h *GroupHandler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}
	if err := h.store.DeleteGroup(r.Context(), id); err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, map[string]string{"deleted": id.String()})
}

// --- members ---

type addMembersRequest struct {
	AccountIDs []string `json:"account_ids" validate:"required,min=1"`
	Role       string   `json:"role"`
}

// POST /account-groups/{id}/members
func (h *GroupHandler) AddMembers(w http.ResponseWriter, r *http.Request) {
	groupID, err := parseID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}
	var req addMembersRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondAppError(w, err)
		return
	}
	accountIDs := make([]uuid.UUID, 0, len(req.AccountIDs))
	for _, raw := range req.AccountIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondAppError(w, common.BadRequest("invalid_id", "invalid account id "+raw))
			return
		}
		accountIDs = append(accountIDs, id)
	}
	if err := h.store.AddGroupMembers(r.Context(), groupID, accountIDs, req.Role); err != nil {
		respondAppError(w, err)
		return
	}
	members, err := h.store.ListGroupMembers(r.Context(), groupID)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondCreated(w, members)
}

// DELETE /account-groups/{id}/members/{accountId}
func (h *GroupHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	groupID, err := parseID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}
	accountID, err := parseID(r, "accountId")
	if err != nil {
		respondAppError(w, err)
		return
	}
	if err := h.store.RemoveGroupMember(r.Context(), groupID, accountID); err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, map[string]string{"removed": accountID.String()})
}
