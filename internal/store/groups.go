// path: internal/store/groups.go
package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/xipebhui/autopublish/internal/models"
)

// --- accounts ---

// CreateAccount stores a channel identity.
func (s *Store) CreateAccount(ctx context.Context, a *models.Account) error {
	return wrapErr(s.db.WithContext(ctx).Create(a).Error, "account_create", "failed to create account")
}

// GetAccount looks up one account.
func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var a models.Account
	if err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, wrapErr(err, "account_not_found", "account not found")
	}
	return &a, nil
}

// ListAccounts returns all accounts, optionally only active ones.
func (s *Store) ListAccounts(ctx context.Context, activeOnly bool) ([]models.Account, error) {
	q := s.db.WithContext(ctx).Model(&models.Account{})
	if activeOnly {
		q = q.Where("active = true")
	}
	var out []models.Account
	if err := q.Order("created_at asc").Find(&out).Error; err != nil {
		return nil, wrapErr(err, "account_list", "failed to list accounts")
	}
	return out, nil
}

// UpdateAccount saves changed fields of an account.
func (s *Store) UpdateAccount(ctx context.Context, a *models.Account) error {
	return wrapErr(s.db.WithContext(ctx).Save(a).Error, "account_update", "failed to update account")
}

// DeleteAccount removes an account.
func (s *Store) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Delete(&models.Account{}, "id = ?", id)
	if res.Error != nil {
		return wrapErr(res.Error, "account_delete", "failed to delete account")
	}
	if res.RowsAffected == 0 {
		return wrapErr(errRecordMissing, "account_not_found", "account not found")
	}
	return nil
}

// --- groups ---

// CreateGroup stores a new account group.
func (s *Store) CreateGroup(ctx context.Context, g *models.AccountGroup) error {
	return wrapErr(s.db.WithContext(ctx).Create(g).Error, "group_create", "failed to create group")
}

// GetGroup looks up one group.
func (s *Store) GetGroup(ctx context.Context, id uuid.UUID) (*models.AccountGroup, error) {
	var g models.AccountGroup
	if err := s.db.WithContext(ctx).First(&g, "id = ?", id).Error; err != nil {
		return nil, wrapErr(err, "group_not_found", "group not found")
	}
	return &g, nil
}

// ListGroups returns every group.
func (s *Store) ListGroups(ctx context.Context) ([]models.AccountGroup, error) {
	var out []models.AccountGroup
	if err := s.db.WithContext(ctx).Order("created_at asc").Find(&out).Error; err != nil {
		return nil, wrapErr(err, "group_list", "failed to list groups")
	}
	return out, nil
}

// UpdateGroup saves changed fields of a group.
func (s *Store) UpdateGroup(ctx context.Context, g *models.AccountGroup) error {
	return wrapErr(s.db.WithContext(ctx).Save(g).Error, "group_update", "failed to update group")
}

// DeleteGroup removes a group and its memberships.
func (s *Store) DeleteGroup(ctx context.Context, id uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.GroupMember{}, "group_id = ?", id).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.AccountGroup{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errRecordMissing
		}
		return nil
	})
	return wrapErr(err, "group_delete", "failed to delete group")
}

// --- members ---

// AddGroupMembers links accounts into a group, ranked after existing members.
func (s *Store) AddGroupMembers(ctx context.Context, groupID uuid.UUID, accountIDs []uuid.UUID, role string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxRank int64
		tx.Model(&models.GroupMember{}).Where("group_id = ?", groupID).Count(&maxRank)
		for i, accountID := range accountIDs {
			m := models.GroupMember{
				GroupID:   groupID,
				AccountID: accountID,
				Role:      role,
				Rank:      int(maxRank) + i,
			}
			if err := tx.Create(&m).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return wrapErr(err, "member_add", "failed to add group members")
}

// RemoveGroupMember unlinks one account from a group.
func (s *Store) RemoveGroupMember(ctx context.Context, groupID, accountID uuid.UUID) error {
	res := s.db.WithContext(ctx).
		Delete(&models.GroupMember{}, "group_id = ? AND account_id = ?", groupID, accountID)
	if res.Error != nil {
		return wrapErr(res.Error, "member_remove", "failed to remove member")
	}
	if res.RowsAffected == 0 {
		return wrapErr(errRecordMissing, "member_not_found", "membership not found")
	}
	return nil
}

// ListGroupMembers returns a group's members in rank order.
func (s *Store) ListGroupMembers(ctx context.Context, groupID uuid.UUID) ([]models.GroupMember, error) {
	var out []models.GroupMember
	err := s.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("rank asc, created_at asc").
		Find(&out).Error
	if err != nil {
		return nil, wrapErr(err, "member_list", "failed to list members")
	}
	return out, nil
}

// ListActiveGroupAccounts resolves a group's members to their active
// accounts, preserving member rank order.
func (s *Store) ListActiveGroupAccounts(ctx context.Context, groupID uuid.UUID) ([]models.Account, error) {
	var out []models.Account
	err := s.db.WithContext(ctx).
		Joins("JOIN group_members ON group_members.account_id = accounts.id").
		Where("group_members.group_id = ? AND accounts.active = true", groupID).
		Order("group_members.rank asc, group_members.created_at asc").
		Find(&out).Error
	if err != nil {
		return nil, wrapErr(err, "group_accounts", "failed to resolve group accounts")
	}
	return out, nil
}
