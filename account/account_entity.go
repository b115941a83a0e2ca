package account

import (
	"flowdesk/authority"

	"github.com/fundwit/go-commons/types"
)

type User struct {
	ID types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`

	Name      string `json:"name" gorm:"unique_index"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Nickname  string `json:"nickname"`

	Secret string `json:"-"`

	Role    authority.Role `json:"role"`
	Enabled bool           `json:"enabled"`
}

type UserInfo struct {
	ID        types.ID       `json:"id"`
	Name      string         `json:"name"`
	Email     string         `json:"email"`
	FirstName string         `json:"firstName"`
	LastName  string         `json:"lastName"`
	Nickname  string         `json:"nickname"`
	Role      authority.Role `json:"role"`
	Enabled   bool           `json:"enabled"`
}

type UserCreation struct {
	Name      string `json:"name" binding:"required"`
	Email     string `json:"email" binding:"omitempty,email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Nickname  string `json:"nickname"`
	Secret    string `json:"secret" binding:"required,min=6"`
	Role      string `json:"role" binding:"required,oneof=ADMIN MANAGER REVIEWER VIEWER"`
}

type UserUpdation struct {
	Email     string `json:"email" binding:"omitempty,email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Nickname  string `json:"nickname"`

	// admin only
	Role    string `json:"role" binding:"omitempty,oneof=ADMIN MANAGER REVIEWER VIEWER"`
	Enabled *bool  `json:"enabled"`
}

type BasicAuthUpdating struct {
	OriginalSecret string `json:"originalSecret" binding:"required"`
	NewSecret      string `json:"newSecret" binding:"required,min=6"`
}

func (u User) DisplayName() string {
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.Name
}

func (u UserInfo) DisplayName() string {
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.Name
}

func (u User) Info() UserInfo {
	return UserInfo{ID: u.ID, Name: u.Name, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName,
		Nickname: u.Nickname, Role: u.Role, Enabled: u.Enabled}
}
