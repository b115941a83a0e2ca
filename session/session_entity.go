package session

import (
	"context"
	"time"

	"flowdesk/authority"

	"github.com/fundwit/go-commons/types"
)

type Identity struct {
	ID       types.ID       `json:"id"`
	Name     string         `json:"name"`
	Nickname string         `json:"nickname"`
	Role     authority.Role `json:"role"`
}

type Session struct {
	Token        string   `json:"token"`
	Identity     Identity `json:"identity"`
	Capabilities []string `json:"capabilities"`

	SigningTime time.Time `json:"-"`

	Context context.Context `json:"-"`
}

func (s *Session) HasAnyRole(roles ...authority.Role) bool {
	return s.Identity.Role.In(roles...)
}

func (s Session) Clone() Session {
	c := s
	c.Capabilities = make([]string, len(s.Capabilities))
	copy(c.Capabilities, s.Capabilities)
	return c
}
