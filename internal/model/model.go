package model

import (
	"bytes"
	"encoding/json"
	"strings"
)

type Credentials struct {
	NISN     string `json:"nisn"`
	Password string `json:"password"`
}

type LoginResult struct {
	Message string `json:"message"`
	Token   string `json:"access_token"`
	Role    string `json:"role"`
}

type User struct {
	ID         ID     `json:"id,omitempty"`
	NISN       string `json:"nisn,omitempty"`
	FullName   string `json:"fullname,omitempty"`
	Username   string `json:"username,omitempty"`
	Role       string `json:"role"`
	ClassGroup string `json:"class_group,omitempty"`
	Message    string `json:"message,omitempty"`
}

// DisplayName is the best available human name for the user.
func (u User) DisplayName() string {
	switch {
	case u.FullName != "":
		return u.FullName
	case u.Username != "":
		return u.Username
	default:
		return u.NISN
	}
}

type Redemption struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// ID is a user identifier that the service sends either as a JSON number or
// as a string.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

// RoleSet is a case-insensitive set of role names.
type RoleSet map[string]struct{}

func NewRoleSet(roles ...string) RoleSet {
	set := make(RoleSet, len(roles))
	for _, role := range roles {
		role = normalizeRole(role)
		if role != "" {
			set[role] = struct{}{}
		}
	}
	return set
}

func (s RoleSet) Contains(role string) bool {
	_, ok := s[normalizeRole(role)]
	return ok
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
