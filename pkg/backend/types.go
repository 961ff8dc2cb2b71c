package backend

import (
	"encoding/json"
	"strings"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the login answer. Username, Nombre and Roles are optional.
type LoginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Username     string `json:"username,omitempty"`
	Nombre       string `json:"nombre,omitempty"`
	Roles        Roles  `json:"roles,omitempty"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Nombre   string `json:"nombre"`
	Apellido string `json:"apellido"`
}

// FullName joins nombre and apellido.
func (u User) FullName() string {
	return strings.TrimSpace(u.Nombre + " " + u.Apellido)
}

type UserPage struct {
	Content []User `json:"content"`
	Last    bool   `json:"last"`
}

// Roles accepts either a single string or an array of strings on the wire.
type Roles []string

func (r *Roles) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*r = nil
		} else {
			*r = Roles{single}
		}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*r = list
	return nil
}

// First returns the first role or "".
func (r Roles) First() string {
	if len(r) == 0 {
		return ""
	}
	return r[0]
}
