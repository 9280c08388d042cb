package model

import "github.com/golang-jwt/jwt/v5"

// TabClaims are JWT claims scoping a token to one browser tab's session
type TabClaims struct {
	TabID string `json:"tabId"`
	jwt.RegisteredClaims
}

// OpenTabResponse is returned when a new tab session is opened
type OpenTabResponse struct {
	Token string      `json:"token"`
	TabID string      `json:"tabId"`
	View  SessionView `json:"view"`
}
