// Package domain contains entity without logic, just meta-data
package domain

const MaxUserIDLen = 64

type UserID string

func (id UserID) Valid() bool {
	return id != "" && len(id) <= MaxUserIDLen
}
