// Package types contains read shapes shared by the service and its HTTP API.
package types

import "github.com/okian/scorenft/internal/domain/model"

// Metadata is the full score record of one identity.
type Metadata struct {
	Identity    model.Identity    `json:"identity"`
	Score       uint64            `json:"score"`
	HistoryHash model.HistoryHash `json:"history_hash"`
}

// ScoreView is the zero-defaulted score of one identity.
type ScoreView struct {
	Identity model.Identity `json:"identity"`
	Score    uint64         `json:"score"`
}

// MinterView answers the authorization predicate for one identity.
type MinterView struct {
	Identity   model.Identity `json:"identity"`
	Authorized bool           `json:"authorized"`
}

// ContractInfo summarizes the authorization registry.
type ContractInfo struct {
	Initialized bool             `json:"initialized"`
	Admin       model.Identity   `json:"admin,omitempty"`
	Minters     []model.Identity `json:"minters"`
}

// RepaymentResult reports the score after a repayment was applied.
type RepaymentResult struct {
	Identity  model.Identity `json:"identity"`
	Score     uint64         `json:"score"`
	Delta     uint64         `json:"delta"`
	Duplicate bool           `json:"duplicate"`
}
