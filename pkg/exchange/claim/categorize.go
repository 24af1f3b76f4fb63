/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package claim

import (
	"encoding/json"
	"strings"

	"github.com/mitchellh/mapstructure"
)

const (
	baseCredentialType = "VerifiableCredential"

	// CategoryAchievement is used for Open Badges and other achievement credentials.
	CategoryAchievement = "Achievement"
	// CategoryID is used for identity document credentials.
	CategoryID = "ID"
	// CategoryUnknown is used when no type information is available.
	CategoryUnknown = "Unknown"
)

// nolint:gochecknoglobals
var categoryByType = map[string]string{
	"OpenBadgeCredential":   CategoryAchievement,
	"AchievementCredential": CategoryAchievement,
	"BoostCredential":       CategoryAchievement,
	"BoostID":               CategoryID,
	"IDCredential":          CategoryID,
}

// TypeCategorizer derives categories from the credential "type" field and the achievement
// type from "credentialSubject.achievement.achievementType".
type TypeCategorizer struct {
	// Categories overrides the built-in type to category mapping.
	Categories map[string]string
}

type credentialShape struct {
	Type              interface{} `mapstructure:"type"`
	CredentialSubject interface{} `mapstructure:"credentialSubject"`
}

type subjectShape struct {
	Achievement struct {
		AchievementType string `mapstructure:"achievementType"`
	} `mapstructure:"achievement"`
}

// Category returns the credential category.
func (c *TypeCategorizer) Category(credential json.RawMessage) string {
	shape, ok := decodeShape(credential)
	if !ok {
		return CategoryUnknown
	}

	types := stringsOf(shape.Type)

	for i := len(types) - 1; i >= 0; i-- {
		if category, ok := c.lookup(types[i]); ok {
			return category
		}
	}

	for i := len(types) - 1; i >= 0; i-- {
		if types[i] != baseCredentialType {
			return strings.TrimSuffix(types[i], "Credential")
		}
	}

	return CategoryUnknown
}

// AchievementType returns the achievement type of the first credential subject, if any.
func (c *TypeCategorizer) AchievementType(credential json.RawMessage) string {
	shape, ok := decodeShape(credential)
	if !ok {
		return ""
	}

	subject := shape.CredentialSubject
	if subjects, isList := subject.([]interface{}); isList {
		if len(subjects) == 0 {
			return ""
		}

		subject = subjects[0]
	}

	var s subjectShape

	if err := mapstructure.Decode(subject, &s); err != nil {
		return ""
	}

	return s.Achievement.AchievementType
}

func (c *TypeCategorizer) lookup(t string) (string, bool) {
	if c.Categories != nil {
		category, ok := c.Categories[t]

		return category, ok
	}

	category, ok := categoryByType[t]

	return category, ok
}

func decodeShape(credential json.RawMessage) (*credentialShape, bool) {
	var raw map[string]interface{}

	if err := json.Unmarshal(credential, &raw); err != nil {
		return nil, false
	}

	var shape credentialShape

	if err := mapstructure.Decode(raw, &shape); err != nil {
		return nil, false
	}

	return &shape, true
}

func stringsOf(v interface{}) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []interface{}:
		var result []string

		for _, item := range val {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}

		return result
	default:
		return nil
	}
}
