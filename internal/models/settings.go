package models

import (
	"encoding/json"
	"fmt"
)

// AccountSettings is the resolved, typed per-account configuration. All
// optional fields in the stored JSON blob are defaulted exactly once here;
// call sites never probe the raw blob.
type AccountSettings struct {
	FollowEnabled   bool
	UnfollowEnabled bool
	LikeEnabled     bool
	CommentEnabled  bool
	DMEnabled       bool
	EngageEnabled   bool
	ReelsEnabled    bool
	ShareEnabled    bool
	SaveEnabled     bool
	ReportEnabled   bool

	SessionMin int // lower bound of the per-run random action quota
	SessionMax int // upper bound of the per-run random action quota

	DailyLimits map[ActionKind]int

	CooldownMinSec int
	CooldownMaxSec int

	TagDedupEnabled bool
}

// rawSettings mirrors the persisted JSON; pointer fields distinguish
// "unset" from zero values.
type rawSettings struct {
	FollowEnabled   *bool `json:"follow_enabled"`
	UnfollowEnabled *bool `json:"unfollow_enabled"`
	LikeEnabled     *bool `json:"like_enabled"`
	CommentEnabled  *bool `json:"comment_enabled"`
	DMEnabled       *bool `json:"dm_enabled"`
	EngageEnabled   *bool `json:"engage_enabled"`
	ReelsEnabled    *bool `json:"reels_enabled"`
	ShareEnabled    *bool `json:"share_enabled"`
	SaveEnabled     *bool `json:"save_enabled"`
	ReportEnabled   *bool `json:"report_enabled"`

	SessionMin *int `json:"session_min"`
	SessionMax *int `json:"session_max"`

	DailyLimits map[string]int `json:"daily_limits"`

	CooldownMinSec *int `json:"cooldown_min_sec"`
	CooldownMaxSec *int `json:"cooldown_max_sec"`

	TagDedupEnabled *bool `json:"tag_dedup_enabled"`
}

// DefaultSettings returns the settings applied when an account carries no
// overrides.
func DefaultSettings() AccountSettings {
	return AccountSettings{
		EngageEnabled:   true,
		SessionMin:      8,
		SessionMax:      20,
		DailyLimits:     map[ActionKind]int{},
		CooldownMinSec:  20,
		CooldownMaxSec:  90,
		TagDedupEnabled: false,
	}
}

// ParseSettings resolves the stored JSON blob into a fully defaulted
// AccountSettings. An empty blob yields DefaultSettings.
func ParseSettings(blob string) (AccountSettings, error) {
	out := DefaultSettings()
	if blob == "" {
		return out, nil
	}

	var raw rawSettings
	if err := json.Unmarshal([]byte(blob), &raw); err != nil {
		return out, fmt.Errorf("parse account settings: %w", err)
	}

	setBool := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	setBool(&out.FollowEnabled, raw.FollowEnabled)
	setBool(&out.UnfollowEnabled, raw.UnfollowEnabled)
	setBool(&out.LikeEnabled, raw.LikeEnabled)
	setBool(&out.CommentEnabled, raw.CommentEnabled)
	setBool(&out.DMEnabled, raw.DMEnabled)
	setBool(&out.EngageEnabled, raw.EngageEnabled)
	setBool(&out.ReelsEnabled, raw.ReelsEnabled)
	setBool(&out.ShareEnabled, raw.ShareEnabled)
	setBool(&out.SaveEnabled, raw.SaveEnabled)
	setBool(&out.ReportEnabled, raw.ReportEnabled)
	setBool(&out.TagDedupEnabled, raw.TagDedupEnabled)

	if raw.SessionMin != nil {
		out.SessionMin = *raw.SessionMin
	}
	if raw.SessionMax != nil {
		out.SessionMax = *raw.SessionMax
	}
	if out.SessionMax < out.SessionMin {
		out.SessionMax = out.SessionMin
	}
	if raw.CooldownMinSec != nil {
		out.CooldownMinSec = *raw.CooldownMinSec
	}
	if raw.CooldownMaxSec != nil {
		out.CooldownMaxSec = *raw.CooldownMaxSec
	}
	if out.CooldownMaxSec < out.CooldownMinSec {
		out.CooldownMaxSec = out.CooldownMinSec
	}

	for k, v := range raw.DailyLimits {
		out.DailyLimits[ActionKind(k)] = v
	}

	return out, nil
}

// DailyLimit returns the configured daily cap for a kind, or 0 when the kind
// is uncapped.
func (s AccountSettings) DailyLimit(kind ActionKind) int {
	return s.DailyLimits[kind]
}

// Enabled reports whether an optional action kind is switched on.
func (s AccountSettings) Enabled(kind ActionKind) bool {
	switch kind {
	case ActionFollow:
		return s.FollowEnabled
	case ActionUnfollow:
		return s.UnfollowEnabled
	case ActionLike:
		return s.LikeEnabled
	case ActionComment:
		return s.CommentEnabled
	case ActionDM:
		return s.DMEnabled
	case ActionEngage:
		return s.EngageEnabled
	case ActionReels:
		return s.ReelsEnabled
	case ActionShare:
		return s.ShareEnabled
	case ActionSave:
		return s.SaveEnabled
	case ActionReport:
		return s.ReportEnabled
	}
	return false
}
