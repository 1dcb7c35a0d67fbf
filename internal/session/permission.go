// Package session implements Session Glue (C10): the per-request sequence
// that ties the Conversation Model, Orchestrator Graph, Progress Bus, Event
// Scheduler, and Trend-Following Engine together (spec §4.10).
package session

import (
	"github.com/discord-agent/orchestrator/internal/config"
)

// DenialReason names why CheckPermission rejected a request, for taxonomy
// logging.
type DenialReason string

const (
	DenyMaintenanceMode       DenialReason = "maintenance_mode"
	DenyDMNotAllowed          DenialReason = "dm_not_allowed"
	DenyBlockedUser           DenialReason = "blocked_user"
	DenyUserNotAllowlisted    DenialReason = "user_not_allowlisted"
	DenyBlockedRole           DenialReason = "blocked_role"
	DenyRoleNotAllowlisted    DenialReason = "role_not_allowlisted"
	DenyBlockedChannel        DenialReason = "blocked_channel"
	DenyChannelNotAllowlisted DenialReason = "channel_not_allowlisted"
)

// PermissionError is returned by CheckPermission on rejection.
type PermissionError struct {
	Reason DenialReason
}

func (e *PermissionError) Error() string {
	return "session: permission denied: " + string(e.Reason)
}

// Actor describes who/where a request came from, for permission gating.
type Actor struct {
	UserID    string
	RoleIDs   []string
	ChannelID string
	IsDM      bool
}

// CheckPermission implements spec §4.10 step 1. Block-lists are checked
// before allow-lists, and maintenance mode short-circuits everything.
func CheckPermission(cfg config.PermissionConfig, actor Actor) error {
	if cfg.MaintenanceMode {
		return &PermissionError{Reason: DenyMaintenanceMode}
	}
	if actor.IsDM {
		if !cfg.AllowDMs {
			return &PermissionError{Reason: DenyDMNotAllowed}
		}
		return checkUser(cfg, actor)
	}

	if contains(cfg.BlockedChannelIDs, actor.ChannelID) {
		return &PermissionError{Reason: DenyBlockedChannel}
	}
	if len(cfg.AllowedChannelIDs) > 0 && !contains(cfg.AllowedChannelIDs, actor.ChannelID) {
		return &PermissionError{Reason: DenyChannelNotAllowlisted}
	}
	for _, role := range actor.RoleIDs {
		if contains(cfg.BlockedRoleIDs, role) {
			return &PermissionError{Reason: DenyBlockedRole}
		}
	}
	if len(cfg.AllowedRoleIDs) > 0 {
		allowed := false
		for _, role := range actor.RoleIDs {
			if contains(cfg.AllowedRoleIDs, role) {
				allowed = true
				break
			}
		}
		if !allowed {
			return &PermissionError{Reason: DenyRoleNotAllowlisted}
		}
	}

	return checkUser(cfg, actor)
}

func checkUser(cfg config.PermissionConfig, actor Actor) error {
	if contains(cfg.BlockedUserIDs, actor.UserID) {
		return &PermissionError{Reason: DenyBlockedUser}
	}
	if len(cfg.AllowedUserIDs) > 0 && !contains(cfg.AllowedUserIDs, actor.UserID) {
		return &PermissionError{Reason: DenyUserNotAllowlisted}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
