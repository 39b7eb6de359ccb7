/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version provides version information and a release check.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Version is the current version of MSX Bridge.
// This is set at build time via ldflags:
//
//	-X github.com/friendsincode/msx_bridge/internal/version.Version=X.Y.Z
var Version = "0.9.3"

// GitHubRepo is the repository to check for updates
const GitHubRepo = "friendsincode/msx_bridge"

// UpdateInfo describes the latest published release relative to the running
// build.
type UpdateInfo struct {
	CurrentVersion  string
	LatestVersion   string
	UpdateAvailable bool
	ReleaseURL      string
	CheckedAt       time.Time
}

type githubRelease struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// CheckLatest asks GitHub for the newest release. A bridge is a
// set-and-forget appliance, so one check at startup (logged, never fatal)
// is all the nagging it does.
func CheckLatest(ctx context.Context, logger zerolog.Logger) *UpdateInfo {
	log := logger.With().Str("component", "update-check").Logger()
	info := &UpdateInfo{CurrentVersion: Version, CheckedAt: time.Now()}

	url := fmt.Sprintf("https://api.github.com/repos/%s/releases/latest", GitHubRepo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return info
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "MSX-Bridge/"+Version)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		log.Debug().Err(err).Msg("failed to fetch releases")
		return info
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Debug().Int("status", resp.StatusCode).Msg("unexpected status from GitHub")
		return info
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		log.Debug().Err(err).Msg("failed to decode release")
		return info
	}

	info.LatestVersion = strings.TrimPrefix(release.TagName, "v")
	info.ReleaseURL = release.HTMLURL
	info.UpdateAvailable = compareVersions(Version, info.LatestVersion) < 0

	if info.UpdateAvailable {
		log.Info().
			Str("current", Version).
			Str("latest", info.LatestVersion).
			Str("url", info.ReleaseURL).
			Msg("new version available")
	}
	return info
}

// compareVersions compares two semver versions.
// Returns -1 if a < b, 0 if a == b, 1 if a > b
func compareVersions(a, b string) int {
	aParts := parseVersion(a)
	bParts := parseVersion(b)

	for i := 0; i < 3; i++ {
		if aParts[i] < bParts[i] {
			return -1
		}
		if aParts[i] > bParts[i] {
			return 1
		}
	}
	return 0
}

// parseVersion parses a semver string into major, minor, patch.
func parseVersion(v string) [3]int {
	v = strings.TrimPrefix(v, "v")
	parts := strings.Split(v, ".")

	var result [3]int
	for i := 0; i < len(parts) && i < 3; i++ {
		fmt.Sscanf(parts[i], "%d", &result[i])
	}
	return result
}
