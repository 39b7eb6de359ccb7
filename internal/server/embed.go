/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import "embed"

//go:embed all:static
var staticFS embed.FS
