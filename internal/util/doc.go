// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by groundchat packages:
// atomic file writes for the config file and width-aware string
// truncation for terminal listings.
package util
