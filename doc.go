// Package main implements aocstat, a CLI for Advent of Code leaderboards and
// puzzles that keeps load on the remote site low.
//
// # Features
//
//   - Session token management with interactive browser (WebDriver) or manual login
//   - Private and global leaderboards served from a TTL-bounded local cache
//   - Puzzle descriptions and inputs cached once their day has unlocked
//   - Answer submission with rate-limit detection and optional wait-and-resubmit
//
// # Usage
//
//	aocstat lb [--year Y] [--id ID | --global | --day D:P] [--force]
//	aocstat pz view|input [--year Y] [--day D] [--part P]
//	aocstat pz submit ANSWER [--year Y] [--day D] [--part P] [--wait]
//	aocstat purge
//	aocstat config list|get|set|reset
//
// # Configuration
//
// Configuration is loaded from config.json in the user config directory
// (override with AOCSTAT_CONFIG_DIR). Cached data and the session token live in
// the user cache directory (override with AOCSTAT_DATA_DIR). AOCSTAT_SESSION
// supplies a token without touching the token file.
package main
