// Package db embeds the PostgreSQL schema for the coupon catalog and ledger.
package db

import _ "embed"

// Schema creates the coupon and usage tables. Every statement is idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string
