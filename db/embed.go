// Package db embeds the PostgreSQL schema of the fulfillment engine.
package db

import _ "embed"

// Schema creates the stores, products, promotions, orders, order_items,
// notifications and api_keys tables. Every statement is idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string
