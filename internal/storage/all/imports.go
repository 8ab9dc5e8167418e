// Package all wires all built-in storage backends into the storage factory.
//
// Importing it for side effects makes the "memory", "sqlite", "postgres" and
// "mssql" kinds available to storage.New:
//
//	import _ "github.com/mTatsuro/llm-data-visualizer/internal/storage/all"
package all

import (
	_ "github.com/mTatsuro/llm-data-visualizer/internal/storage/memory"
	_ "github.com/mTatsuro/llm-data-visualizer/internal/storage/mssql"
	_ "github.com/mTatsuro/llm-data-visualizer/internal/storage/postgres"
	_ "github.com/mTatsuro/llm-data-visualizer/internal/storage/sqlite"
)
