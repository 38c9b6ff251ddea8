// Package scripts embeds the built-in Risor helper scripts. Each script
// exports functions that compiled pages may call as globals.
package scripts

import "embed"

// FS holds the built-in helper scripts.
//
//go:embed *.risor
var FS embed.FS
