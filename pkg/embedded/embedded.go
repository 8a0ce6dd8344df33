// Package embedded provides embedded static assets for the application.
package embedded

import (
	"embed"
)

// Files contains all files embedded in the Go binary:
// - Smart stub templates (templates/) - ISO 20022-style response bodies
//   rendered by internal/smartstub
// - Static files (static/) - the admin index page served by the venue
//   HTTP service
//
//go:embed templates static
var Files embed.FS
