package static

import "embed"

// Views holds the html templates parsed at startup.
//
//go:embed views/*.html
var Views embed.FS

// Assets is served under /s/.
//
//go:embed assets
var Assets embed.FS
