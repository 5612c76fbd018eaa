// Package web bundles the admin console's templates and static assets.
package web

import "embed"

// Templates holds the layouts, partials and pages parsed by view.Engine.
//
//go:embed templates/layouts/*.html templates/partials/*.html templates/pages/*.html
var Templates embed.FS

// Static is served under /static/.
//
//go:embed static/css/*.css
var Static embed.FS
