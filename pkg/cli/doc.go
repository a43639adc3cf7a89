// Package cli implements the prism command-line tool.
//
// # Commands
//
// plan: Partition runtime targets into compile groups
//
//	prism plan -config planner.yaml -runtime chrome@120,safari@15
//
// resolve: Build a resource for each group through the cache
//
//	prism resolve \
//		-resource src/app.js \
//		-group best,fallback \
//		-cmd "esbuild --target=es2017" \
//		-content-type application/javascript \
//		-out dist
//
// The compiler command reads the resource on stdin and writes the output
// to stdout. Exit status 65 reports a source error; a "line:column:" prefix
// on stderr is kept as the diagnostic location.
//
// watch: Re-resolve whenever a recorded source changes
//
//	prism watch -resource src/app.js -group best -cmd "esbuild"
//
// prune: Remove artifacts idle for longer than -max-idle
//
//	prism prune -max-idle 168h
//
// stats: List cached artifacts, or show one meta record
//
//	prism stats
//	prism stats -resource src/app.js -group best
//
// # Configuration
//
// Every command reads the PRISM_* environment variables through
// pkg/config. -project overrides PRISM_PROJECT_DIR.
package cli
