// Package compilecache resolves compiled artifacts through a persistent,
// fingerprint validated cache.
//
// Each artifact is identified by a resource and a compile group. Resolve
// serializes work per artifact with an in-process lock and, optionally, a
// cross-process lock, then either revalidates the cached output against the
// fingerprints of every source it was built from or recompiles it.
//
// Records live below a cache directory in the project storage:
//
//	.prism/<group>/<resource>                     compiled content
//	.prism/<group>/<resource>__asset__/meta.json  meta record
//	.prism/<group>/<resource>__asset__/...        assets
//
// The meta record is written last, so a reader that finds one also finds
// the content and assets it describes.
package compilecache
