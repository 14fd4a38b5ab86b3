// Package content loads the site's author-written content and manages the
// content root the server reads it from.
//
// The listing side is stateless: [List] and [Lister.List] scan a directory
// of an fs.FS on every call, split YAML front-matter from the body and
// derive each item's slug from its filename. [Select] applies the
// exclude, sort and range pipeline the pages use.
//
// The root side swaps whole trees:
//   - [Manager]: holds the active [Snapshot] behind an atomic.Pointer
//   - [BundleLoader]: fetches tar.gz bundles from S3, addressed by the sha256 in SSM
//   - [Watcher]: polls SSM and hot-swaps validated bundles into the Manager
//   - [DirWatcher]: fsnotify watcher over a local content directory
//
// Bundle extraction enforces size limits and rejects path traversal.
package content
