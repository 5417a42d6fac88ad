// The [modelsync] package keeps a graph of typed models consistent between
// two peers.
//
// # Documents
//
// A [Document] owns a set of root models and tracks every model reachable
// from them through serializable attributes. Models join the document when
// they become reachable and leave it when they stop being reachable; a model
// belongs to at most one document at a time.
//
// Structural edits can be batched with [Document.Batch] so the reachable set
// is recomputed once, when the outermost batch ends.
//
// # Change events and patches
//
// Every mutation of a document produces a typed change event delivered to
// the callbacks registered with [Document.OnChange]. Events are turned into
// a self-contained [Patch] with [Document.CreateJSONPatch] and replayed on
// the other peer with [Document.ApplyJSONPatch]. A patch is validated in full
// before anything is written: a malformed patch leaves the target document
// untouched.
//
// # Models
//
// Model types are declared as schemas in the [github.com/modelsync/modelsync/pkg/models]
// package and looked up by name through a [models.Registry] when a patch or
// a snapshot introduces models the document does not know yet.
package modelsync
