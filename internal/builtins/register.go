package builtins

import "github.com/relayd/relayd/internal/pluginloader"

// Register adds every built-in factory this package implements to loader,
// under the plugin Kind each belongs to. Call before the first Load.
func Register(loader *pluginloader.Loader) {
	loader.RegisterBuiltin(pluginloader.KindSource, "http_poll", NewHTTPPollSource)
	loader.RegisterBuiltin(pluginloader.KindActor, "http_post", NewHTTPPostActor)
	loader.RegisterBuiltin(pluginloader.KindTransform, "builtin_redact", NewRedactTransform)
}
