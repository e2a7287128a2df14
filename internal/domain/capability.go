package domain

// IsPushCapable reports whether p additionally implements PushCapable, and
// returns the asserted interface when it does. The module instance uses
// this once at load time to decide whether the source needs a scheduler
// slot, a webhook route, or both.
func IsPushCapable(p SourcePlugin) (PushCapable, bool) {
	pc, ok := p.(PushCapable)
	return pc, ok
}
