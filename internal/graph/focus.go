package graph

// FocusHandler receives the source record of a focused datum, or nil on unfocus.
type FocusHandler func(record any)

// FocusHandlers maps entity kinds to their handler.
type FocusHandlers map[string]FocusHandler

// FocusHandlerRef selects the handler a layer reports focus changes to.
// It is either ByName or Computed.
type FocusHandlerRef interface {
	isFocusHandlerRef()
}

// ByName resolves to the handler registered under the name.
type ByName string

// Computed resolves the handler from the focused datum.
type Computed func(handlers FocusHandlers, d *Datum) FocusHandler

func (ByName) isFocusHandlerRef() {}
func (Computed) isFocusHandlerRef() {}

// ResolveHandler returns the handler ref points to for d, or nil.
func ResolveHandler(ref FocusHandlerRef, handlers FocusHandlers, d *Datum) FocusHandler {
	switch r := ref.(type) {
	case ByName:
		return handlers[string(r)]
	case Computed:
		if r == nil {
			return nil
		}
		return r(handlers, d)
	default:
		return nil
	}
}
