//go:build linux

package render

import (
	"errors"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

// netWMStateAdd is the _NET_WM_STATE client message action that sets a state.
const netWMStateAdd = 1

// maxTreeDepth bounds the window tree search for the preview window.
const maxTreeDepth = 4

var errWindowNotFound = errors.New("preview window not found")

// WindowHints lists the EWMH states requested for the preview window.
type WindowHints struct {
	KeepAbove   bool
	SkipTaskbar bool
}

func (h WindowHints) atomNames() []string {
	var names []string
	if h.KeepAbove {
		names = append(names, "_NET_WM_STATE_ABOVE")
	}
	if h.SkipTaskbar {
		names = append(names, "_NET_WM_STATE_SKIP_TASKBAR")
	}
	return names
}

// WindowHintApplier sends EWMH state requests for a window found by title.
// It caches the X11 connection and atoms.
type WindowHintApplier struct {
	mu       sync.Mutex
	conn     *xgb.Conn
	atoms    map[string]xproto.Atom
	initDone bool
}

var globalHintApplier = &WindowHintApplier{
	atoms: make(map[string]xproto.Atom),
}

// ApplyWindowHints asks the window manager to apply hints to the window
// titled title. It must be called once the window is mapped. Environments
// without X11 are ignored and return nil.
func ApplyWindowHints(title string, hints WindowHints) error {
	if len(hints.atomNames()) == 0 {
		return nil
	}
	return globalHintApplier.Apply(title, hints)
}

// Apply sends one _NET_WM_STATE request per hint to the root window.
func (h *WindowHintApplier) Apply(title string, hints WindowHints) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.ensureInit(); err != nil {
		return nil // no X server
	}

	setup := xproto.Setup(h.conn)
	if len(setup.Roots) == 0 {
		return nil
	}
	root := setup.Roots[0].Root

	window, err := h.findWindow(root, title, 0)
	if err != nil {
		window, err = h.activeWindow(root)
		if err != nil || window == xproto.WindowNone {
			return nil
		}
	}

	stateAtom, err := h.getAtom("_NET_WM_STATE")
	if err != nil {
		return err
	}

	for _, name := range hints.atomNames() {
		atom, err := h.getAtom(name)
		if err != nil {
			return err
		}
		ev := xproto.ClientMessageEvent{
			Format: 32,
			Window: window,
			Type:   stateAtom,
			Data:   xproto.ClientMessageDataUnionData32New([]uint32{netWMStateAdd, uint32(atom), 0, 1, 0}),
		}
		mask := uint32(xproto.EventMaskSubstructureRedirect | xproto.EventMaskSubstructureNotify)
		if err := xproto.SendEventChecked(h.conn, false, root, mask, string(ev.Bytes())).Check(); err != nil {
			return err
		}
	}
	return nil
}

func (h *WindowHintApplier) ensureInit() error {
	if h.initDone {
		return nil
	}

	conn, err := xgb.NewConn()
	if err != nil {
		return err
	}

	h.conn = conn
	h.initDone = true
	return nil
}

// getAtom retrieves or interns an X11 atom by name.
func (h *WindowHintApplier) getAtom(name string) (xproto.Atom, error) {
	if atom, ok := h.atoms[name]; ok {
		return atom, nil
	}

	reply, err := xproto.InternAtom(h.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}

	h.atoms[name] = reply.Atom
	return reply.Atom, nil
}

// findWindow walks the window tree below parent looking for a window whose
// _NET_WM_NAME or WM_NAME equals title.
func (h *WindowHintApplier) findWindow(parent xproto.Window, title string, depth int) (xproto.Window, error) {
	if depth > maxTreeDepth {
		return xproto.WindowNone, errWindowNotFound
	}

	tree, err := xproto.QueryTree(h.conn, parent).Reply()
	if err != nil {
		return xproto.WindowNone, err
	}

	for _, child := range tree.Children {
		if h.windowTitle(child) == title {
			return child, nil
		}
	}
	for _, child := range tree.Children {
		if w, err := h.findWindow(child, title, depth+1); err == nil {
			return w, nil
		}
	}
	return xproto.WindowNone, errWindowNotFound
}

func (h *WindowHintApplier) windowTitle(window xproto.Window) string {
	for _, name := range []string{"_NET_WM_NAME", "WM_NAME"} {
		atom, err := h.getAtom(name)
		if err != nil {
			continue
		}
		reply, err := xproto.GetProperty(h.conn, false, window, atom,
			xproto.GetPropertyTypeAny, 0, 256).Reply()
		if err == nil && reply != nil && len(reply.Value) > 0 {
			return string(reply.Value)
		}
	}
	return ""
}

// activeWindow returns the focused window, used when the title search fails.
func (h *WindowHintApplier) activeWindow(root xproto.Window) (xproto.Window, error) {
	activeAtom, err := h.getAtom("_NET_ACTIVE_WINDOW")
	if err == nil {
		reply, err := xproto.GetProperty(h.conn, false, root, activeAtom,
			xproto.AtomWindow, 0, 1).Reply()
		if err == nil && reply != nil && len(reply.Value) >= 4 {
			return xproto.Window(xgb.Get32(reply.Value)), nil
		}
	}

	focusReply, err := xproto.GetInputFocus(h.conn).Reply()
	if err != nil {
		return xproto.WindowNone, err
	}
	return focusReply.Focus, nil
}

// Close releases the X11 connection.
func (h *WindowHintApplier) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conn != nil {
		h.conn.Close()
		h.conn = nil
	}
	h.initDone = false
	h.atoms = make(map[string]xproto.Atom)
}

// CloseWindowHints releases resources used by the window hint applier.
func CloseWindowHints() {
	globalHintApplier.Close()
}
