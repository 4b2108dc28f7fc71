//go:build linux

package render

import (
	"reflect"
	"testing"

	"github.com/jezek/xgb/xproto"
)

func TestWindowHintsAtomNames(t *testing.T) {
	tests := []struct {
		name  string
		hints WindowHints
		want  []string
	}{
		{"none", WindowHints{}, nil},
		{"keep above", WindowHints{KeepAbove: true}, []string{"_NET_WM_STATE_ABOVE"}},
		{"both", WindowHints{KeepAbove: true, SkipTaskbar: true},
			[]string{"_NET_WM_STATE_ABOVE", "_NET_WM_STATE_SKIP_TASKBAR"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.hints.atomNames(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("atomNames() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApplyWindowHints_NoHints(t *testing.T) {
	if err := ApplyWindowHints("cutsim", WindowHints{}); err != nil {
		t.Errorf("ApplyWindowHints with no hints = %v, want nil", err)
	}
}

func TestApplyWindowHints_KeepAbove(t *testing.T) {
	t.Setenv("DISPLAY", ":cutsim-test-no-such-display")
	// Without an X server the request is silently dropped.
	if err := ApplyWindowHints("cutsim", WindowHints{KeepAbove: true}); err != nil {
		t.Errorf("ApplyWindowHints = %v, want nil", err)
	}
	CloseWindowHints()
}

func TestWindowHintApplier_Close(t *testing.T) {
	applier := &WindowHintApplier{
		atoms: make(map[string]xproto.Atom),
	}

	applier.Close()
	applier.Close()

	if applier.initDone {
		t.Error("initDone should be false after Close()")
	}
	if applier.conn != nil {
		t.Error("conn should be nil after Close()")
	}
}
