/*
 * classvm - a class-file virtual machine
 * Derived from the Jacobin project. Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package interp

import (
	"fmt"

	"github.com/jacobin-classvm/classvm/internal/trace"
	"github.com/jacobin-classvm/classvm/internal/vmerr"
)

// InitClass runs className's class initializer if it has not already
// run, per spec.md §4.7's Unloaded -> Loaded -> Initializing ->
// Initialized state machine. Returns true the first time it is called
// for a class (whether or not the class has a <clinit> to run), false
// on every subsequent call -- including a
// recursive call made from within the initializer itself, which is a
// no-op rather than the source's unguarded re-entry (see DESIGN.md).
func (in *Interp) InitClass(className string) (bool, error) {
	rc, ok := in.Classes.Get(className)
	if !ok {
		return false, vmerr.Linkf(nil, "init_class: class %s not found", className)
	}

	if !rc.BeginInitializing() {
		return false, nil
	}

	m, ok := rc.FindInitMethod()
	if !ok {
		rc.FinishInitializing()
		return true, nil
	}

	trace.Fine(fmt.Sprintf("initializing class %s", className))
	if err := in.invoke(rc, m); err != nil {
		return false, vmerr.Linkf(err, "running <clinit> for %s", className)
	}

	rc.FinishInitializing()
	return true, nil
}
