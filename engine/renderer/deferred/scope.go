package deferred

import "github.com/spaghettifunk/gbuffer/engine/renderer/driver"

// releaser collects the objects created by a multi-step construction and
// releases them in reverse order when the construction fails.
type releaser struct {
	fns []func()
}

func (r *releaser) push(d driver.Destroyer) { r.fns = append(r.fns, d.Destroy) }

func (r *releaser) pushFunc(fn func()) { r.fns = append(r.fns, fn) }

// release runs every collected function, most recent first.
func (r *releaser) release() {
	for i := len(r.fns) - 1; i >= 0; i-- {
		r.fns[i]()
	}
	r.fns = nil
}

// onError releases everything when *err is non-nil. Meant to be deferred.
func (r *releaser) onError(err *error) {
	if *err != nil {
		r.release()
		return
	}
	r.fns = nil
}
