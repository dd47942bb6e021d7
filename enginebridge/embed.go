package enginebridge

import (
	"fmt"

	"github.com/prism-engine/editor-host/logger"
	"github.com/prism-engine/editor-host/protocol"
	"github.com/prism-engine/editor-host/windowing"
)

// EmbedController owns the splice between the engine's rendered output
// window and the editor's embedding region. The surface handle is a weak
// reference: discovered, reparented, never destroyed, and dropped when the
// owning process exits.
//
// The parking window exists because the native substrate destroys child
// windows together with their parent. When the region's handle is torn down
// for editor-side reasons (re-docking), the surface is reparented to the
// parking window first and moved back once the region is recreated. Parking
// is skipped during a genuine session shutdown so the surface dies with its
// process.
//
// Every method must run on the UI thread.
type EmbedController struct {
	sys windowing.System

	region       windowing.Handle
	parking      windowing.Handle
	surface      windowing.Handle
	parked       bool
	shuttingDown bool
}

// NewEmbedController creates the controller and its parking window. The
// parking window lives until Close, spanning every recreation of the region
// handle.
func NewEmbedController(sys windowing.System, region windowing.Handle) (*EmbedController, error) {
	parking, err := sys.CreateHostWindow("prism-surface-parking", false)
	if err != nil {
		return nil, fmt.Errorf("create parking window: %w", err)
	}
	return &EmbedController{sys: sys, region: region, parking: parking}, nil
}

// Region returns the current embedding region handle.
func (e *EmbedController) Region() windowing.Handle {
	return e.region
}

// Surface returns the embedded surface handle if it is still alive, else
// None. Liveness is delegated to the substrate; the handle itself is never
// trusted across process exit.
func (e *EmbedController) Surface() windowing.Handle {
	if e.surface == windowing.None || !e.sys.IsWindow(e.surface) {
		return windowing.None
	}
	return e.surface
}

// Attached reports whether a live surface is currently embedded (not
// necessarily unparked).
func (e *EmbedController) Attached() bool {
	return e.Surface() != windowing.None
}

// Discover searches the region's direct children for the engine's output
// window class.
func (e *EmbedController) Discover() (windowing.Handle, bool) {
	return e.sys.FindChildByClass(e.region, protocol.SurfaceClassName)
}

// Adopt takes ownership of placement for the discovered surface: reparent
// under the region, fill the client area, raise, and hand it focus.
func (e *EmbedController) Adopt(surface windowing.Handle) error {
	if err := e.sys.SetParent(surface, e.region); err != nil {
		return fmt.Errorf("reparent surface: %w", err)
	}
	e.surface = surface
	e.parked = false
	if err := e.fitToRegion(); err != nil {
		return err
	}
	if err := e.sys.Show(surface); err != nil {
		return err
	}
	if err := e.sys.BringToFront(surface); err != nil {
		return err
	}
	if err := e.sys.FocusWindow(surface); err != nil {
		return err
	}
	return nil
}

// Resize re-fits the surface to the region's client area. Safe to call at
// any time; parked or absent surfaces are left alone.
func (e *EmbedController) Resize() error {
	if e.parked || e.Surface() == windowing.None {
		return nil
	}
	return e.fitToRegion()
}

// RegionWillBeDestroyed parks the surface ahead of the region handle's
// teardown so it is not destroyed as a child. During shutdown the surface is
// deliberately left in place.
func (e *EmbedController) RegionWillBeDestroyed() {
	if e.shuttingDown {
		return
	}
	surface := e.Surface()
	if surface == windowing.None || e.parked {
		return
	}
	if err := e.sys.SetParent(surface, e.parking); err != nil {
		logger.Warn("parking surface failed", "error", err)
		return
	}
	e.parked = true
}

// RegionRecreated restores a parked surface under the region's new handle
// and re-fits it. Pause state is untouched; parking must be invisible to the
// engine process.
func (e *EmbedController) RegionRecreated(region windowing.Handle) {
	e.region = region
	surface := e.Surface()
	if surface == windowing.None || !e.parked {
		return
	}
	if err := e.sys.SetParent(surface, e.region); err != nil {
		logger.Warn("restoring surface failed", "error", err)
		return
	}
	e.parked = false
	if err := e.fitToRegion(); err != nil {
		logger.Warn("re-fitting restored surface failed", "error", err)
	}
}

// RegionMoved handles a logical container change without a handle
// destroy/recreate cycle: the surface follows the region directly.
func (e *EmbedController) RegionMoved(region windowing.Handle) {
	e.region = region
	surface := e.Surface()
	if surface == windowing.None || e.parked {
		return
	}
	if err := e.sys.SetParent(surface, e.region); err != nil {
		logger.Warn("moving surface with region failed", "error", err)
		return
	}
	if err := e.fitToRegion(); err != nil {
		logger.Warn("re-fitting moved surface failed", "error", err)
	}
}

// BeginShutdown marks the session as genuinely stopping, disabling parking.
func (e *EmbedController) BeginShutdown() {
	e.shuttingDown = true
}

// Release drops the weak surface reference after the owning process exited
// and re-arms parking for the next session.
func (e *EmbedController) Release() {
	e.surface = windowing.None
	e.parked = false
	e.shuttingDown = false
}

// Close destroys the parking window. Called when the embedding region itself
// closes for good.
func (e *EmbedController) Close() {
	if e.parking != windowing.None {
		if err := e.sys.DestroyWindow(e.parking); err != nil {
			logger.Warn("destroying parking window failed", "error", err)
		}
		e.parking = windowing.None
	}
}

func (e *EmbedController) fitToRegion() error {
	r, err := e.sys.WindowRect(e.region)
	if err != nil {
		return fmt.Errorf("region rect: %w", err)
	}
	fit := windowing.Rect{X: 0, Y: 0, Width: r.Width, Height: r.Height}
	if err := e.sys.Move(e.surface, fit); err != nil {
		return fmt.Errorf("fit surface: %w", err)
	}
	return nil
}
