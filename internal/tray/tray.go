// Package tray provides a system tray menu for the crabwatch pipeline.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"
)

// Tray represents the system tray application.
type Tray struct {
	onFreeze  func() bool
	onCapture func()
	onRecord  func() bool
	onStop    func()
	onOpen    func()
	onQuit    func()
	mu        sync.RWMutex

	// Menu items stored for later updates
	menuFreeze *systray.MenuItem
	menuRecord *systray.MenuItem
	menuCount  *systray.MenuItem
}

// New creates a new Tray instance.
func New() *Tray {
	return &Tray{}
}

// OnFreeze sets the callback for the freeze item. It returns the new frozen state.
func (t *Tray) OnFreeze(fn func() bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onFreeze = fn
}

// OnCapture sets the callback for the capture item.
func (t *Tray) OnCapture(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCapture = fn
}

// OnRecord sets the callback for the record item. It returns whether a
// recording is active afterwards.
func (t *Tray) OnRecord(fn func() bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onRecord = fn
}

// OnStopDetection sets the callback for the stop detection item.
func (t *Tray) OnStopDetection(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onStop = fn
}

// OnOpen sets the callback for the dashboard item.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit stops a running tray.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Crabwatch")
	systray.SetTooltip("Crabwatch camera")

	t.mu.Lock()
	t.menuFreeze = systray.AddMenuItem("Freeze", "Freeze or resume the camera views")
	menuCapture := systray.AddMenuItem("Capture", "Save the current frame")
	t.menuRecord = systray.AddMenuItem("● Record", "Start or stop recording")
	systray.AddSeparator()

	t.menuCount = systray.AddMenuItem("Crabs: 0", "Objects in the last detected frame")
	t.menuCount.Disable()
	menuStop := systray.AddMenuItem("Stop detection", "Stop the running detection")
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open dashboard...", "Open the dashboard in a browser")
	menuQuit := systray.AddMenuItem("Quit", "Quit Crabwatch")
	menuFreeze, menuRecord := t.menuFreeze, t.menuRecord
	t.mu.Unlock()

	go func() {
		for {
			select {
			case <-menuFreeze.ClickedCh:
				t.handleFreeze()
			case <-menuCapture.ClickedCh:
				t.handleCapture()
			case <-menuRecord.ClickedCh:
				t.handleRecord()
			case <-menuStop.ClickedCh:
				t.handleStopDetection()
			case <-menuOpen.ClickedCh:
				t.handleOpen()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				systray.Quit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func (t *Tray) handleFreeze() {
	t.mu.RLock()
	callback := t.onFreeze
	t.mu.RUnlock()

	if callback == nil {
		return
	}
	frozen := callback()

	title := "Freeze"
	if frozen {
		title = "Resume"
	}
	t.setTitle(t.menuFreezeItem(), title)
}

func (t *Tray) handleCapture() {
	t.mu.RLock()
	callback := t.onCapture
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleRecord() {
	t.mu.RLock()
	callback := t.onRecord
	t.mu.RUnlock()

	if callback == nil {
		return
	}
	recording := callback()

	title := "● Record"
	if recording {
		title = "■ Stop recording"
	}
	t.setTitle(t.menuRecordItem(), title)
}

func (t *Tray) handleStopDetection() {
	t.mu.RLock()
	callback := t.onStop
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleOpen() {
	t.mu.RLock()
	callback := t.onOpen
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// SetCount updates the object count shown in the menu.
func (t *Tray) SetCount(n int) {
	t.mu.RLock()
	item := t.menuCount
	t.mu.RUnlock()

	t.setTitle(item, fmt.Sprintf("Crabs: %d", n))
}

func (t *Tray) menuFreezeItem() *systray.MenuItem {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.menuFreeze
}

func (t *Tray) menuRecordItem() *systray.MenuItem {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.menuRecord
}

// setTitle is a no-op before the menu exists.
func (t *Tray) setTitle(item *systray.MenuItem, title string) {
	if item != nil {
		item.SetTitle(title)
	}
}
