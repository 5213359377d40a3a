package memoservice

// Notifier receives change notifications after successful writes.
type Notifier interface {
	MemoChanged(windowID string, year int, deleted bool)
	WindowsChanged()
	PlanChanged(id string, deleted bool)
}

// Notifiers fans a notification out to several receivers.
type Notifiers []Notifier

func (ns Notifiers) MemoChanged(windowID string, year int, deleted bool) {
	for _, n := range ns {
		n.MemoChanged(windowID, year, deleted)
	}
}

func (ns Notifiers) WindowsChanged() {
	for _, n := range ns {
		n.WindowsChanged()
	}
}

func (ns Notifiers) PlanChanged(id string, deleted bool) {
	for _, n := range ns {
		n.PlanChanged(id, deleted)
	}
}
