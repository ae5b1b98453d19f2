package doc

// Event tells an observer a field changed.
type Event struct {
	Field    string
	Inserted int
	Deleted  int
	Local    bool
}

type observer struct {
	field string
	fn    func(Event)
}

// Observe calls fn after every change of field; "" observes every
// field. Callbacks run on the goroutine that made the change, after the
// document lock is released. The returned func cancels.
func (d *Doc) Observe(field string, fn func(Event)) (cancel func()) {
	d.obsLock.Lock()
	d.obsSeq++
	key := d.obsSeq
	d.obsLock.Unlock()
	d.observers.Store(key, &observer{field: field, fn: fn})
	return func() {
		d.observers.Delete(key)
	}
}

func (d *Doc) notify(evs []Event) {
	for _, ev := range evs {
		d.observers.Range(func(_ uint64, o *observer) bool {
			if o.field == "" || o.field == ev.Field {
				o.fn(ev)
			}
			return true
		})
	}
}

// mergeEvents folds the events of one batch into one event per field,
// keeping the field order of first appearance.
func mergeEvents(evs []Event) []Event {
	if len(evs) < 2 {
		return evs
	}
	ret := make([]Event, 0, len(evs))
	at := make(map[string]int)
	for _, ev := range evs {
		i, ok := at[ev.Field]
		if !ok {
			at[ev.Field] = len(ret)
			ret = append(ret, ev)
			continue
		}
		ret[i].Inserted += ev.Inserted
		ret[i].Deleted += ev.Deleted
		ret[i].Local = ret[i].Local && ev.Local
	}
	return ret
}
