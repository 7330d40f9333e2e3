package api

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/filevault/internal/logging"
)

// Action labels published after a successful mutation.
const (
	ActionFolderCreated = "folder.created"
	ActionFolderRenamed = "folder.renamed"
	ActionFolderDeleted = "folder.deleted"
	ActionFileImported  = "file.imported"
	ActionFileUpdated   = "file.updated"
	ActionFileDeleted   = "file.deleted"
)

type ChangeListener func(action string)

type ListenerID uint64

// Notifier fans change events out to registered listeners.
//
// Each listener owns a goroutine draining its own unbounded FIFO mailbox.
// Publishing never blocks on a listener, and each listener sees events in
// publish order. Order across listeners is not defined.
type Notifier struct {
	log logging.Logger

	mu        sync.Mutex
	nextID    ListenerID
	listeners map[ListenerID]*mailbox
	closed    bool
	wg        sync.WaitGroup
}

func NewNotifier(log logging.Logger) *Notifier {
	return &Notifier{
		log:       log.With("module", "notifier"),
		listeners: make(map[ListenerID]*mailbox),
	}
}

// AddChangeListener registers fn and returns an id for removal. After Close
// it returns 0 and fn is never called.
func (n *Notifier) AddChangeListener(fn ChangeListener) ListenerID {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed || fn == nil {
		return 0
	}

	n.nextID++
	id := n.nextID
	mb := newMailbox()
	n.listeners[id] = mb

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.drain(id, mb, fn)
	}()
	return id
}

// RemoveChangeListener unregisters id. Events already queued for it are
// still delivered; later ones are not. It is safe to call from inside the
// listener itself.
func (n *Notifier) RemoveChangeListener(id ListenerID) {
	n.mu.Lock()
	mb, ok := n.listeners[id]
	delete(n.listeners, id)
	n.mu.Unlock()
	if ok {
		mb.close()
	}
}

// NotifyChangeListeners queues action for every registered listener.
func (n *Notifier) NotifyChangeListeners(action string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, mb := range n.listeners {
		mb.push(action)
	}
}

// Len returns the number of registered listeners.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners)
}

// Close unregisters every listener and waits until their queued events have
// been delivered.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	boxes := n.listeners
	n.listeners = make(map[ListenerID]*mailbox)
	n.mu.Unlock()

	for _, mb := range boxes {
		mb.close()
	}
	n.wg.Wait()
}

func (n *Notifier) drain(id ListenerID, mb *mailbox, fn ChangeListener) {
	for {
		action, ok := mb.pop()
		if !ok {
			return
		}
		n.deliver(id, fn, action)
	}
}

func (n *Notifier) deliver(id ListenerID, fn ChangeListener, action string) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Error(context.Background(), "change listener panicked", "listener", id, "action", action, "panic", r)
		}
	}()
	fn(action)
}

type mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []string
	closed bool
}

func newMailbox() *mailbox {
	mb := &mailbox{}
	mb.cond = sync.NewCond(&mb.mu)
	return mb
}

func (mb *mailbox) push(action string) {
	mb.mu.Lock()
	if !mb.closed {
		mb.queue = append(mb.queue, action)
		mb.cond.Signal()
	}
	mb.mu.Unlock()
}

// pop blocks until an event is queued or the mailbox is closed and empty.
func (mb *mailbox) pop() (string, bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for len(mb.queue) == 0 && !mb.closed {
		mb.cond.Wait()
	}
	if len(mb.queue) == 0 {
		return "", false
	}
	action := mb.queue[0]
	mb.queue[0] = ""
	mb.queue = mb.queue[1:]
	return action, true
}

func (mb *mailbox) close() {
	mb.mu.Lock()
	mb.closed = true
	mb.cond.Broadcast()
	mb.mu.Unlock()
}
