package client

import (
	"github.com/ValentinKolb/voltc/rpc/transport/base"
	"github.com/puzpuzpuz/xsync/v3"
	"slices"
	"time"
)

// pendingInvocation is the bookkeeping for one request that has been
// accepted by the engine and not yet resolved
type pendingInvocation struct {
	id        int64
	callback  ICallback
	channel   *base.Channel
	submitted time.Time
	procedure string
}

// pendingTable maps correlation ids to in-flight invocations. Entries are
// added and removed only by the engine goroutine; Len may be called from any
// goroutine (metrics).
type pendingTable struct {
	entries *xsync.MapOf[int64, *pendingInvocation]
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: xsync.NewMapOf[int64, *pendingInvocation]()}
}

// add registers an entry. It returns false if the id is already live.
func (p *pendingTable) add(entry *pendingInvocation) bool {
	_, loaded := p.entries.LoadOrStore(entry.id, entry)
	return !loaded
}

// take removes and returns the entry for id
func (p *pendingTable) take(id int64) (*pendingInvocation, bool) {
	return p.entries.LoadAndDelete(id)
}

// takeChannel removes every entry bound to ch and returns them in ascending
// correlation order
func (p *pendingTable) takeChannel(ch *base.Channel) []*pendingInvocation {
	return p.takeWhere(func(entry *pendingInvocation) bool {
		return entry.channel == ch
	})
}

// takeAll removes every entry and returns them in ascending correlation order
func (p *pendingTable) takeAll() []*pendingInvocation {
	return p.takeWhere(func(*pendingInvocation) bool { return true })
}

func (p *pendingTable) takeWhere(match func(*pendingInvocation) bool) []*pendingInvocation {
	var taken []*pendingInvocation
	p.entries.Range(func(id int64, entry *pendingInvocation) bool {
		if match(entry) {
			taken = append(taken, entry)
		}
		return true
	})
	for _, entry := range taken {
		p.entries.Delete(entry.id)
	}
	slices.SortFunc(taken, func(a, b *pendingInvocation) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		default:
			return 0
		}
	})
	return taken
}

// len returns the number of live entries
func (p *pendingTable) len() int {
	return p.entries.Size()
}
