// Package notify is the transient success/error notice channel shared by a
// mounted console screen and its controllers.
package notify

import (
	"errors"
	"sync"
	"time"

	"github.com/huangang/larkticket/pkg/apiclient"
)

// DefaultTTL is how long a notice stays visible.
const DefaultTTL = 3 * time.Second

// GenericFailure is shown for transport failures, whose raw error is not
// meant for operators.
const GenericFailure = "请求失败，请稍后重试"

type Level int

const (
	LevelSuccess Level = iota
	LevelError
)

func (l Level) String() string {
	if l == LevelError {
		return "error"
	}
	return "success"
}

type Notice struct {
	Level   Level
	Text    string
	Expires time.Time
}

// Board holds the notices of one mounted screen. It is created on mount and
// closed on unmount; posting to a closed board is a no-op.
type Board struct {
	mu      sync.Mutex
	ttl     time.Duration
	notices []Notice
	closed  bool
	now     func() time.Time
}

func NewBoard(ttl time.Duration) *Board {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Board{ttl: ttl, now: time.Now}
}

func (b *Board) post(level Level, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.notices = append(b.notices, Notice{Level: level, Text: text, Expires: b.now().Add(b.ttl)})
}

func (b *Board) Success(text string) {
	b.post(LevelSuccess, text)
}

func (b *Board) Error(text string) {
	b.post(LevelError, text)
}

// Failure posts the message of a business error, or GenericFailure for
// anything else.
func (b *Board) Failure(err error) {
	var be *apiclient.BusinessError
	if errors.As(err, &be) && be.Error() != "" {
		b.Error(be.Error())
		return
	}
	b.Error(GenericFailure)
}

// Active drops expired notices and returns the rest, oldest first.
func (b *Board) Active() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	kept := b.notices[:0]
	for _, n := range b.notices {
		if now.Before(n.Expires) {
			kept = append(kept, n)
		}
	}
	b.notices = kept
	return append([]Notice(nil), kept...)
}

// Close discards pending notices and disables the board.
func (b *Board) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.notices = nil
}

func (b *Board) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Adopt copies notices that are still active, typically from the board of
// the screen being unmounted, keeping their original expiry.
func (b *Board) Adopt(notices []Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	now := b.now()
	for _, n := range notices {
		if now.Before(n.Expires) {
			b.notices = append(b.notices, n)
		}
	}
}
