// Package journal implements the crash-consistency recovery log: an
// append-only file of mutation records, fsync'd by a single dedicated
// writer goroutine before the caller may report success, and replayed
// against a freshly-loaded snapshot at startup.
package journal

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"github.com/dirbookd/server/internal/store"
	"github.com/dirbookd/server/internal/types"
)

// opcode is the leading byte of a journal line.
type opcode byte

const (
	opPut    opcode = '1'
	opDelete opcode = '0'
)

// Tag identifies which store a journal record belongs to. It exists
// because the Normal and Privileged user tables validate under the same
// types.UserKind and so cannot be told apart by record shape alone the
// way Main records can.
type Tag byte

const (
	TagMain       Tag = 'M'
	TagPrivileged Tag = 'P'
	TagNormal     Tag = 'N'
)

// queueDepth bounds the number of mutations awaiting fsync at once.
const queueDepth = 256

type job struct {
	op         opcode
	tag        Tag
	key, value string
	done       chan error
}

// Pending is a handle to an enqueued mutation awaiting durable fsync.
// Callers release any store write-exclusivity before calling Wait, so
// the disk barrier is never taken while holding the coordinator lock.
type Pending struct {
	done chan error
}

// Wait blocks until the mutation has been fsync'd and reports the result.
func (p *Pending) Wait() error {
	return <-p.done
}

// Journal is an append-only, fsync-on-write mutation log served by a
// single writer goroutine draining a bounded queue of jobs, so that
// concurrent callers never serialize against each other's disk I/O
// beyond the queue itself.
type Journal struct {
	path string
	f    *os.File

	jobs chan job
	wg   sync.WaitGroup
}

// Open opens (creating if necessary) the journal file at path for
// appending and starts its writer goroutine.
func Open(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	j := &Journal{
		path: path,
		f:    f,
		jobs: make(chan job, queueDepth),
	}
	j.wg.Add(1)
	go j.run()
	return j, nil
}

func (j *Journal) run() {
	defer j.wg.Done()
	for jb := range j.jobs {
		jb.done <- j.writeAndSync(jb.op, jb.tag, jb.key, jb.value)
	}
}

// Exists reports whether a journal file is present at path, which means
// the in-memory state as of the last snapshot is stale by exactly the
// journal's contents.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// EnqueuePut submits an add-or-overwrite mutation to the writer
// goroutine and returns immediately with a handle the caller waits on
// after releasing its store write-exclusivity.
func (j *Journal) EnqueuePut(tag Tag, key, value string) *Pending {
	return j.enqueue(opPut, tag, key, value)
}

// EnqueueDelete submits a remove mutation to the writer goroutine.
func (j *Journal) EnqueueDelete(tag Tag, key string) *Pending {
	return j.enqueue(opDelete, tag, key, "")
}

func (j *Journal) enqueue(op opcode, tag Tag, key, value string) *Pending {
	done := make(chan error, 1)
	j.jobs <- job{op: op, tag: tag, key: key, value: value, done: done}
	return &Pending{done: done}
}

// AppendPut is a synchronous convenience wrapper around EnqueuePut, for
// callers with no coordinator lock to release first.
func (j *Journal) AppendPut(tag Tag, key, value string) error {
	return j.EnqueuePut(tag, key, value).Wait()
}

// AppendDelete is a synchronous convenience wrapper around EnqueueDelete.
func (j *Journal) AppendDelete(tag Tag, key string) error {
	return j.EnqueueDelete(tag, key).Wait()
}

func (j *Journal) writeAndSync(op opcode, tag Tag, key, value string) error {
	line := fmt.Sprintf("%c%c%s%c%s\n", op, tag, key, types.KeyValueSeparator, value)
	if _, err := j.f.WriteString(line); err != nil {
		return fmt.Errorf("journal: write: %w", err)
	}
	if err := j.f.Sync(); err != nil {
		return fmt.Errorf("journal: fsync: %w", err)
	}
	return nil
}

// drain closes the job queue and waits for the writer goroutine to fully
// process whatever was already enqueued, so no mutation a caller has
// been handed a Pending for is ever lost out from under it.
func (j *Journal) drain() {
	close(j.jobs)
	j.wg.Wait()
}

// Close closes the underlying file without removing it, after draining
// any mutations still in flight.
func (j *Journal) Close() error {
	j.drain()
	return j.f.Close()
}

// Retire closes and deletes the journal file. Called only at the end of a
// clean shutdown, after a fresh snapshot has been committed.
func (j *Journal) Retire() error {
	j.drain()
	if err := j.f.Close(); err != nil {
		return fmt.Errorf("journal: close before retire: %w", err)
	}
	if err := os.Remove(j.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("journal: remove: %w", err)
	}
	return nil
}

// Replay reads every line of the journal at path whose tag matches want
// and applies it to s in order. Invalid lines are skipped (reported via
// onInvalid) rather than aborting recovery. It does not delete or
// truncate the journal: that is the caller's responsibility once all
// stores have replayed cleanly and a fresh snapshot has been written.
func Replay(path string, want Tag, s *store.Store, onInvalid func(lineNo int, line string)) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("journal: open for replay: %w", err)
	}
	defer f.Close()

	lineNo := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, types.BuffSize), types.BuffSize*4)
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if len(line) < 3 {
			if onInvalid != nil {
				onInvalid(lineNo, line)
			}
			continue
		}
		op := opcode(line[0])
		tag := Tag(line[1])
		if tag != TagMain && tag != TagPrivileged && tag != TagNormal {
			if onInvalid != nil {
				onInvalid(lineNo, line)
			}
			continue
		}
		if tag != want {
			continue
		}
		rest := line[2:]
		var key, value string
		switch op {
		case opPut:
			idx := indexByte(rest, byte(types.KeyValueSeparator))
			if idx < 0 {
				if onInvalid != nil {
					onInvalid(lineNo, line)
				}
				continue
			}
			key, value = rest[:idx], rest[idx+1:]
			if !types.ValidKey(s.Kind(), key) || !types.ValidValue(s.Kind(), value) {
				if onInvalid != nil {
					onInvalid(lineNo, line)
				}
				continue
			}
			if err := s.Insert(key, value); err != nil && onInvalid != nil {
				onInvalid(lineNo, line)
			}
		case opDelete:
			idx := indexByte(rest, byte(types.KeyValueSeparator))
			if idx < 0 {
				if onInvalid != nil {
					onInvalid(lineNo, line)
				}
				continue
			}
			key = rest[:idx]
			if !types.ValidKey(s.Kind(), key) {
				if onInvalid != nil {
					onInvalid(lineNo, line)
				}
				continue
			}
			if err := s.Remove(key); err != nil && onInvalid != nil {
				onInvalid(lineNo, line)
			}
		default:
			if onInvalid != nil {
				onInvalid(lineNo, line)
			}
		}
	}
	return scanner.Err()
}

func indexByte(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}
