// Package directory wires together the three runtime stores (Main,
// Privileged users, Normal users), their two readers-writer coordinators
// (one for Main, one shared by the user pool), the recovery journal, and
// the persistence engine. It is the single place that knows how a
// mutation becomes "applied in memory, then journal fsync'd, then
// (eventually) snapshotted."
package directory

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/dirbookd/server/internal/credentials"
	"github.com/dirbookd/server/internal/journal"
	"github.com/dirbookd/server/internal/log"
	"github.com/dirbookd/server/internal/metrics"
	"github.com/dirbookd/server/internal/persistence"
	"github.com/dirbookd/server/internal/rwcoord"
	"github.com/dirbookd/server/internal/store"
	"github.com/dirbookd/server/internal/types"
)

const (
	mainSnapshotFile = "main_db.txt"
	privSnapshotFile = "priv_user_db.txt"
	normSnapshotFile = "norm_user_db.txt"
	journalFile      = "recovery_data.txt"
)

// Directory is the process-wide aggregate of every store the server
// serves requests against.
type Directory struct {
	dataDir string

	Main        *store.Store
	Users       *credentials.Store
	MainCoord   *rwcoord.Coordinator
	UserCoord   *rwcoord.Coordinator

	journal *journal.Journal
}

// Open loads (or initializes) the three stores from dataDir, replaying
// the recovery journal if one is present.
func Open(dataDir string, maxReaders int) (*Directory, error) {
	logger := log.WithComponent("directory")

	mainPath := filepath.Join(dataDir, mainSnapshotFile)
	privPath := filepath.Join(dataDir, privSnapshotFile)
	normPath := filepath.Join(dataDir, normSnapshotFile)
	journalPath := filepath.Join(dataDir, journalFile)

	crashed := journal.Exists(journalPath)
	if crashed {
		logger.Warn().Msg("recovery journal present at startup: last snapshot is stale, replaying")
	}

	mainStore, err := persistence.Import(mainPath, types.MainKind, logInvalid(logger, "main"))
	if err != nil {
		return nil, fmt.Errorf("directory: import main store: %w", err)
	}
	privStore, err := persistence.Import(privPath, types.UserKind, logInvalid(logger, "privileged"))
	if err != nil {
		return nil, fmt.Errorf("directory: import privileged store: %w", err)
	}
	normStore, err := persistence.Import(normPath, types.UserKind, logInvalid(logger, "normal"))
	if err != nil {
		return nil, fmt.Errorf("directory: import normal store: %w", err)
	}

	if crashed {
		// Each journal line carries a tag identifying which of the three
		// stores it targets (Normal and Privileged both validate under
		// types.UserKind and so can't be told apart by record shape
		// alone), so replay filters by tag rather than routing by shape.
		if err := journal.Replay(journalPath, journal.TagMain, mainStore, logInvalid(logger, "main-replay")); err != nil {
			return nil, fmt.Errorf("directory: replay main journal: %w", err)
		}
		if err := journal.Replay(journalPath, journal.TagPrivileged, privStore, logInvalid(logger, "privileged-replay")); err != nil {
			return nil, fmt.Errorf("directory: replay privileged journal: %w", err)
		}
		if err := journal.Replay(journalPath, journal.TagNormal, normStore, logInvalid(logger, "normal-replay")); err != nil {
			return nil, fmt.Errorf("directory: replay normal journal: %w", err)
		}
	}

	jrnl, err := journal.Open(journalPath)
	if err != nil {
		return nil, fmt.Errorf("directory: open journal: %w", err)
	}

	d := &Directory{
		dataDir: dataDir,
		Main:     mainStore,
		Users:    &credentials.Store{Normal: normStore, Privileged: privStore},
		MainCoord: rwcoord.New(maxReaders),
		UserCoord: rwcoord.New(maxReaders),
		journal:   jrnl,
	}
	d.reportSizes()
	return d, nil
}

func logInvalid(logger zerolog.Logger, store string) func(int, string) {
	return func(lineNo int, line string) {
		logger.Warn().Int("line", lineNo).Str("store", store).Msg("skipping invalid record")
	}
}

// SearchMain looks up name under read access on the Main coordinator.
func (d *Directory) SearchMain(ctx context.Context, name string) (string, bool, error) {
	release, err := d.MainCoord.AcquireRead(ctx)
	if err != nil {
		return "", false, err
	}
	defer release()
	value, ok := d.Main.Find(name)
	return value, ok, nil
}

// AddMain inserts or overwrites a Main record, journals the mutation, and
// only returns success once the journal entry is fsync'd. The journal
// entry is enqueued while the coordinator's write exclusivity is still
// held (so concurrent mutations are journaled in the same order they
// were applied to the store), but the fsync wait itself happens after
// release, so the exclusive lock is never held across disk I/O.
func (d *Directory) AddMain(ctx context.Context, name, numbers string) error {
	release, err := d.MainCoord.AcquireWrite(ctx)
	if err != nil {
		return err
	}
	if err := d.Main.Insert(name, numbers); err != nil {
		release()
		return err
	}
	pending := d.journal.EnqueuePut(journal.TagMain, name, numbers)
	release()

	if err := pending.Wait(); err != nil {
		return fmt.Errorf("directory: journal add: %w", err)
	}
	metrics.JournalWritesTotal.Inc()
	metrics.StoreSize.WithLabelValues("main").Set(float64(d.Main.Len()))
	return nil
}

// DeleteMain removes a Main record and journals the deletion.
func (d *Directory) DeleteMain(ctx context.Context, name string) error {
	release, err := d.MainCoord.AcquireWrite(ctx)
	if err != nil {
		return err
	}
	if err := d.Main.Remove(name); err != nil {
		release()
		return err
	}
	pending := d.journal.EnqueueDelete(journal.TagMain, name)
	release()

	if err := pending.Wait(); err != nil {
		return fmt.Errorf("directory: journal delete: %w", err)
	}
	metrics.JournalWritesTotal.Inc()
	metrics.StoreSize.WithLabelValues("main").Set(float64(d.Main.Len()))
	return nil
}

// Authenticate looks up credentials under read access on the User
// coordinator.
func (d *Directory) Authenticate(ctx context.Context, username, hash string) (credentials.AuthResult, bool, error) {
	release, err := d.UserCoord.AcquireRead(ctx)
	if err != nil {
		return credentials.AuthResult{}, false, err
	}
	defer release()
	res, ok := d.Users.Authenticate(username, hash)
	return res, ok, nil
}

// UserExists reports whether username is known to either user table,
// under read access.
func (d *Directory) UserExists(ctx context.Context, username string) (bool, error) {
	release, err := d.UserCoord.AcquireRead(ctx)
	if err != nil {
		return false, err
	}
	defer release()
	return d.Users.Exists(username), nil
}

// AddPrivilegedUser inserts username into the privileged table with
// hash. If username is already present in the normal table, it is
// instead promoted in place (its existing hash carried over, hash
// ignored) so it ends up in exactly one table, never both.
func (d *Directory) AddPrivilegedUser(ctx context.Context, username, hash string) error {
	release, err := d.UserCoord.AcquireWrite(ctx)
	if err != nil {
		return err
	}

	normHash, wasNormal := d.Users.Normal.Find(username)
	if wasNormal {
		if err := d.Users.Promote(username); err != nil {
			release()
			return fmt.Errorf("directory: promote user: %w", err)
		}
	} else if err := d.Users.AddPrivileged(username, hash); err != nil {
		release()
		return err
	}

	var delPending, putPending *journal.Pending
	if wasNormal {
		delPending = d.journal.EnqueueDelete(journal.TagNormal, username)
		putPending = d.journal.EnqueuePut(journal.TagPrivileged, username, normHash)
	} else {
		putPending = d.journal.EnqueuePut(journal.TagPrivileged, username, hash)
	}
	release()

	if delPending != nil {
		if err := delPending.Wait(); err != nil {
			return fmt.Errorf("directory: journal promote delete: %w", err)
		}
		metrics.JournalWritesTotal.Inc()
	}
	if err := putPending.Wait(); err != nil {
		return fmt.Errorf("directory: journal promote put: %w", err)
	}
	metrics.JournalWritesTotal.Inc()
	metrics.StoreSize.WithLabelValues("privileged").Set(float64(d.Users.Privileged.Len()))
	metrics.StoreSize.WithLabelValues("normal").Set(float64(d.Users.Normal.Len()))
	return nil
}

// AddNormalUser inserts username into the normal table with hash. If
// username is already present in the privileged table, it is instead
// demoted in place (its existing hash carried over, hash ignored).
func (d *Directory) AddNormalUser(ctx context.Context, username, hash string) error {
	release, err := d.UserCoord.AcquireWrite(ctx)
	if err != nil {
		return err
	}

	privHash, wasPrivileged := d.Users.Privileged.Find(username)
	if wasPrivileged {
		if err := d.Users.Demote(username); err != nil {
			release()
			return fmt.Errorf("directory: demote user: %w", err)
		}
	} else if err := d.Users.AddNormal(username, hash); err != nil {
		release()
		return err
	}

	var delPending, putPending *journal.Pending
	if wasPrivileged {
		delPending = d.journal.EnqueueDelete(journal.TagPrivileged, username)
		putPending = d.journal.EnqueuePut(journal.TagNormal, username, privHash)
	} else {
		putPending = d.journal.EnqueuePut(journal.TagNormal, username, hash)
	}
	release()

	if delPending != nil {
		if err := delPending.Wait(); err != nil {
			return fmt.Errorf("directory: journal demote delete: %w", err)
		}
		metrics.JournalWritesTotal.Inc()
	}
	if err := putPending.Wait(); err != nil {
		return fmt.Errorf("directory: journal demote put: %w", err)
	}
	metrics.JournalWritesTotal.Inc()
	metrics.StoreSize.WithLabelValues("privileged").Set(float64(d.Users.Privileged.Len()))
	metrics.StoreSize.WithLabelValues("normal").Set(float64(d.Users.Normal.Len()))
	return nil
}

// RemovePrivilegedUser deletes username from the privileged table and
// journals the deletion.
func (d *Directory) RemovePrivilegedUser(ctx context.Context, username string) error {
	release, err := d.UserCoord.AcquireWrite(ctx)
	if err != nil {
		return err
	}
	if err := d.Users.RemovePrivileged(username); err != nil {
		release()
		return err
	}
	pending := d.journal.EnqueueDelete(journal.TagPrivileged, username)
	release()

	if err := pending.Wait(); err != nil {
		return fmt.Errorf("directory: journal remove privileged: %w", err)
	}
	metrics.JournalWritesTotal.Inc()
	metrics.StoreSize.WithLabelValues("privileged").Set(float64(d.Users.Privileged.Len()))
	return nil
}

// RemoveNormalUser deletes username from the normal table and journals
// the deletion.
func (d *Directory) RemoveNormalUser(ctx context.Context, username string) error {
	release, err := d.UserCoord.AcquireWrite(ctx)
	if err != nil {
		return err
	}
	if err := d.Users.RemoveNormal(username); err != nil {
		release()
		return err
	}
	pending := d.journal.EnqueueDelete(journal.TagNormal, username)
	release()

	if err := pending.Wait(); err != nil {
		return fmt.Errorf("directory: journal remove normal: %w", err)
	}
	metrics.JournalWritesTotal.Inc()
	metrics.StoreSize.WithLabelValues("normal").Set(float64(d.Users.Normal.Len()))
	return nil
}

// Snapshot exports all three stores to their canonical files under
// dataDir, used by the shutdown supervisor.
func (d *Directory) Snapshot() error {
	if err := persistence.Export(d.Main, filepath.Join(d.dataDir, mainSnapshotFile)); err != nil {
		return fmt.Errorf("directory: snapshot main: %w", err)
	}
	metrics.SnapshotsTotal.WithLabelValues("main").Inc()
	if err := persistence.Export(d.Users.Privileged, filepath.Join(d.dataDir, privSnapshotFile)); err != nil {
		return fmt.Errorf("directory: snapshot privileged: %w", err)
	}
	metrics.SnapshotsTotal.WithLabelValues("privileged").Inc()
	if err := persistence.Export(d.Users.Normal, filepath.Join(d.dataDir, normSnapshotFile)); err != nil {
		return fmt.Errorf("directory: snapshot normal: %w", err)
	}
	metrics.SnapshotsTotal.WithLabelValues("normal").Inc()
	return nil
}

// RetireJournal closes and deletes the journal file. Only safe to call
// once a fresh snapshot has been committed.
func (d *Directory) RetireJournal() error {
	return d.journal.Retire()
}

// CloseJournal closes the journal file handle without deleting it, used
// on the forced-exit escalation path where the journal must remain
// intact for the next startup's recovery.
func (d *Directory) CloseJournal() error {
	return d.journal.Close()
}

func (d *Directory) reportSizes() {
	metrics.StoreSize.WithLabelValues("main").Set(float64(d.Main.Len()))
	metrics.StoreSize.WithLabelValues("privileged").Set(float64(d.Users.Privileged.Len()))
	metrics.StoreSize.WithLabelValues("normal").Set(float64(d.Users.Normal.Len()))
}
