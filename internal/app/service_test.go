package service_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/scorenft/internal/adapters/auth"
	"github.com/okian/scorenft/internal/adapters/repository"
	service "github.com/okian/scorenft/internal/app"
	"github.com/okian/scorenft/internal/domain/model"
	"github.com/okian/scorenft/internal/domain/types"
	"github.com/okian/scorenft/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func newIdentity(t *testing.T) model.Identity {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return model.IdentityFromPublicKey(pub)
}

func as(id model.Identity) context.Context {
	return auth.WithCaller(context.Background(), id)
}

func hashOf(b byte) model.HistoryHash {
	var h model.HistoryHash
	for i := range h {
		h[i] = b
	}
	return h
}

type recordingSink struct {
	mu     sync.Mutex
	events []model.Event
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Deliver(_ context.Context, e model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) kinds() []model.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.EventKind, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Kind)
	}
	return out
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(service.WithWorkerCount(1), service.WithQueueSize(10))

		Convey("Then stats report it stopped", func() {
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, false)
			So(stats["store"], ShouldEqual, "memory")
		})

		Convey("When it is started and stopped", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.GetStats()["started"], ShouldEqual, true)
			svc.Stop()

			Convey("Then it reports stopped and refuses a restart", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
				So(svc.Start(ctx), ShouldNotBeNil)
			})
		})
	})
}

// gatedStore parks the first Update inside its transaction until release is
// closed.
type gatedStore struct {
	*repository.MemoryStore
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func newGatedStore(base *repository.MemoryStore) *gatedStore {
	return &gatedStore{MemoryStore: base, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedStore) Update(ctx context.Context, fn func(repository.Txn) error) error {
	if g.calls.Add(1) != 1 {
		return g.MemoryStore.Update(ctx, fn)
	}
	return g.MemoryStore.Update(ctx, func(tx repository.Txn) error {
		close(g.entered)
		<-g.release
		return fn(tx)
	})
}

func TestService_Uninitialized(t *testing.T) {
	Convey("Given an uninitialized contract", t, func() {
		store := repository.NewMemoryStore()
		svc := service.New(service.WithStore(store))
		admin := newIdentity(t)
		alice := newIdentity(t)
		ctx := as(admin)

		Convey("Then every gated operation reports not initialized", func() {
			_, err := svc.Mint(ctx, alice, 500, hashOf(1))
			So(errors.Is(err, service.ErrNotInitialized), ShouldBeTrue)

			_, err = svc.UpdateScore(ctx, alice, 200, "")
			So(errors.Is(err, service.ErrNotInitialized), ShouldBeTrue)

			_, err = svc.UpdateHistoryHash(ctx, alice, hashOf(2))
			So(errors.Is(err, service.ErrNotInitialized), ShouldBeTrue)

			So(errors.Is(svc.AuthorizeMinter(ctx, alice), service.ErrNotInitialized), ShouldBeTrue)
			So(errors.Is(svc.RevokeMinter(ctx, alice), service.ErrNotInitialized), ShouldBeTrue)
			So(store.Snapshot(), ShouldBeEmpty)
		})

		Convey("Then ungated reads answer with defaults", func() {
			score, err := svc.GetScore(ctx, alice)
			So(err, ShouldBeNil)
			So(score.Score, ShouldEqual, uint64(0))

			_, found, err := svc.GetMetadata(ctx, alice)
			So(err, ShouldBeNil)
			So(found, ShouldBeFalse)

			view, err := svc.IsAuthorizedMinter(ctx, admin)
			So(err, ShouldBeNil)
			So(view.Authorized, ShouldBeFalse)

			info, err := svc.Contract(ctx)
			So(err, ShouldBeNil)
			So(info.Initialized, ShouldBeFalse)
			So(info.Minters, ShouldBeEmpty)
		})

		Convey("When initialize is called by someone other than the admin", func() {
			err := svc.Initialize(as(alice), admin)

			Convey("Then the named admin is installed", func() {
				So(err, ShouldBeNil)
				info, err := svc.Contract(ctx)
				So(err, ShouldBeNil)
				So(info.Admin, ShouldEqual, admin)
				_, err = svc.Mint(as(admin), alice, 500, hashOf(1))
				So(err, ShouldBeNil)
			})
		})

		Convey("When initialize is called without a caller", func() {
			err := svc.Initialize(context.Background(), admin)

			Convey("Then the contract is bootstrapped", func() {
				So(err, ShouldBeNil)
				view, err := svc.IsAuthorizedMinter(ctx, admin)
				So(err, ShouldBeNil)
				So(view.Authorized, ShouldBeTrue)
			})
		})

		Convey("When a gated operation names a malformed identity", func() {
			_, mintErr := svc.Mint(ctx, "bogus", 500, hashOf(1))
			_, scoreErr := svc.UpdateScore(ctx, "bogus", 200, "")
			_, hashErr := svc.UpdateHistoryHash(ctx, "bogus", hashOf(2))
			authErr := svc.AuthorizeMinter(ctx, "bogus")
			revokeErr := svc.RevokeMinter(ctx, "bogus")

			Convey("Then the initialization gate answers first", func() {
				for _, err := range []error{mintErr, scoreErr, hashErr, authErr, revokeErr} {
					So(errors.Is(err, service.ErrNotInitialized), ShouldBeTrue)
					So(errors.Is(err, service.ErrInvalidArgument), ShouldBeFalse)
				}
			})
		})

		Convey("When initialize names a malformed identity", func() {
			err := svc.Initialize(ctx, "bogus")

			Convey("Then it is rejected as invalid", func() {
				So(errors.Is(err, service.ErrInvalidArgument), ShouldBeTrue)
			})
		})

		Convey("When the admin initializes twice", func() {
			So(svc.Initialize(ctx, admin), ShouldBeNil)
			err := svc.Initialize(as(alice), alice)
			malformedErr := svc.Initialize(ctx, "bogus")

			Convey("Then the second call fails and the admin is unchanged", func() {
				So(errors.Is(err, service.ErrAlreadyInitialized), ShouldBeTrue)
				So(errors.Is(malformedErr, service.ErrAlreadyInitialized), ShouldBeTrue)
				info, err := svc.Contract(ctx)
				So(err, ShouldBeNil)
				So(info.Initialized, ShouldBeTrue)
				So(info.Admin, ShouldEqual, admin)
			})
		})
	})
}

func TestService_RecordLifecycle(t *testing.T) {
	Convey("Given an initialized contract with an authorized minter", t, func() {
		store := repository.NewMemoryStore()
		sink := &recordingSink{}
		svc := service.New(service.WithStore(store), service.WithSinks(sink), service.WithWorkerCount(1))
		admin := newIdentity(t)
		minter := newIdentity(t)
		alice := newIdentity(t)
		stranger := newIdentity(t)

		So(svc.Initialize(as(admin), admin), ShouldBeNil)
		So(svc.AuthorizeMinter(as(admin), minter), ShouldBeNil)

		Convey("When the minter mints alice at 500 and applies repayments", func() {
			meta, err := svc.Mint(as(minter), alice, 500, hashOf(1))
			So(err, ShouldBeNil)
			So(meta.Score, ShouldEqual, uint64(500))

			var scores []uint64
			for _, amount := range []uint64{200, 1000, 99} {
				res, err := svc.UpdateScore(as(minter), alice, amount, "")
				So(err, ShouldBeNil)
				scores = append(scores, res.Score)
			}

			Convey("Then the scores follow floor(amount/100)", func() {
				So(scores, ShouldResemble, []uint64{502, 512, 512})
				view, err := svc.GetScore(context.Background(), alice)
				So(err, ShouldBeNil)
				So(view.Score, ShouldEqual, uint64(512))
				got, found, err := svc.GetMetadata(context.Background(), alice)
				So(err, ShouldBeNil)
				So(found, ShouldBeTrue)
				So(got.HistoryHash, ShouldResemble, hashOf(1))
			})

			Convey("Then replacing the history hash keeps the score", func() {
				got, err := svc.UpdateHistoryHash(as(minter), alice, hashOf(2))
				So(err, ShouldBeNil)
				So(got.Score, ShouldEqual, uint64(512))
				So(got.HistoryHash, ShouldResemble, hashOf(2))
			})

			Convey("Then minting alice again fails and leaves the record", func() {
				before := store.Snapshot()
				_, err := svc.Mint(as(admin), alice, 1, hashOf(9))
				So(errors.Is(err, service.ErrAlreadyMinted), ShouldBeTrue)
				So(store.Snapshot(), ShouldResemble, before)
			})

			Convey("Then events are delivered for every committed mutation", func() {
				So(svc.Start(context.Background()), ShouldBeNil)
				svc.Stop()
				So(sink.kinds(), ShouldResemble, []model.EventKind{
					model.EventInitialized,
					model.EventMinterAuthorized,
					model.EventMinted,
					model.EventScoreUpdated,
					model.EventScoreUpdated,
					model.EventScoreUpdated,
				})
			})
		})

		Convey("When updating an identity that has no record", func() {
			_, err := svc.UpdateScore(as(minter), alice, 200, "")
			_, err2 := svc.UpdateHistoryHash(as(minter), alice, hashOf(2))

			Convey("Then both fail with no record", func() {
				So(errors.Is(err, service.ErrNoRecord), ShouldBeTrue)
				So(errors.Is(err2, service.ErrNoRecord), ShouldBeTrue)
			})
		})

		Convey("When a stranger tries every mutation", func() {
			_, err := svc.Mint(as(minter), alice, 500, hashOf(1))
			So(err, ShouldBeNil)
			before := store.Snapshot()

			_, mintErr := svc.Mint(as(stranger), stranger, 1, hashOf(1))
			_, scoreErr := svc.UpdateScore(as(stranger), alice, 10000, "")
			_, hashErr := svc.UpdateHistoryHash(as(stranger), alice, hashOf(3))
			authErr := svc.AuthorizeMinter(as(stranger), stranger)
			revokeErr := svc.RevokeMinter(as(minter), minter)
			_, anonErr := svc.UpdateScore(context.Background(), alice, 10000, "")

			Convey("Then each is refused and the store is untouched", func() {
				for _, err := range []error{mintErr, scoreErr, hashErr, authErr, revokeErr, anonErr} {
					So(errors.Is(err, service.ErrNotAuthorized), ShouldBeTrue)
				}
				So(store.Snapshot(), ShouldResemble, before)
			})
		})

		Convey("When the minter is revoked", func() {
			So(svc.RevokeMinter(as(admin), minter), ShouldBeNil)
			So(svc.RevokeMinter(as(admin), minter), ShouldBeNil)

			Convey("Then it can no longer mint", func() {
				_, err := svc.Mint(as(minter), alice, 500, hashOf(1))
				So(errors.Is(err, service.ErrNotAuthorized), ShouldBeTrue)
				view, err := svc.IsAuthorizedMinter(context.Background(), minter)
				So(err, ShouldBeNil)
				So(view.Authorized, ShouldBeFalse)
			})
		})

		Convey("When the admin revokes itself", func() {
			So(svc.RevokeMinter(as(admin), admin), ShouldBeNil)

			Convey("Then the admin is still an implicit minter", func() {
				view, err := svc.IsAuthorizedMinter(context.Background(), admin)
				So(err, ShouldBeNil)
				So(view.Authorized, ShouldBeTrue)
				_, err = svc.Mint(as(admin), alice, 1, hashOf(1))
				So(err, ShouldBeNil)
			})
		})

		Convey("When the minter is authorized again", func() {
			So(svc.AuthorizeMinter(as(admin), minter), ShouldBeNil)

			Convey("Then the registry lists it once and never lists the admin", func() {
				info, err := svc.Contract(context.Background())
				So(err, ShouldBeNil)
				So(info.Minters, ShouldResemble, []model.Identity{minter})
			})
		})
	})
}

func TestService_Repayments(t *testing.T) {
	Convey("Given a minted record", t, func() {
		store := repository.NewMemoryStore()
		svc := service.New(service.WithStore(store))
		admin := newIdentity(t)
		alice := newIdentity(t)
		So(svc.Initialize(as(admin), admin), ShouldBeNil)
		_, err := svc.Mint(as(admin), alice, 500, hashOf(1))
		So(err, ShouldBeNil)

		Convey("When the same repayment id is submitted twice", func() {
			first, err := svc.UpdateScore(as(admin), alice, 1000, "loan-7")
			So(err, ShouldBeNil)
			second, err := svc.UpdateScore(as(admin), alice, 1000, "loan-7")
			So(err, ShouldBeNil)

			Convey("Then the delta is applied once", func() {
				So(first.Score, ShouldEqual, uint64(510))
				So(first.Duplicate, ShouldBeFalse)
				So(second.Score, ShouldEqual, uint64(510))
				So(second.Duplicate, ShouldBeTrue)
			})
		})

		Convey("When a repayment with an id fails", func() {
			bob := newIdentity(t)
			_, err := svc.UpdateScore(as(admin), bob, 1000, "loan-8")
			So(errors.Is(err, service.ErrNoRecord), ShouldBeTrue)

			Convey("Then the id is released for a retry", func() {
				_, err := svc.Mint(as(admin), bob, 0, hashOf(1))
				So(err, ShouldBeNil)
				res, err := svc.UpdateScore(as(admin), bob, 1000, "loan-8")
				So(err, ShouldBeNil)
				So(res.Duplicate, ShouldBeFalse)
				So(res.Score, ShouldEqual, uint64(10))
			})
		})

		Convey("When a stranger's failing call holds the same repayment id", func() {
			gated := newGatedStore(store)
			racing := service.New(service.WithStore(gated))
			stranger := newIdentity(t)

			var strangerErr error
			done := make(chan struct{})
			go func() {
				defer close(done)
				_, strangerErr = racing.UpdateScore(as(stranger), alice, 1000, "loan-race")
			}()
			<-gated.entered

			adminDone := make(chan struct{})
			var res types.RepaymentResult
			var adminErr error
			go func() {
				defer close(adminDone)
				res, adminErr = racing.UpdateScore(as(admin), alice, 1000, "loan-race")
			}()
			close(gated.release)
			<-done
			<-adminDone

			Convey("Then the real repayment is applied exactly once", func() {
				So(errors.Is(strangerErr, service.ErrNotAuthorized), ShouldBeTrue)
				So(adminErr, ShouldBeNil)
				So(res.Duplicate, ShouldBeFalse)
				So(res.Score, ShouldEqual, uint64(510))
				view, err := svc.GetScore(context.Background(), alice)
				So(err, ShouldBeNil)
				So(view.Score, ShouldEqual, uint64(510))
			})
		})

		Convey("When the service restarts on the same store", func() {
			_, err := svc.UpdateScore(as(admin), alice, 1000, "loan-10")
			So(err, ShouldBeNil)
			restarted := service.New(service.WithStore(store))
			res, err := restarted.UpdateScore(as(admin), alice, 1000, "loan-10")

			Convey("Then the receipt still blocks the replay", func() {
				So(err, ShouldBeNil)
				So(res.Duplicate, ShouldBeTrue)
				So(res.Score, ShouldEqual, uint64(510))
			})
		})

		Convey("When a repayment id carries a path separator", func() {
			before := store.Snapshot()
			_, err := svc.UpdateScore(as(admin), alice, 1000, "loan/11")

			Convey("Then it is rejected and nothing changes", func() {
				So(errors.Is(err, service.ErrInvalidArgument), ShouldBeTrue)
				So(store.Snapshot(), ShouldResemble, before)
			})
		})

		Convey("When a replay comes from a stranger", func() {
			_, err := svc.UpdateScore(as(admin), alice, 1000, "loan-9")
			So(err, ShouldBeNil)
			_, err = svc.UpdateScore(as(newIdentity(t)), alice, 1000, "loan-9")

			Convey("Then it is refused", func() {
				So(errors.Is(err, service.ErrNotAuthorized), ShouldBeTrue)
			})
		})

		Convey("When a record is at the uint64 limit", func() {
			bob := newIdentity(t)
			_, err := svc.Mint(as(admin), bob, math.MaxUint64, hashOf(1))
			So(err, ShouldBeNil)
			_, err = svc.UpdateScore(as(admin), bob, 100, "")

			Convey("Then the overflow is rejected and the score kept", func() {
				So(errors.Is(err, service.ErrScoreOverflow), ShouldBeTrue)
				view, err := svc.GetScore(context.Background(), bob)
				So(err, ShouldBeNil)
				So(view.Score, ShouldEqual, uint64(math.MaxUint64))
			})
		})

		Convey("When many repayments race", func() {
			const n = 50
			var wg sync.WaitGroup
			errs := make(chan error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := svc.UpdateScore(as(admin), alice, 100, "")
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)

			Convey("Then none is lost", func() {
				for err := range errs {
					So(err, ShouldBeNil)
				}
				view, err := svc.GetScore(context.Background(), alice)
				So(err, ShouldBeNil)
				So(view.Score, ShouldEqual, uint64(500+n))
			})
		})
	})
}
