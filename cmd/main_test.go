package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	app "github.com/okian/scorenft/internal/app"
	"github.com/okian/scorenft/internal/config"
	"github.com/okian/scorenft/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestOpenStore(t *testing.T) {
	convey.Convey("Given the default configuration", t, func() {
		ctx := context.Background()
		cfg := config.New()

		convey.Convey("When the memory driver is selected", func() {
			store, err := openStore(ctx, cfg)

			convey.Convey("Then an in-memory store should be returned", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(store.Driver(), convey.ShouldEqual, config.DriverMemory)
				convey.So(store.Close(), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the sqlite driver is selected", func() {
			cfg.StoreDriver = config.DriverSQLite
			cfg.SQLitePath = filepath.Join(t.TempDir(), "ledger.db")
			store, err := openStore(ctx, cfg)

			convey.Convey("Then a sqlite store should be returned", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(store.Driver(), convey.ShouldEqual, config.DriverSQLite)
				convey.So(store.Close(), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the driver is unknown", func() {
			cfg.StoreDriver = "etcd"
			_, err := openStore(ctx, cfg)

			convey.Convey("Then it should fail", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestBuildSinks(t *testing.T) {
	convey.Convey("Given a configuration without brokers", t, func() {
		sinks, closeSinks, err := buildSinks(context.Background(), config.New(), logger.Get())

		convey.Convey("Then only the log sink should be active", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(sinks), convey.ShouldEqual, 1)
			convey.So(sinks[0].Name(), convey.ShouldEqual, "log")
			convey.So(closeSinks, convey.ShouldNotPanic)
		})
	})
}

func TestNewHandler(t *testing.T) {
	convey.Convey("Given the process handler", t, func() {
		ctx := context.Background()
		svc := app.New()
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		h := newHandler(ctx, config.New(), svc)

		convey.Reset(svc.Stop)

		for _, path := range []string{"/healthz", "/stats", "/v1/contract", "/openapi.yaml", "/api-docs"} {
			convey.Convey("Then GET "+path+" should succeed", func() {
				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, http.NoBody))
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			})
		}
	})
}

func TestUpdateSystemMetrics(t *testing.T) {
	convey.Convey("Given the metrics registry", t, func() {
		convey.Convey("Then refreshing system gauges should not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})
	})
}
