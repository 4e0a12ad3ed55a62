package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/AgenticFinLab/FinMycelium/internal/config"
	"github.com/AgenticFinLab/FinMycelium/internal/queue"
	mid "github.com/AgenticFinLab/FinMycelium/internal/server/middleware"
	"github.com/AgenticFinLab/FinMycelium/internal/storage"
	"github.com/AgenticFinLab/FinMycelium/pkg/logger"
	cascadestore "github.com/AgenticFinLab/FinMycelium/pkg/store/pgx"

	"github.com/go-playground/validator"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

func Init(cfg *config.Config) {
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cascadestore.RunMigrations("file://migrations", cfg.Database.URL); err != nil {
		logger.Fatal("Failed to run migrations", "err", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Invalid database URL", "err", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	conn, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer conn.Close()

	db := cascadestore.NewCascadeDBStorageWithConnection(conn)

	que := queue.Init(cfg.Queue.URL)
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}

	if err := queue.SetupQueues(ch, []string{queue.ReconstructQueue}); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	docStore, err := storage.NewDocumentStore(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("Failed to create document store", "err", err)
	}

	e.Use(mid.AppContextMiddleware(conn, ch, docStore, db))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("64M"))

	RegisterRoutes(e)

	go func() {
		port := strconv.Itoa(cfg.Server.Port)
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}
